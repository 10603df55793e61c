// admintoken 用当前 JWT 配置直接签一个管理员 token，给运维脚本用，不需要走登录接口。
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"filedrop.local/internal/platform/auth"
	"filedrop.local/internal/platform/config"
)

func main() {
	subject := flag.String("sub", auth.RoleAdmin, "token subject")
	ttl := flag.Duration("ttl", 0, "override JWT_TTL, e.g. 30m")
	flag.Parse()

	cfg := config.Load()
	if *ttl > 0 {
		cfg.JWTTTL = *ttl
	}

	ts, err := auth.NewHS256Service(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if err != nil {
		log.Fatal(err)
	}
	token, exp, err := ts.Sign(*subject, auth.RoleAdmin)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(token)
	log.Printf("expires at %s", exp.Format(time.RFC3339))
}
