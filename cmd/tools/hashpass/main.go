// hashpass 输出 ADMIN_PASSWORD_HASH 用的 bcrypt 哈希。
//
//	go run ./cmd/tools/hashpass <password>
//	echo -n "$PASSWORD" | go run ./cmd/tools/hashpass   # 不进 shell 历史
package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	"filedrop.local/internal/platform/auth"
)

func main() {
	var password string
	switch len(os.Args) {
	case 1:
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			log.Fatal("read password from stdin: ", err)
		}
		password = strings.TrimRight(line, "\r\n")
	case 2:
		password = os.Args[1]
	default:
		log.Fatal("usage: hashpass [password]")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(hash)
}
