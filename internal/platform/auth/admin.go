package auth

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAdminDisabled      = errors.New("admin login disabled")
)

// AdminLogin 用单个运维密码换管理员 token。
// 密码只以 bcrypt 哈希形式出现在配置里（ADMIN_PASSWORD_HASH）。
type AdminLogin struct {
	hash []byte
	ts   TokenService
}

func NewAdminLogin(passwordHash string, ts TokenService) *AdminLogin {
	return &AdminLogin{hash: []byte(passwordHash), ts: ts}
}

func (a *AdminLogin) Enabled() bool {
	return a != nil && len(a.hash) > 0 && a.ts != nil
}

func (a *AdminLogin) Login(password string) (string, time.Time, error) {
	if !a.Enabled() {
		return "", time.Time{}, ErrAdminDisabled
	}
	if password == "" {
		return "", time.Time{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(password)); err != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return a.ts.Sign(RoleAdmin, RoleAdmin)
}

// HashPassword 生成可以直接填进 ADMIN_PASSWORD_HASH 的哈希
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("empty password")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
