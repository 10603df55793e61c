package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	errEmptySecret  = errors.New("jwt secret is empty")
	errEmptyIssuer  = errors.New("jwt issuer is empty")
	errEmptySubject = errors.New("jwt subject is empty")
)

// Claims 是校验通过后交给中间件的内容
type Claims struct {
	ID        string
	Subject   string
	Role      string
	ExpiresAt time.Time
}

type TokenService interface {
	Sign(subject, role string) (token string, expiresAt time.Time, err error)
	Verify(token string) (Claims, error)
}

type adminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// hs256Service 对称签名，只在本服务内部签发和校验
type hs256Service struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

func NewHS256Service(secret, issuer string, ttl time.Duration) (TokenService, error) {
	switch {
	case secret == "":
		return nil, errEmptySecret
	case issuer == "":
		return nil, errEmptyIssuer
	case ttl <= 0:
		return nil, fmt.Errorf("jwt ttl must be positive, got %s", ttl)
	}
	h := &hs256Service{key: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
	h.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return h.now() }),
	)
	return h, nil
}

func (h *hs256Service) Sign(subject, role string) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, errEmptySubject
	}
	issued := h.now()
	exp := issued.Add(h.ttl)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, adminClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    h.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := tok.SignedString(h.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign jwt: %w", err)
	}
	return signed, exp, nil
}

func (h *hs256Service) Verify(token string) (Claims, error) {
	var ac adminClaims
	if _, err := h.parser.ParseWithClaims(token, &ac, func(*jwt.Token) (any, error) {
		return h.key, nil
	}); err != nil {
		return Claims{}, err
	}
	c := Claims{ID: ac.ID, Subject: ac.Subject, Role: ac.Role}
	if ac.ExpiresAt != nil {
		c.ExpiresAt = ac.ExpiresAt.Time
	}
	return c, nil
}
