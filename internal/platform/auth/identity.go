package auth

import "context"

const RoleAdmin = "admin"

// Identity 是通过认证的调用方。目前只有运维管理员一种。
type Identity struct {
	Subject string
	Role    string
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func GetIdentity(ctx context.Context) (Identity, bool) {
	v := ctx.Value(identityKey{})
	id, ok := v.(Identity)
	return id, ok
}
