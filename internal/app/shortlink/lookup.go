package shortlink

import (
	"context"
	"errors"
)

// 解析链路命中的路径，用于日志和 trace 属性。
const (
	viaCode = "code"
	viaID   = "id"
)

// lookup 是 Resolver 和 Accounting 共用的两段式查找：
//  1. 先按短码精确匹配
//  2. 未命中再把输入当作内部 ID 查一次（兼容直接分享了数据库 ID 的旧链接）
//
// 短码优先：同一个输入既能匹配短码又能匹配 ID 时，永远返回短码那条。
// 存储错误立即返回，不会降级成“不存在”。
func lookup(ctx context.Context, store Store, key string) (ShortLink, string, error) {
	if !lookupKeyOK(key) {
		return ShortLink{}, "", ErrNotFound
	}

	link, err := store.FindByCode(ctx, key)
	if err == nil {
		return link, viaCode, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return ShortLink{}, "", err
	}

	link, err = store.FindByID(ctx, key)
	if err != nil {
		return ShortLink{}, "", err
	}
	return link, viaID, nil
}
