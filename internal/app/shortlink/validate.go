package shortlink

import (
	"net/url"
	"strings"
)

// maxLookupKeyLen 限制解析入口的输入长度：短码 8 位、UUID 36 位，超过这个长度不可能命中。
const maxLookupKeyLen = 128

// ValidateURL 校验待缩短的长链接。
//
// 规则：
// - 不能为空（原样返回“url is required”，与创建接口的错误文案一致）
// - scheme 必须是 http/https
// - host 不能为空
//
// 预签名 URL 的 query 很长且带签名，这里不做任何改写，只做结构校验。
func ValidateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return &ValidationError{Field: "url", Reason: "url is required"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return &ValidationError{Field: "url", Reason: "invalid url"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{Field: "url", Reason: "url scheme must be http or https"}
	}
	if strings.TrimSpace(u.Host) == "" {
		return &ValidationError{Field: "url", Reason: "url host is empty"}
	}
	return nil
}

// lookupKeyOK 判断解析入口的输入是否值得查存储。
// 不合格的输入直接按“不存在”处理，不打到数据库。
func lookupKeyOK(key string) bool {
	return key != "" && len(key) <= maxLookupKeyLen
}
