package shortlink

import "crypto/rand"

// CodeLength 是生成短码的固定长度。
const CodeLength = 8

// 64 个 URL 安全字符：随机字节 & 63 正好落在字母表内，没有取模偏差。
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"

// CodeGenerator 生成短码。实现只保证“碰撞概率低”，唯一性由调用方负责。
type CodeGenerator interface {
	NewCode() string
}

// CodeGeneratorFunc 让普通函数满足 CodeGenerator（测试里用来固定短码）。
type CodeGeneratorFunc func() string

func (f CodeGeneratorFunc) NewCode() string { return f() }

// RandomCode 从 crypto/rand 取随机字节生成 8 位短码。
// 64^8 ≈ 2.8e14 的空间，按生日悖论大约 1600 万条后碰撞概率才到 50%。
type RandomCode struct{}

func (RandomCode) NewCode() string {
	var buf [CodeLength]byte
	// crypto/rand.Read 从 Go 1.24 起不会返回错误，失败时直接 fatal。
	_, _ = rand.Read(buf[:])
	for i, b := range buf {
		buf[i] = codeAlphabet[b&63]
	}
	return string(buf[:])
}
