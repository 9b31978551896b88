package domain

import (
	"errors"
	"regexp"
	"strings"
)

// 验证相关的错误定义
var (
	ErrInvalidDomain  = errors.New("invalid domain format")
	ErrDomainTooLong  = errors.New("domain too long (max 253 chars)")
	ErrInvalidAddress = errors.New("invalid address format")
)

// 验证常量
const (
	// RFC 5322 长度限制
	MaxDomainLength    = 253
	MaxLocalPartLength = 64
)

var (
	// 域名验证（必须含点，受限字符集，支持子域名）
	domainRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,61}[a-z0-9]?(\.[a-z0-9][a-z0-9-]{0,61}[a-z0-9]?)+$`)

	// 本地部分验证（地址生成只产出小写字母和数字，解析入站地址时放宽到常见符号）
	localPartRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9._+-]*$`)
)

// ValidateDomain 校验邮箱域名后缀。
//
// 规则：不含 @ 和空白、必须包含点、只允许小写字母/数字/连字符。
// 管理端修改激活域名前必须通过此校验，校验失败不产生任何变更。
func ValidateDomain(value string) error {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ErrInvalidDomain
	}
	if len(value) > MaxDomainLength {
		return ErrDomainTooLong
	}
	if strings.ContainsAny(value, "@ \t\r\n") {
		return ErrInvalidDomain
	}
	if !strings.Contains(value, ".") {
		return ErrInvalidDomain
	}
	if !domainRegex.MatchString(value) {
		return ErrInvalidDomain
	}
	return nil
}

// NormalizeAddress 规范化邮箱地址：去空白、去尖括号、转小写。
func NormalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	address = strings.Trim(address, "<>")
	return strings.ToLower(address)
}

// ValidateAddress 校验完整邮箱地址的基本形态。
func ValidateAddress(address string) error {
	address = NormalizeAddress(address)
	parts := strings.Split(address, "@")
	if len(parts) != 2 {
		return ErrInvalidAddress
	}
	local, dom := parts[0], parts[1]
	if local == "" || len(local) > MaxLocalPartLength || !localPartRegex.MatchString(local) {
		return ErrInvalidAddress
	}
	return ValidateDomain(dom)
}
