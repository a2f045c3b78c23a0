// Package validator 校验探测参数：目标主机语法和各项数值范围
package validator

import (
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// 参数范围
const (
	MinTimeoutMillis  = 100
	MaxTimeoutMillis  = 30000
	MinPayloadSize    = 1
	MaxPayloadSize    = 65500
	MinIntervalMillis = 100
	MaxIntervalMillis = 60000

	maxLabelLength = 63
	maxHostLength  = 253
)

var (
	// ErrEmptyHost 目标主机为空
	ErrEmptyHost = errors.New("目标主机不能为空")
	// ErrInvalidHost 目标主机不是合法的IP地址或域名
	ErrInvalidHost = errors.New("目标主机不是合法的IP地址或域名")
	// ErrOutOfRange 数值超出允许范围
	ErrOutOfRange = errors.New("数值超出允许范围")
	// ErrNotInteger 输入不是整数
	ErrNotInteger = errors.New("输入不是整数")
)

// NormalizeHost 去除首尾空白
func NormalizeHost(host string) string {
	return strings.TrimSpace(host)
}

// ValidateHost 校验目标主机
// 四段纯数字按严格IPv4校验；含冒号按IPv6校验；其余按DNS名称校验
func ValidateHost(host string) error {
	host = NormalizeHost(host)
	if host == "" {
		return ErrEmptyHost
	}

	if looksLikeIPv4(host) {
		if !validIPv4(host) {
			return fmt.Errorf("%w: %q 不是合法的IPv4地址", ErrInvalidHost, host)
		}
		return nil
	}

	if strings.Contains(host, ":") {
		addr, err := netip.ParseAddr(host)
		if err != nil || !addr.Is6() {
			return fmt.Errorf("%w: %q", ErrInvalidHost, host)
		}
		return nil
	}

	if err := validDNSName(host); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidHost, err)
	}
	return nil
}

func looksLikeIPv4(host string) bool {
	parts := strings.Split(host, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if p == "" || !allDigits(p) {
			return false
		}
	}
	return true
}

func validIPv4(host string) bool {
	for _, p := range strings.Split(host, ".") {
		// 除 "0" 外不允许前导零
		if len(p) > 1 && p[0] == '0' {
			return false
		}
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 || v > 255 {
			return false
		}
	}
	return true
}

func validDNSName(host string) error {
	if len(host) > maxHostLength {
		return fmt.Errorf("名称长度超过%d", maxHostLength)
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" {
			return errors.New("存在空标签")
		}
		if len(label) > maxLabelLength {
			return fmt.Errorf("标签 %q 长度超过%d", label, maxLabelLength)
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return fmt.Errorf("标签 %q 不能以连字符开头或结尾", label)
		}
		for _, r := range label {
			if !isLabelRune(r) {
				return fmt.Errorf("标签 %q 含有非法字符 %q", label, r)
			}
		}
	}
	return nil
}

func isLabelRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_'
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ValidateTimeout 校验超时(ms)
func ValidateTimeout(ms int) error {
	return checkRange("超时", ms, MinTimeoutMillis, MaxTimeoutMillis)
}

// ValidatePayloadSize 校验负载字节数
func ValidatePayloadSize(size int) error {
	return checkRange("负载大小", size, MinPayloadSize, MaxPayloadSize)
}

// ValidateInterval 校验间隔(ms)
func ValidateInterval(ms int) error {
	return checkRange("间隔", ms, MinIntervalMillis, MaxIntervalMillis)
}

// ParseTimeout 解析并校验超时文本
func ParseTimeout(s string) (int, error) {
	return parseBounded(s, ValidateTimeout)
}

// ParsePayloadSize 解析并校验负载大小文本
func ParsePayloadSize(s string) (int, error) {
	return parseBounded(s, ValidatePayloadSize)
}

// ParseInterval 解析并校验间隔文本
func ParseInterval(s string) (int, error) {
	return parseBounded(s, ValidateInterval)
}

func parseBounded(s string, check func(int) error) (int, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNotInteger, s)
	}
	if err := check(int(v)); err != nil {
		return 0, err
	}
	return int(v), nil
}

func checkRange(name string, v, lo, hi int) error {
	if v < lo || v > hi {
		return fmt.Errorf("%w: %s必须在%d到%d之间，当前为%d", ErrOutOfRange, name, lo, hi, v)
	}
	return nil
}
