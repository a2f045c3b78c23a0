// Package pinger 选项模式支持
package pinger

import (
	"github.com/Kevin-Rudy/pingwatch/pkg/core"
	"github.com/Kevin-Rudy/pingwatch/pkg/resolver"
	"go.uber.org/zap"
)

// Option 配置选项函数类型
type Option func(*Config)

// WithIPVersion 设置IP版本
func WithIPVersion(version int) Option {
	return func(c *Config) {
		c.IPVersion = version
	}
}

// WithDNSServer 设置用于解析目标的DNS服务器
func WithDNSServer(server string) Option {
	return func(c *Config) {
		c.DNSServer = server
	}
}

// WithResolver 使用自定义解析器
func WithResolver(r resolver.Resolver) Option {
	return func(c *Config) {
		c.Resolver = r
	}
}

// WithReadBufferSize 设置接收缓冲区大小
func WithReadBufferSize(size int) Option {
	return func(c *Config) {
		c.ReadBufferSize = size
	}
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// NewProberWithOptions 使用选项模式创建Prober
func NewProberWithOptions(opts ...Option) (core.Prober, error) {
	config := DefaultConfig()

	// 应用所有选项
	for _, opt := range opts {
		opt(config)
	}

	return NewProber(config)
}
