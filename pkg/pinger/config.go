// Package pinger 配置定义
package pinger

import (
	"errors"
	"fmt"

	"github.com/Kevin-Rudy/pingwatch/pkg/resolver"
	"go.uber.org/zap"
)

// Config pinger组件的配置结构
type Config struct {
	IPVersion      int               // IP版本，4或6
	DNSServer      string            // 指定DNS服务器，为空时使用系统解析
	ReadBufferSize int               // 接收缓冲区大小
	Resolver       resolver.Resolver // 为nil时按 IPVersion/DNSServer 创建
	Logger         *zap.Logger
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		IPVersion:      4,     // 默认IPv4
		ReadBufferSize: 65536, // 足够容纳最大负载的应答
	}
}

// GetIPProtocol 获取原始套接字使用的网络名和监听地址
func (c *Config) GetIPProtocol() (network, laddr string) {
	if c.IPVersion == 6 {
		return "ip6:ipv6-icmp", "::"
	}
	return "ip4:icmp", "0.0.0.0"
}

// Validate 验证配置的合理性
func (c *Config) Validate() error {
	if c.IPVersion != 4 && c.IPVersion != 6 {
		return errors.New("IP版本必须是4或6")
	}

	if c.ReadBufferSize < 576 {
		return fmt.Errorf("接收缓冲区不能小于576字节，当前为%d", c.ReadBufferSize)
	}

	return nil
}

// resolverOrDefault 返回配置的解析器，未配置时按IP版本和DNS服务器创建
func (c *Config) resolverOrDefault() resolver.Resolver {
	if c.Resolver != nil {
		return c.Resolver
	}
	return resolver.New(resolver.Config{
		Server:    c.DNSServer,
		IPVersion: c.IPVersion,
		Logger:    c.logger(),
	})
}

func (c *Config) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
