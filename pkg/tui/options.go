// Package tui 选项模式支持
package tui

import (
	"time"
)

// Option TUI配置选项函数类型
type Option func(*Config)

// WithRefreshInterval 设置UI刷新间隔
func WithRefreshInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.RefreshInterval = interval
	}
}

// WithExportDir 设置导出目录
func WithExportDir(dir string) Option {
	return func(c *Config) {
		c.ExportDir = dir
	}
}

// WithChartScale 设置图表比例
func WithChartScale(msPerBar, maxBars int) Option {
	return func(c *Config) {
		c.MsPerBar = msPerBar
		c.MaxBars = maxBars
	}
}

// WithLatencyThresholds 设置延迟颜色阈值
func WithLatencyThresholds(fast, slow int64) Option {
	return func(c *Config) {
		c.FastThreshold = fast
		c.SlowThreshold = slow
	}
}

// NewConfigWithOptions 使用选项模式创建TUI配置
func NewConfigWithOptions(opts ...Option) *Config {
	config := DefaultConfig()

	// 应用所有选项
	for _, opt := range opts {
		opt(config)
	}

	return config
}
