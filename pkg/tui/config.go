// Package tui 配置定义
package tui

import (
	"errors"
	"time"
)

// Config TUI组件的配置结构
type Config struct {
	RefreshInterval time.Duration // UI刷新间隔
	ExportDir       string        // 导出文件所在目录
	MsPerBar        int           // 图表中每个竖线代表的毫秒数
	MaxBars         int           // 单行最多竖线数
	FastThreshold   int64         // 低于此延迟(ms)显示为绿色
	SlowThreshold   int64         // 低于此延迟(ms)显示为黄色，否则红色
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		RefreshInterval: 200 * time.Millisecond, // 默认200ms刷新
		ExportDir:       ".",
		MsPerBar:        5,
		MaxBars:         50,
		FastThreshold:   50,
		SlowThreshold:   150,
	}
}

// Validate 验证配置的合理性
func (c *Config) Validate() error {
	if c.RefreshInterval <= 0 {
		return errors.New("UI刷新间隔必须大于0")
	}

	if c.RefreshInterval < 10*time.Millisecond {
		return errors.New("UI刷新间隔不能小于10ms")
	}

	if c.ExportDir == "" {
		return errors.New("导出目录不能为空")
	}

	if c.MsPerBar <= 0 {
		return errors.New("每格毫秒数必须大于0")
	}

	if c.MaxBars <= 0 {
		return errors.New("最大竖线数必须大于0")
	}

	if c.FastThreshold <= 0 || c.SlowThreshold <= c.FastThreshold {
		return errors.New("延迟颜色阈值必须满足 0 < 快速阈值 < 慢速阈值")
	}

	return nil
}
