package session

import (
	"time"

	"github.com/Kevin-Rudy/pingwatch/pkg/core"
	"go.uber.org/zap"
)

// Option 引擎配置选项函数类型
type Option func(*Engine)

// WithLogger 设置结构化日志
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithCapacity 设置账本保留条数
func WithCapacity(capacity int) Option {
	return func(e *Engine) {
		if capacity > 0 {
			e.capacity = capacity
		}
	}
}

// WithClock 设置时间来源
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithProbeOptions 覆盖默认的IP层选项（DF、TTL 128）
func WithProbeOptions(opts core.ProbeOptions) Option {
	return func(e *Engine) {
		e.probeOpts = opts
	}
}
