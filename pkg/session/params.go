package session

import (
	"fmt"
	"time"

	"github.com/Kevin-Rudy/pingwatch/pkg/validator"
)

// Params 一次会话的启动参数
type Params struct {
	Target      string        // 目标主机
	Timeout     time.Duration // 单次探测超时
	Interval    time.Duration // 两次探测之间的等待
	PayloadSize int           // 负载字节数
}

// DefaultParams 返回默认参数：8.8.8.8，超时1000ms，32字节，间隔1000ms
func DefaultParams() Params {
	return Params{
		Target:      "8.8.8.8",
		Timeout:     1000 * time.Millisecond,
		Interval:    1000 * time.Millisecond,
		PayloadSize: 32,
	}
}

// ParamsFromMillis 由毫秒数值构造参数
func ParamsFromMillis(target string, timeoutMs, payloadSize, intervalMs int) Params {
	return Params{
		Target:      target,
		Timeout:     time.Duration(timeoutMs) * time.Millisecond,
		Interval:    time.Duration(intervalMs) * time.Millisecond,
		PayloadSize: payloadSize,
	}
}

// Validate 校验参数是否在允许范围内
func (p Params) Validate() error {
	if err := validator.ValidateHost(p.Target); err != nil {
		return err
	}
	if err := validator.ValidateTimeout(int(p.Timeout / time.Millisecond)); err != nil {
		return err
	}
	if err := validator.ValidatePayloadSize(p.PayloadSize); err != nil {
		return err
	}
	if err := validator.ValidateInterval(int(p.Interval / time.Millisecond)); err != nil {
		return err
	}
	return nil
}

// String 便于日志输出
func (p Params) String() string {
	return fmt.Sprintf("target=%s timeout=%v interval=%v size=%d", p.Target, p.Timeout, p.Interval, p.PayloadSize)
}
