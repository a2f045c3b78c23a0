// Package core 定义了探测引擎与外部协作者之间的核心数据结构和接口
// Prober、ResultSink 等接口保证了引擎与具体平台实现、显示层的完全解耦
package core

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"
)

// 时间格式常量，显示与导出共用
const (
	DisplayTimeLayout = "15:04:05.000"
	LogTimeLayout     = "15:04:05"
)

// ErrProberClosed 探测器已经关闭，会话无法继续
var ErrProberClosed = errors.New("探测器已关闭")

// Observation 表示一次探测的不可变结果记录
type Observation struct {
	Sequence        int         // 会话内从1开始递增的序号
	Timestamp       time.Time   // 探测发出时间（毫秒精度）
	Target          string      // 用户输入的目标主机
	ResolvedAddress netip.Addr  // 应答地址，零值表示没有
	RoundTripMillis int64       // 往返时间(ms)，失败时为 -1
	Outcome         OutcomeKind // 探测结果分类
	TTL             int         // 应答TTL，未知时为0
	PayloadSize     int         // 负载字节数
}

// Success 报告探测是否成功
func (o Observation) Success() bool {
	return o.Outcome == OutcomeSuccess
}

// HasAddress 报告是否记录了应答地址
func (o Observation) HasAddress() bool {
	return o.ResolvedAddress.IsValid()
}

// String 返回单行显示文本
//
//	[HH:mm:ss.fff] Reply from {address}: bytes={size} time={rtt}ms TTL={ttl}
//	[HH:mm:ss.fff] {host}: {status}
func (o Observation) String() string {
	ts := o.Timestamp.Format(DisplayTimeLayout)
	if o.Success() {
		addr := o.Target
		if o.HasAddress() {
			addr = o.ResolvedAddress.String()
		}
		return fmt.Sprintf("[%s] Reply from %s: bytes=%d time=%dms TTL=%d",
			ts, addr, o.PayloadSize, o.RoundTripMillis, o.TTL)
	}
	return fmt.Sprintf("[%s] %s: %s", ts, o.Target, o.Outcome)
}

// ProbeOptions 单次探测的IP层选项
type ProbeOptions struct {
	DontFragment bool // 设置IP头DF标志
	TTL          int  // 发送TTL/跳数限制
}

// DefaultProbeOptions 返回会话默认使用的探测选项
func DefaultProbeOptions() ProbeOptions {
	return ProbeOptions{DontFragment: true, TTL: 128}
}

// Outcome 表示探测器返回的原始结果
type Outcome struct {
	Status    OutcomeKind
	Address   netip.Addr
	RoundTrip time.Duration
	TTL       int
}

// Prober 定义了发送单次ICMP回显请求的接口
// 任何平台实现（原始套接字、DGRAM套接字、Icmp.dll）都应实现此接口
type Prober interface {
	// Probe 发送一次回显请求并等待应答或超时
	// 网络层面的失败以 Outcome.Status 报告；只有探测器自身出错时才返回 error
	Probe(ctx context.Context, target string, timeout time.Duration, payload []byte, opts ProbeOptions) (Outcome, error)

	// Close 释放底层套接字或句柄
	Close() error
}

// ProberFunc 将普通函数适配为 Prober
type ProberFunc func(ctx context.Context, target string, timeout time.Duration, payload []byte, opts ProbeOptions) (Outcome, error)

// Probe 调用函数本身
func (f ProberFunc) Probe(ctx context.Context, target string, timeout time.Duration, payload []byte, opts ProbeOptions) (Outcome, error) {
	return f(ctx, target, timeout, payload, opts)
}

// Close 无操作
func (f ProberFunc) Close() error { return nil }
