// Package pinger - 平台能力接口定义
// 定义了跨平台的权限检测和探测器创建接口
package pinger

import (
	"github.com/Kevin-Rudy/pingwatch/pkg/core"
)

// platformCapability 定义平台能力接口
// 每个平台实现此接口来提供权限检测和探测器创建功能
type platformCapability interface {
	// hasPrivilegedAccess 检查是否有特权访问能力
	// Windows: 检查管理员权限
	// Linux: 检查CAP_NET_RAW或root权限
	// macOS: 检查root权限
	hasPrivilegedAccess() bool

	// createPrivilegedProber 创建特权模式探测器，所有平台统一使用raw socket
	createPrivilegedProber(config *Config) (core.Prober, error)

	// createUnprivilegedProber 创建非特权模式探测器
	// Windows: 使用Icmp.dll
	// Linux: 使用DGRAM ICMP socket
	// macOS: 返回错误要求sudo
	createUnprivilegedProber(config *Config) (core.Prober, error)
}
