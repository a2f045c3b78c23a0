// Package pinger 实现了core.Prober接口，发送单次ICMP回显请求
// 根据操作系统和用户权限自动选择最合适的底层实现
package pinger

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Kevin-Rudy/pingwatch/pkg/core"
	"github.com/Kevin-Rudy/pingwatch/pkg/resolver"
	"go.uber.org/zap"
)

// baseProber 定义了所有探测器实现共用的结构
type baseProber struct {
	config   *Config
	resolver resolver.Resolver
	logger   *zap.Logger
	id       int           // ICMP标识符
	seq      atomic.Uint32 // ICMP序号
	probeMu  sync.Mutex    // 串行化探测，同一时刻只有一个在途请求
	closed   atomic.Bool
}

// newBaseProber 创建基础探测器结构
func newBaseProber(config *Config) *baseProber {
	return &baseProber{
		config:   config,
		resolver: config.resolverOrDefault(),
		logger:   config.logger(),
		id:       os.Getpid() & 0xffff,
	}
}

// nextSeq 返回下一个16位序号
func (bp *baseProber) nextSeq() int {
	return int(bp.seq.Add(1) & 0xffff)
}

// begin 获取探测锁，探测器已关闭时返回 ErrProberClosed
func (bp *baseProber) begin() error {
	if bp.closed.Load() {
		return core.ErrProberClosed
	}
	bp.probeMu.Lock()
	if bp.closed.Load() {
		bp.probeMu.Unlock()
		return core.ErrProberClosed
	}
	return nil
}

func (bp *baseProber) end() {
	bp.probeMu.Unlock()
}

// markClosed 标记关闭，返回是否是首次关闭
func (bp *baseProber) markClosed() bool {
	return !bp.closed.Swap(true)
}

// waitIdle 等待在途探测结束
func (bp *baseProber) waitIdle() {
	bp.probeMu.Lock()
	bp.probeMu.Unlock()
}

// resolve 在探测超时内解析目标
func (bp *baseProber) resolve(ctx context.Context, target string, timeout time.Duration) (netip.Addr, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	addr, err := bp.resolver.Resolve(ctx, target)
	if err != nil {
		return netip.Addr{}, err
	}
	if bp.config.IPVersion == 6 && !addr.Is6() {
		return netip.Addr{}, fmt.Errorf("%s 没有IPv6地址", target)
	}
	if bp.config.IPVersion == 4 && !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("%s 没有IPv4地址", target)
	}
	return addr, nil
}

// NewProber 创建新的Prober实例
func NewProber(config *Config) (core.Prober, error) {
	if config == nil {
		config = DefaultConfig()
	}

	// 验证配置
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// 获取当前平台的能力实现
	platform := getPlatformCapability()

	// 优先尝试特权模式（所有平台统一用raw socket）
	if platform.hasPrivilegedAccess() {
		return platform.createPrivilegedProber(config)
	}

	// 降级到非特权模式（各平台不同的实现）
	return platform.createUnprivilegedProber(config)
}

// GetSystemInfo 获取完整的系统信息
// 返回操作系统名称、权限状态和实现类型
func GetSystemInfo() (osName, privilegeStatus, implementationType string) {
	switch runtime.GOOS {
	case "windows":
		osName = "Windows"
	case "linux":
		osName = "Linux"
	case "darwin":
		osName = "macOS"
	default:
		osName = runtime.GOOS
	}

	hasPriv := getPlatformCapability().hasPrivilegedAccess()

	switch runtime.GOOS {
	case "windows":
		if hasPriv {
			privilegeStatus = "管理员模式 (Raw Socket)"
			implementationType = "Raw Socket"
		} else {
			privilegeStatus = "普通用户模式 (Icmp.dll)"
			implementationType = "Windows IcmpSendEcho"
		}
	case "linux":
		if hasPriv {
			privilegeStatus = "特权模式 (Raw Socket)"
			implementationType = "Linux Raw Socket"
		} else {
			privilegeStatus = "非特权模式 (DGRAM Socket)"
			implementationType = "Linux DGRAM ICMP Socket"
		}
	case "darwin":
		if hasPriv {
			privilegeStatus = "特权模式 (Root权限)"
			implementationType = "macOS Raw Socket"
		} else {
			privilegeStatus = "权限不足 (需要sudo)"
			implementationType = "macOS Raw Socket (未启用)"
		}
	default:
		privilegeStatus = "不支持的平台"
		implementationType = "无"
	}

	return
}

// GetOSName 获取操作系统名称
func GetOSName() string {
	osName, _, _ := GetSystemInfo()
	return osName
}

// GetPrivilegeStatus 获取权限状态描述
func GetPrivilegeStatus() string {
	_, privilegeStatus, _ := GetSystemInfo()
	return privilegeStatus
}

// GetImplementationType 获取探测实现类型描述
func GetImplementationType() string {
	_, _, implementationType := GetSystemInfo()
	return implementationType
}
