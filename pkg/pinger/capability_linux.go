//go:build linux

package pinger

import (
	"net"
	"os"

	"github.com/Kevin-Rudy/pingwatch/pkg/core"
)

// linuxCapability Linux平台能力实现
type linuxCapability struct{}

// hasPrivilegedAccess 检查Linux权限（CAP_NET_RAW或root）
func (l *linuxCapability) hasPrivilegedAccess() bool {
	return checkLinuxCapNetRaw()
}

// createPrivilegedProber 创建特权模式探测器（raw socket）
func (l *linuxCapability) createPrivilegedProber(config *Config) (core.Prober, error) {
	return newRawProber(config)
}

// createUnprivilegedProber 创建Linux DGRAM探测器
func (l *linuxCapability) createUnprivilegedProber(config *Config) (core.Prober, error) {
	return newDgramProber(config)
}

// checkLinuxCapNetRaw 检查Linux系统的CAP_NET_RAW权限或root权限
func checkLinuxCapNetRaw() bool {
	if os.Geteuid() == 0 {
		return true
	}

	// 能打开原始套接字即说明具有CAP_NET_RAW
	conn, err := net.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// getPlatformCapability 获取Linux平台的能力实现
func getPlatformCapability() platformCapability {
	return &linuxCapability{}
}
