//go:build darwin

package pinger

import (
	"errors"
	"os"

	"github.com/Kevin-Rudy/pingwatch/pkg/core"
)

// darwinCapability macOS平台能力实现
type darwinCapability struct{}

func (d *darwinCapability) hasPrivilegedAccess() bool {
	return os.Geteuid() == 0
}

func (d *darwinCapability) createPrivilegedProber(config *Config) (core.Prober, error) {
	return newRawProber(config)
}

// createUnprivilegedProber macOS非特权模式直接报错要求sudo
func (d *darwinCapability) createUnprivilegedProber(config *Config) (core.Prober, error) {
	return nil, errors.New("macOS需要root权限才能发送ICMP，请使用sudo运行")
}

func getPlatformCapability() platformCapability {
	return &darwinCapability{}
}
