//go:build darwin

package pinger

import "golang.org/x/sys/unix"

// setDFOption 设置IP_DONTFRAG
// IPv6源端分片由内核按路径MTU决定，不做设置
func setDFOption(fd uintptr, v6, on bool) error {
	if v6 {
		return nil
	}
	return unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_DONTFRAG, boolInt(on))
}
