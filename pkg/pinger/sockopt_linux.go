//go:build linux

package pinger

import "golang.org/x/sys/unix"

// setDFOption 设置路径MTU发现模式，DO 即置DF标志
func setDFOption(fd uintptr, v6, on bool) error {
	if v6 {
		mode := unix.IPV6_PMTUDISC_DONT
		if on {
			mode = unix.IPV6_PMTUDISC_DO
		}
		return unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_MTU_DISCOVER, mode)
	}
	mode := unix.IP_PMTUDISC_DONT
	if on {
		mode = unix.IP_PMTUDISC_DO
	}
	return unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_MTU_DISCOVER, mode)
}
