//go:build windows

package pinger

import "golang.org/x/sys/windows"

// IP_DONTFRAGMENT 与 IPV6_DONTFRAG 取值相同
const ipDontFragment = 14

func setDFOption(fd uintptr, v6, on bool) error {
	level := windows.IPPROTO_IP
	if v6 {
		level = windows.IPPROTO_IPV6
	}
	return windows.SetsockoptInt(windows.Handle(fd), level, ipDontFragment, boolInt(on))
}
