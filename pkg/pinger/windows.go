//go:build windows

// Package pinger - Windows非特权模式实现
// 使用Icmp.dll系统调用，适用于Windows系统
package pinger

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"syscall"
	"time"
	"unsafe"

	"github.com/Kevin-Rudy/pingwatch/pkg/core"
	"golang.org/x/sys/windows"
)

var (
	// 加载Icmp.dll库
	icmpDLL = windows.NewLazyDLL("Icmp.dll")

	// 获取函数地址
	icmpCreateFile  = icmpDLL.NewProc("IcmpCreateFile")
	icmpCloseHandle = icmpDLL.NewProc("IcmpCloseHandle")
	icmpSendEcho    = icmpDLL.NewProc("IcmpSendEcho")
)

// IP_OPTION_INFORMATION 中的标志位
const ipFlagDF = 0x2

// icmpEchoReply 对应 ICMP_ECHO_REPLY
type icmpEchoReply struct {
	Address       uint32
	Status        uint32
	RoundTripTime uint32
	DataSize      uint16
	Reserved      uint16
	Data          uintptr
	Options       ipOptionInformation
}

// ipOptionInformation 对应 IP_OPTION_INFORMATION
type ipOptionInformation struct {
	Ttl         uint8
	Tos         uint8
	Flags       uint8
	OptionsSize uint8
	OptionsData uintptr
}

// icmpAPIProber Windows非特权模式的探测实现
type icmpAPIProber struct {
	*baseProber
	handle syscall.Handle
}

// newIcmpAPIProber 创建基于Icmp.dll的探测器，仅支持IPv4
func newIcmpAPIProber(config *Config) (core.Prober, error) {
	if config.IPVersion == 6 {
		return nil, errors.New("Windows非特权模式仅支持IPv4，IPv6请以管理员身份运行")
	}

	ret, _, err := icmpCreateFile.Call()
	if ret == 0 || ret == uintptr(syscall.InvalidHandle) {
		return nil, fmt.Errorf("IcmpCreateFile失败: %w", err)
	}

	return &icmpAPIProber{
		baseProber: newBaseProber(config),
		handle:     syscall.Handle(ret),
	}, nil
}

// Probe 实现core.Prober接口
// IcmpSendEcho 是阻塞调用，超时由系统控制
func (p *icmpAPIProber) Probe(ctx context.Context, target string, timeout time.Duration, payload []byte, opts core.ProbeOptions) (core.Outcome, error) {
	if err := p.begin(); err != nil {
		return core.Outcome{}, err
	}
	defer p.end()

	dst, err := p.resolve(ctx, target, timeout)
	if err != nil {
		return core.Outcome{}, err
	}

	// IPAddr 以网络字节序存放
	ip := dst.As4()
	destAddr := uint32(ip[0]) | uint32(ip[1])<<8 | uint32(ip[2])<<16 | uint32(ip[3])<<24

	options := ipOptionInformation{Ttl: uint8(opts.TTL)}
	if opts.DontFragment {
		options.Flags = ipFlagDF
	}

	// 回复缓冲区需要容纳应答结构、回显数据和一个ICMP差错
	replySize := unsafe.Sizeof(icmpEchoReply{}) + uintptr(len(payload)) + 8 + 16
	replyBuffer := make([]byte, replySize)

	var dataPtr uintptr
	if len(payload) > 0 {
		dataPtr = uintptr(unsafe.Pointer(&payload[0]))
	}

	start := time.Now()
	ret, _, callErr := icmpSendEcho.Call(
		uintptr(p.handle),
		uintptr(destAddr),
		dataPtr,
		uintptr(len(payload)),
		uintptr(unsafe.Pointer(&options)),
		uintptr(unsafe.Pointer(&replyBuffer[0])),
		uintptr(len(replyBuffer)),
		uintptr(timeout.Milliseconds()),
	)
	elapsed := time.Since(start)

	if ret == 0 {
		// 失败时 GetLastError 返回 IP_STATUS 代码
		var errno syscall.Errno
		if errors.As(callErr, &errno) && isIPStatus(uint32(errno)) {
			return core.Outcome{Status: core.OutcomeFromIPStatus(uint32(errno))}, nil
		}
		return core.Outcome{}, fmt.Errorf("IcmpSendEcho失败: %w", callErr)
	}

	reply := (*icmpEchoReply)(unsafe.Pointer(&replyBuffer[0]))
	rtt := elapsed
	if reply.Status == 0 && reply.RoundTripTime > 0 {
		rtt = time.Duration(reply.RoundTripTime) * time.Millisecond
	}
	a := reply.Address
	return core.Outcome{
		Status:    core.OutcomeFromIPStatus(reply.Status),
		Address:   netip.AddrFrom4([4]byte{byte(a), byte(a >> 8), byte(a >> 16), byte(a >> 24)}),
		RoundTrip: rtt,
		TTL:       int(reply.Options.Ttl),
	}, nil
}

// Close 等待在途请求返回后关闭ICMP句柄
func (p *icmpAPIProber) Close() error {
	if !p.markClosed() {
		return nil
	}
	p.waitIdle()
	ret, _, err := icmpCloseHandle.Call(uintptr(p.handle))
	if ret == 0 {
		return fmt.Errorf("IcmpCloseHandle失败: %w", err)
	}
	return nil
}

// isIPStatus 判断错误码是否落在 IP_STATUS 区间
func isIPStatus(code uint32) bool {
	return code == 0 || (code >= 11000 && code <= 11050)
}

// checkWindowsAdmin 检查是否具有Windows管理员权限
func checkWindowsAdmin() bool {
	var sid *windows.SID

	// 获取管理员组的SID
	err := windows.AllocateAndInitializeSid(
		&windows.SECURITY_NT_AUTHORITY,
		2,
		windows.SECURITY_BUILTIN_DOMAIN_RID,
		windows.DOMAIN_ALIAS_RID_ADMINS,
		0, 0, 0, 0, 0, 0,
		&sid)
	if err != nil {
		return false
	}
	defer windows.FreeSid(sid)

	token := windows.Token(0)

	isMember, err := token.IsMember(sid)
	if err != nil {
		return false
	}

	return isMember
}
