//go:build linux

// Package pinger - Linux非特权模式实现
// 使用SOCK_DGRAM类型的ICMP套接字，仅适用于Linux系统
package pinger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
	"syscall"
	"time"
	"unsafe"

	"github.com/Kevin-Rudy/pingwatch/pkg/core"
	"golang.org/x/sys/unix"
)

// 差错来源，见 linux/errqueue.h
const (
	eeOriginLocal = 1
	eeOriginICMP  = 2
	eeOriginICMP6 = 3
)

var sizeofSockExtendedErr = int(unsafe.Sizeof(unix.SockExtendedErr{}))

// dgramProber Linux非特权模式的探测实现
// 内核会改写回显请求的ID，应答只按序号匹配
type dgramProber struct {
	*baseProber
	fd  int
	v6  bool
	buf []byte
	oob []byte
}

// newDgramProber 创建Linux非特权模式的探测器实例
// 需要 net.ipv4.ping_group_range 包含当前用户组
func newDgramProber(config *Config) (core.Prober, error) {
	v6 := config.IPVersion == 6
	family, proto := unix.AF_INET, unix.IPPROTO_ICMP
	if v6 {
		family, proto = unix.AF_INET6, unix.IPPROTO_ICMPV6
	}

	fd, err := unix.Socket(family, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, proto)
	if err != nil {
		return nil, fmt.Errorf("创建DGRAM ICMP套接字失败(检查 net.ipv4.ping_group_range): %w", err)
	}

	// 开启差错队列和TTL控制消息
	if v6 {
		err = unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_RECVERR, 1)
		if err == nil {
			err = unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_RECVHOPLIMIT, 1)
		}
	} else {
		err = unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_RECVERR, 1)
		if err == nil {
			err = unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_RECVTTL, 1)
		}
	}
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("设置套接字选项失败: %w", err)
	}

	return &dgramProber{
		baseProber: newBaseProber(config),
		fd:         fd,
		v6:         v6,
		buf:        make([]byte, config.ReadBufferSize),
		oob:        make([]byte, 512),
	}, nil
}

// Probe 实现core.Prober接口
func (p *dgramProber) Probe(ctx context.Context, target string, timeout time.Duration, payload []byte, opts core.ProbeOptions) (core.Outcome, error) {
	if err := p.begin(); err != nil {
		return core.Outcome{}, err
	}
	defer p.end()

	dst, err := p.resolve(ctx, target, timeout)
	if err != nil {
		return core.Outcome{}, err
	}
	if err := p.applyOptions(opts); err != nil {
		return core.Outcome{}, err
	}

	seq := p.nextSeq()
	msg, err := marshalEcho(p.v6, p.id, seq, payload)
	if err != nil {
		return core.Outcome{}, fmt.Errorf("构造ICMP报文失败: %w", err)
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	start := time.Now()
	if err := unix.Sendto(p.fd, msg, 0, sockaddrFor(dst)); err != nil {
		if kind, ok := outcomeFromSendError(err); ok {
			return core.Outcome{Status: kind}, nil
		}
		return core.Outcome{}, fmt.Errorf("发送ICMP报文失败: %w", err)
	}

	for {
		if ctx.Err() != nil {
			return core.Outcome{}, ctx.Err()
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return core.Outcome{Status: core.OutcomeTimedOut}, nil
		}
		if err := p.setRecvTimeout(remaining); err != nil {
			return core.Outcome{}, err
		}

		n, oobn, _, from, err := unix.Recvmsg(p.fd, p.buf, p.oob, 0)
		if p.closed.Load() {
			return core.Outcome{}, core.ErrProberClosed
		}
		switch {
		case err == nil:
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return core.Outcome{Status: core.OutcomeTimedOut}, nil
		default:
			// IP_RECVERR开启后，ICMP差错以套接字错误的形式唤醒接收
			out, ok, qerr := p.readErrQueue(seq, start)
			if qerr != nil {
				return core.Outcome{}, qerr
			}
			if ok {
				return out, nil
			}
			continue
		}

		kind, ok := classifyReply(p.v6, p.buf[:n], p.id, seq, false)
		if !ok || kind != core.OutcomeSuccess {
			continue
		}
		return core.Outcome{
			Status:    kind,
			Address:   addrFromSockaddr(from),
			RoundTrip: time.Since(start),
			TTL:       p.ttlFromOOB(p.oob[:oobn]),
		}, nil
	}
}

// readErrQueue 从差错队列取出一个差错，序号不匹配时ok为false
func (p *dgramProber) readErrQueue(seq int, start time.Time) (core.Outcome, bool, error) {
	n, oobn, _, _, err := unix.Recvmsg(p.fd, p.buf, p.oob, unix.MSG_ERRQUEUE|unix.MSG_DONTWAIT)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return core.Outcome{}, false, nil
		}
		return core.Outcome{}, false, fmt.Errorf("读取差错队列失败: %w", err)
	}

	// 差错队列中的数据是原始的回显请求
	if n < 8 || int(binary.BigEndian.Uint16(p.buf[6:8])) != seq {
		return core.Outcome{}, false, nil
	}

	cmsgs, err := unix.ParseSocketControlMessage(p.oob[:oobn])
	if err != nil {
		return core.Outcome{}, false, fmt.Errorf("解析控制消息失败: %w", err)
	}
	for _, cm := range cmsgs {
		if !p.isRecvErr(cm.Header) || len(cm.Data) < sizeofSockExtendedErr {
			continue
		}
		ee := (*unix.SockExtendedErr)(unsafe.Pointer(&cm.Data[0]))
		out := core.Outcome{
			Address:   p.offender(cm.Data[sizeofSockExtendedErr:]),
			RoundTrip: time.Since(start),
		}
		var ok bool
		switch ee.Origin {
		case eeOriginICMP:
			out.Status, ok = outcomeFromICMPv4(int(ee.Type), int(ee.Code))
		case eeOriginICMP6:
			out.Status, ok = outcomeFromICMPv6(int(ee.Type), int(ee.Code))
		case eeOriginLocal:
			out.Status, ok = outcomeFromSendError(syscall.Errno(ee.Errno))
		}
		if !ok {
			out.Status = core.OutcomeUnrecognized
		}
		return out, true, nil
	}
	return core.Outcome{}, false, nil
}

func (p *dgramProber) isRecvErr(h unix.Cmsghdr) bool {
	if p.v6 {
		return h.Level == unix.IPPROTO_IPV6 && h.Type == unix.IPV6_RECVERR
	}
	return h.Level == unix.IPPROTO_IP && h.Type == unix.IP_RECVERR
}

// offender 解析紧跟在sock_extended_err之后的sockaddr
func (p *dgramProber) offender(b []byte) netip.Addr {
	if p.v6 {
		if len(b) < 24 || binary.NativeEndian.Uint16(b[0:2]) != unix.AF_INET6 {
			return netip.Addr{}
		}
		return netip.AddrFrom16([16]byte(b[8:24]))
	}
	if len(b) < 8 || binary.NativeEndian.Uint16(b[0:2]) != unix.AF_INET {
		return netip.Addr{}
	}
	return netip.AddrFrom4([4]byte(b[4:8]))
}

func (p *dgramProber) ttlFromOOB(oob []byte) int {
	cmsgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return 0
	}
	for _, cm := range cmsgs {
		if len(cm.Data) < 4 {
			continue
		}
		if (!p.v6 && cm.Header.Level == unix.IPPROTO_IP && cm.Header.Type == unix.IP_TTL) ||
			(p.v6 && cm.Header.Level == unix.IPPROTO_IPV6 && cm.Header.Type == unix.IPV6_HOPLIMIT) {
			return int(int32(binary.NativeEndian.Uint32(cm.Data[:4])))
		}
	}
	return 0
}

// applyOptions 设置本次探测的TTL和DF标志
func (p *dgramProber) applyOptions(opts core.ProbeOptions) error {
	var err error
	if p.v6 {
		err = unix.SetsockoptInt(p.fd, unix.IPPROTO_IPV6, unix.IPV6_UNICAST_HOPS, opts.TTL)
	} else {
		err = unix.SetsockoptInt(p.fd, unix.IPPROTO_IP, unix.IP_TTL, opts.TTL)
	}
	if err != nil {
		return fmt.Errorf("设置TTL失败: %w", err)
	}
	if err := setDFOption(uintptr(p.fd), p.v6, opts.DontFragment); err != nil {
		return fmt.Errorf("设置DF标志失败: %w", err)
	}
	return nil
}

// setRecvTimeout 设置接收超时，零值表示永久阻塞，因此至少为1微秒
func (p *dgramProber) setRecvTimeout(d time.Duration) error {
	if d < time.Microsecond {
		d = time.Microsecond
	}
	tv := unix.NsecToTimeval(d.Nanoseconds())
	return unix.SetsockoptTimeval(p.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv)
}

// Close 关闭套接字
// shutdown 唤醒阻塞中的接收，等待探测返回后再释放描述符
func (p *dgramProber) Close() error {
	if !p.markClosed() {
		return nil
	}
	_ = unix.Shutdown(p.fd, unix.SHUT_RDWR)
	p.waitIdle()
	return unix.Close(p.fd)
}

func sockaddrFor(addr netip.Addr) unix.Sockaddr {
	if addr.Is4() {
		return &unix.SockaddrInet4{Addr: addr.As4()}
	}
	return &unix.SockaddrInet6{Addr: addr.As16()}
}

func addrFromSockaddr(sa unix.Sockaddr) netip.Addr {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrFrom4(v.Addr)
	case *unix.SockaddrInet6:
		return netip.AddrFrom16(v.Addr).Unmap()
	}
	return netip.Addr{}
}
