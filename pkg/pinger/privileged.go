// Package pinger - 特权模式实现
// 使用原始套接字，需要管理员/root权限，但支持所有操作系统
package pinger

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"syscall"
	"time"

	"github.com/Kevin-Rudy/pingwatch/pkg/core"
	"go.uber.org/zap"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// rawProber 特权模式的探测实现
type rawProber struct {
	*baseProber
	conn *net.IPConn
	p4   *ipv4.PacketConn
	p6   *ipv6.PacketConn
	buf  []byte
}

// newRawProber 创建特权模式的探测器实例
func newRawProber(config *Config) (core.Prober, error) {
	network, laddr := config.GetIPProtocol()
	pc, err := net.ListenPacket(network, laddr)
	if err != nil {
		return nil, fmt.Errorf("创建原始套接字失败: %w", err)
	}

	p := &rawProber{
		baseProber: newBaseProber(config),
		conn:       pc.(*net.IPConn),
		buf:        make([]byte, config.ReadBufferSize),
	}

	// 控制消息用于读取应答TTL，部分平台不支持，失败时回退到解析IP头
	if config.IPVersion == 6 {
		p.p6 = ipv6.NewPacketConn(pc)
		if err := p.p6.SetControlMessage(ipv6.FlagHopLimit, true); err != nil {
			p.logger.Debug("无法启用跳数控制消息", zap.Error(err))
		}
	} else {
		p.p4 = ipv4.NewPacketConn(pc)
		if err := p.p4.SetControlMessage(ipv4.FlagTTL, true); err != nil {
			p.logger.Debug("无法启用TTL控制消息", zap.Error(err))
		}
	}
	return p, nil
}

// Probe 实现core.Prober接口
func (p *rawProber) Probe(ctx context.Context, target string, timeout time.Duration, payload []byte, opts core.ProbeOptions) (core.Outcome, error) {
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

	v6 := p.p6 != nil
	seq := p.nextSeq()
	msg, err := marshalEcho(v6, p.id, seq, payload)
	if err != nil {
		return core.Outcome{}, fmt.Errorf("构造ICMP报文失败: %w", err)
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := p.conn.SetReadDeadline(deadline); err != nil {
		return core.Outcome{}, err
	}

	start := time.Now()
	if err := p.write(msg, dst); err != nil {
		if p.closed.Load() {
			return core.Outcome{}, core.ErrProberClosed
		}
		if kind, ok := outcomeFromSendError(err); ok {
			return core.Outcome{Status: kind}, nil
		}
		return core.Outcome{}, fmt.Errorf("发送ICMP报文失败: %w", err)
	}

	for {
		if ctx.Err() != nil {
			return core.Outcome{}, ctx.Err()
		}
		b, src, ttl, err := p.read()
		if err != nil {
			if p.closed.Load() {
				return core.Outcome{}, core.ErrProberClosed
			}
			if isTimeout(err) {
				return core.Outcome{Status: core.OutcomeTimedOut}, nil
			}
			return core.Outcome{}, fmt.Errorf("接收ICMP报文失败: %w", err)
		}

		kind, ok := classifyReply(v6, b, p.id, seq, true)
		if !ok {
			continue
		}
		// 原始套接字能收到本机所有回显应答，成功时还需要核对来源
		if kind == core.OutcomeSuccess && src != dst {
			continue
		}
		return core.Outcome{
			Status:    kind,
			Address:   src,
			RoundTrip: time.Since(start),
			TTL:       ttl,
		}, nil
	}
}

// applyOptions 设置本次探测的TTL和DF标志
func (p *rawProber) applyOptions(opts core.ProbeOptions) error {
	if p.p6 != nil {
		if err := p.p6.SetHopLimit(opts.TTL); err != nil {
			return fmt.Errorf("设置跳数限制失败: %w", err)
		}
	} else if err := p.p4.SetTTL(opts.TTL); err != nil {
		return fmt.Errorf("设置TTL失败: %w", err)
	}
	return setDontFragment(p.conn, p.p6 != nil, opts.DontFragment)
}

func (p *rawProber) write(msg []byte, dst netip.Addr) error {
	to := &net.IPAddr{IP: dst.AsSlice(), Zone: dst.Zone()}
	var err error
	if p.p6 != nil {
		_, err = p.p6.WriteTo(msg, nil, to)
	} else {
		_, err = p.p4.WriteTo(msg, nil, to)
	}
	return err
}

// read 读取一个ICMP报文，返回去掉IP头后的报文、来源地址和TTL
func (p *rawProber) read() ([]byte, netip.Addr, int, error) {
	if p.p6 != nil {
		n, cm, src, err := p.p6.ReadFrom(p.buf)
		if err != nil {
			return nil, netip.Addr{}, 0, err
		}
		ttl := 0
		if cm != nil {
			ttl = cm.HopLimit
		}
		return p.buf[:n], addrFromNet(src), ttl, nil
	}

	n, cm, src, err := p.p4.ReadFrom(p.buf)
	if err != nil {
		return nil, netip.Addr{}, 0, err
	}
	b := p.buf[:n]
	ttl := 0
	if cm != nil {
		ttl = cm.TTL
	}
	if ttl == 0 && len(b) >= ipv4.HeaderLen && b[0]>>4 == 4 {
		ttl = int(b[8])
	}
	return stripIPv4Header(b), addrFromNet(src), ttl, nil
}

// Close 关闭原始套接字，等待在途探测返回
func (p *rawProber) Close() error {
	if !p.markClosed() {
		return nil
	}
	err := p.conn.Close()
	p.waitIdle()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

type syscallConner interface {
	SyscallConn() (syscall.RawConn, error)
}

// setDontFragment 通过原始文件描述符设置DF标志
func setDontFragment(conn syscallConner, v6, on bool) error {
	rc, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var serr error
	if err := rc.Control(func(fd uintptr) {
		serr = setDFOption(fd, v6, on)
	}); err != nil {
		return err
	}
	if serr != nil {
		return fmt.Errorf("设置DF标志失败: %w", serr)
	}
	return nil
}
