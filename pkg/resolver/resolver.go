// Package resolver 将目标主机解析为单个IP地址
// 未指定DNS服务器时使用系统解析器，否则直接向指定服务器发送查询
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"
)

// ErrNoAddress 解析成功但没有匹配IP版本的地址
var ErrNoAddress = errors.New("没有找到可用的地址")

const maxCNAMEHops = 8

// Resolver 主机名解析接口
type Resolver interface {
	Resolve(ctx context.Context, host string) (netip.Addr, error)
}

// Config 解析器配置
type Config struct {
	Server    string        // DNS服务器地址，为空时使用系统解析器
	IPVersion int           // 4或6
	Timeout   time.Duration // 单次查询超时
	Logger    *zap.Logger
}

// New 根据配置创建解析器
func New(cfg Config) Resolver {
	if cfg.IPVersion != 6 {
		cfg.IPVersion = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.Server) == "" {
		return &systemResolver{ipVersion: cfg.IPVersion}
	}
	return &dnsResolver{
		server:    NormalizeServer(cfg.Server),
		ipVersion: cfg.IPVersion,
		timeout:   cfg.Timeout,
		logger:    cfg.Logger,
	}
}

// literal 处理IP字面量，返回 ok=false 表示需要查询
func literal(host string, ipVersion int) (netip.Addr, bool, error) {
	addr, err := netip.ParseAddr(strings.Trim(host, "[]"))
	if err != nil {
		return netip.Addr{}, false, nil
	}
	addr = addr.Unmap()
	if ipVersion == 6 && addr.Is4() {
		return netip.Addr{}, true, fmt.Errorf("%s 不是IPv6地址", host)
	}
	if ipVersion == 4 && !addr.Is4() {
		return netip.Addr{}, true, fmt.Errorf("%s 不是IPv4地址", host)
	}
	return addr, true, nil
}

type systemResolver struct {
	ipVersion int
}

func (r *systemResolver) Resolve(ctx context.Context, host string) (netip.Addr, error) {
	if addr, ok, err := literal(host, r.ipVersion); ok {
		return addr, err
	}
	network := "ip4"
	if r.ipVersion == 6 {
		network = "ip6"
	}
	addrs, err := net.DefaultResolver.LookupNetIP(ctx, network, host)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("解析 %s 失败: %w", host, err)
	}
	if len(addrs) == 0 {
		return netip.Addr{}, fmt.Errorf("%s: %w", host, ErrNoAddress)
	}
	return addrs[0].Unmap(), nil
}

type dnsResolver struct {
	server    string
	ipVersion int
	timeout   time.Duration
	logger    *zap.Logger
}

func (r *dnsResolver) Resolve(ctx context.Context, host string) (netip.Addr, error) {
	if addr, ok, err := literal(host, r.ipVersion); ok {
		return addr, err
	}

	qtype := dns.TypeA
	if r.ipVersion == 6 {
		qtype = dns.TypeAAAA
	}
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), qtype)
	msg.RecursionDesired = true

	resp, err := r.exchange(ctx, msg)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("向 %s 查询 %s 失败: %w", r.server, host, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return netip.Addr{}, fmt.Errorf("查询 %s 返回 %s", host, dns.RcodeToString[resp.Rcode])
	}

	addr, ok := pickAnswer(resp.Answer, dns.Fqdn(host), qtype)
	if !ok {
		return netip.Addr{}, fmt.Errorf("%s: %w", host, ErrNoAddress)
	}
	return addr, nil
}

// exchange 先用UDP，被截断时改用TCP重试
func (r *dnsResolver) exchange(ctx context.Context, msg *dns.Msg) (*dns.Msg, error) {
	resp, err := r.exchangeOver(ctx, "udp", msg)
	if err == nil && resp.Truncated {
		r.logger.Debug("udp truncated, retrying with tcp", zap.String("server", r.server))
		resp, err = r.exchangeOver(ctx, "tcp", msg)
	}
	return resp, err
}

func (r *dnsResolver) exchangeOver(ctx context.Context, network string, msg *dns.Msg) (*dns.Msg, error) {
	client := &dns.Client{Net: network, Timeout: r.timeout}
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < client.Timeout {
			client.Timeout = d
		}
	}
	resp, rtt, err := client.ExchangeContext(ctx, msg.Copy(), r.server)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("dns exchange",
		zap.String("transport", network),
		zap.String("server", r.server),
		zap.String("question", msg.Question[0].Name),
		zap.Duration("rtt", rtt),
		zap.Int("answers", len(resp.Answer)))
	return resp, nil
}

// pickAnswer 沿CNAME链查找第一个匹配类型的地址
func pickAnswer(answers []dns.RR, name string, qtype uint16) (netip.Addr, bool) {
	for hop := 0; hop < maxCNAMEHops; hop++ {
		next := ""
		for _, rr := range answers {
			if !strings.EqualFold(rr.Header().Name, name) {
				continue
			}
			switch v := rr.(type) {
			case *dns.A:
				if qtype == dns.TypeA {
					if addr, ok := netip.AddrFromSlice(v.A.To4()); ok {
						return addr, true
					}
				}
			case *dns.AAAA:
				if qtype == dns.TypeAAAA {
					if addr, ok := netip.AddrFromSlice(v.AAAA.To16()); ok {
						return addr, true
					}
				}
			case *dns.CNAME:
				next = v.Target
			}
		}
		if next == "" {
			return netip.Addr{}, false
		}
		name = next
	}
	return netip.Addr{}, false
}

// NormalizeServer 补全DNS服务器端口
func NormalizeServer(server string) string {
	server = strings.TrimSpace(server)
	if server == "" {
		return server
	}
	if strings.HasPrefix(server, "[") {
		if strings.Contains(server, "]:") {
			return server
		}
		return server + ":53"
	}
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	if strings.Contains(server, ":") {
		return "[" + server + "]:53"
	}
	return server + ":53"
}
