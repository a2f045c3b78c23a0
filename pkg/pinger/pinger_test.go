package pinger

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"syscall"
	"testing"
	"time"

	"github.com/Kevin-Rudy/pingwatch/pkg/core"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// stubResolver 固定返回一个地址
type stubResolver struct {
	addr netip.Addr
	err  error
}

func (s stubResolver) Resolve(ctx context.Context, host string) (netip.Addr, error) {
	return s.addr, s.err
}

// TestDefaultConfig 测试默认配置
func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	if config.IPVersion != 4 {
		t.Errorf("Expected IPVersion=4, got %d", config.IPVersion)
	}
	if config.ReadBufferSize != 65536 {
		t.Errorf("Expected ReadBufferSize=65536, got %d", config.ReadBufferSize)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
	if network, laddr := config.GetIPProtocol(); network != "ip4:icmp" || laddr != "0.0.0.0" {
		t.Errorf("Expected ip4:icmp on 0.0.0.0, got %s on %s", network, laddr)
	}
}

// TestConfigValidate 测试配置验证
func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"ipv4", Config{IPVersion: 4, ReadBufferSize: 1500}, false},
		{"ipv6", Config{IPVersion: 6, ReadBufferSize: 1500}, false},
		{"bad version", Config{IPVersion: 5, ReadBufferSize: 1500}, true},
		{"small buffer", Config{IPVersion: 4, ReadBufferSize: 100}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected wantErr=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

// TestOptions 测试选项模式
func TestOptions(t *testing.T) {
	config := DefaultConfig()
	r := stubResolver{addr: netip.MustParseAddr("::1")}
	for _, opt := range []Option{
		WithIPVersion(6),
		WithDNSServer("1.1.1.1"),
		WithReadBufferSize(4096),
		WithResolver(r),
	} {
		opt(config)
	}
	if network, _ := config.GetIPProtocol(); config.IPVersion != 6 || network != "ip6:ipv6-icmp" {
		t.Errorf("Expected IPv6 config, got %d", config.IPVersion)
	}
	if config.DNSServer != "1.1.1.1" {
		t.Errorf("Expected DNS server 1.1.1.1, got %s", config.DNSServer)
	}
	if config.ReadBufferSize != 4096 {
		t.Errorf("Expected ReadBufferSize=4096, got %d", config.ReadBufferSize)
	}
	if config.resolverOrDefault() != r {
		t.Error("Expected configured resolver to be used")
	}

	if _, err := NewProberWithOptions(WithIPVersion(5)); err == nil {
		t.Error("Expected error for invalid IP version")
	}
}

// TestBaseProberResolve 测试解析结果的IP版本检查
func TestBaseProberResolve(t *testing.T) {
	config := DefaultConfig()
	config.Resolver = stubResolver{addr: netip.MustParseAddr("2001:db8::1")}
	bp := newBaseProber(config)

	if _, err := bp.resolve(context.Background(), "example.com", time.Second); err == nil {
		t.Error("Expected error when IPv4 prober resolves an IPv6 address")
	}

	config.IPVersion = 6
	addr, err := bp.resolve(context.Background(), "example.com", time.Second)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if addr.String() != "2001:db8::1" {
		t.Errorf("Expected 2001:db8::1, got %s", addr)
	}

	config.Resolver = stubResolver{err: errors.New("no such host")}
	bp = newBaseProber(config)
	if _, err := bp.resolve(context.Background(), "example.com", time.Second); err == nil {
		t.Error("Expected resolver error to propagate")
	}
}

// TestBaseProberClosed 测试关闭后的探测请求
func TestBaseProberClosed(t *testing.T) {
	bp := newBaseProber(DefaultConfig())
	if err := bp.begin(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	bp.end()

	if !bp.markClosed() {
		t.Error("First markClosed should return true")
	}
	if bp.markClosed() {
		t.Error("Second markClosed should return false")
	}
	if err := bp.begin(); !errors.Is(err, core.ErrProberClosed) {
		t.Errorf("Expected ErrProberClosed, got %v", err)
	}
	bp.waitIdle()
}

// TestNextSeqWraps 测试序号按16位回绕
func TestNextSeqWraps(t *testing.T) {
	bp := newBaseProber(DefaultConfig())
	bp.seq.Store(0xfffe)
	if got := bp.nextSeq(); got != 0xffff {
		t.Errorf("Expected 0xffff, got %#x", got)
	}
	if got := bp.nextSeq(); got != 0 {
		t.Errorf("Expected wrap to 0, got %#x", got)
	}
}

func echoReply(t *testing.T, v6 bool, id, seq int) []byte {
	t.Helper()
	var typ icmp.Type = ipv4.ICMPTypeEchoReply
	if v6 {
		typ = ipv6.ICMPTypeEchoReply
	}
	b, err := (&icmp.Message{Type: typ, Body: &icmp.Echo{ID: id, Seq: seq, Data: []byte("XXXX")}}).Marshal(nil)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

// quoted4 构造差错报文引用的原始IPv4数据报
func quoted4(t *testing.T, id, seq int) []byte {
	t.Helper()
	echo, err := marshalEcho(false, id, seq, []byte("XXXX"))
	if err != nil {
		t.Fatalf("marshal echo: %v", err)
	}
	h := &ipv4.Header{
		Version:  4,
		Len:      ipv4.HeaderLen,
		TotalLen: ipv4.HeaderLen + len(echo),
		TTL:      1,
		Protocol: protocolICMP,
		Src:      net.IPv4(192, 0, 2, 1),
		Dst:      net.IPv4(198, 51, 100, 7),
	}
	hb, err := h.Marshal()
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}
	return append(hb, echo...)
}

func quoted6(t *testing.T, id, seq int) []byte {
	t.Helper()
	echo, err := marshalEcho(true, id, seq, []byte("XXXX"))
	if err != nil {
		t.Fatalf("marshal echo: %v", err)
	}
	hdr := make([]byte, ipv6.HeaderLen)
	hdr[0] = 0x60
	hdr[6] = protocolIPv6ICMP
	hdr[7] = 1
	return append(hdr, echo...)
}

// TestClassifyEchoReply 测试回显应答匹配
func TestClassifyEchoReply(t *testing.T) {
	tests := []struct {
		name    string
		v6      bool
		id, seq int
		matchID bool
		want    bool
	}{
		{"v4 match", false, 100, 7, true, true},
		{"v4 wrong seq", false, 100, 8, true, false},
		{"v4 wrong id", false, 101, 7, true, false},
		{"v4 id ignored", false, 101, 7, false, true},
		{"v6 match", true, 100, 7, true, true},
		{"v6 wrong seq", true, 100, 9, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := echoReply(t, tt.v6, tt.id, tt.seq)
			kind, ok := classifyReply(tt.v6, b, 100, 7, tt.matchID)
			if ok != tt.want {
				t.Fatalf("Expected match=%v, got %v", tt.want, ok)
			}
			if ok && kind != core.OutcomeSuccess {
				t.Errorf("Expected Success, got %s", kind)
			}
		})
	}
}

// TestClassifyIgnoresEchoRequest 原始套接字会收到本机发出的请求
func TestClassifyIgnoresEchoRequest(t *testing.T) {
	b, err := marshalEcho(false, 100, 7, []byte("XXXX"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := classifyReply(false, b, 100, 7, true); ok {
		t.Error("Echo request should not match")
	}
	if _, ok := classifyReply(false, []byte{0x01}, 100, 7, true); ok {
		t.Error("Truncated packet should not match")
	}
}

// TestClassifyErrors 测试ICMP差错报文的匹配与分类
func TestClassifyErrors(t *testing.T) {
	tests := []struct {
		name string
		v6   bool
		msg  *icmp.Message
		seq  int
		want core.OutcomeKind
		ok   bool
	}{
		{
			name: "v4 host unreachable",
			msg:  &icmp.Message{Type: ipv4.ICMPTypeDestinationUnreachable, Code: 1, Body: &icmp.DstUnreach{Data: quoted4(t, 100, 7)}},
			seq:  7, want: core.OutcomeDestinationHostUnreachable, ok: true,
		},
		{
			name: "v4 fragmentation needed",
			msg:  &icmp.Message{Type: ipv4.ICMPTypeDestinationUnreachable, Code: 4, Body: &icmp.DstUnreach{Data: quoted4(t, 100, 7)}},
			seq:  7, want: core.OutcomePacketTooBig, ok: true,
		},
		{
			name: "v4 ttl expired",
			msg:  &icmp.Message{Type: ipv4.ICMPTypeTimeExceeded, Code: 0, Body: &icmp.TimeExceeded{Data: quoted4(t, 100, 7)}},
			seq:  7, want: core.OutcomeTtlExpired, ok: true,
		},
		{
			name: "v4 other probe",
			msg:  &icmp.Message{Type: ipv4.ICMPTypeTimeExceeded, Code: 0, Body: &icmp.TimeExceeded{Data: quoted4(t, 100, 6)}},
			seq:  7, ok: false,
		},
		{
			name: "v6 no route",
			v6:   true,
			msg:  &icmp.Message{Type: ipv6.ICMPTypeDestinationUnreachable, Code: 0, Body: &icmp.DstUnreach{Data: quoted6(t, 100, 7)}},
			seq:  7, want: core.OutcomeDestinationNetworkUnreachable, ok: true,
		},
		{
			name: "v6 hop limit",
			v6:   true,
			msg:  &icmp.Message{Type: ipv6.ICMPTypeTimeExceeded, Code: 0, Body: &icmp.TimeExceeded{Data: quoted6(t, 100, 7)}},
			seq:  7, want: core.OutcomeTtlExpired, ok: true,
		},
		{
			name: "v6 packet too big",
			v6:   true,
			msg:  &icmp.Message{Type: ipv6.ICMPTypePacketTooBig, Body: &icmp.PacketTooBig{MTU: 1280, Data: quoted6(t, 100, 7)}},
			seq:  7, want: core.OutcomePacketTooBig, ok: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := tt.msg.Marshal(nil)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			kind, ok := classifyReply(tt.v6, b, 100, tt.seq, true)
			if ok != tt.ok {
				t.Fatalf("Expected match=%v, got %v", tt.ok, ok)
			}
			if ok && kind != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, kind)
			}
		})
	}
}

// TestOutcomeFromICMPv4 测试ICMPv4类型映射
func TestOutcomeFromICMPv4(t *testing.T) {
	tests := []struct {
		typ, code int
		want      core.OutcomeKind
		ok        bool
	}{
		{0, 0, core.OutcomeSuccess, true},
		{3, 0, core.OutcomeDestinationNetworkUnreachable, true},
		{3, 3, core.OutcomeDestinationPortUnreachable, true},
		{3, 13, core.OutcomeDestinationUnreachable, true},
		{4, 0, core.OutcomeSourceQuench, true},
		{5, 1, core.OutcomeUnrecognized, false},
		{11, 1, core.OutcomeTtlReassemblyTimeExceeded, true},
		{12, 0, core.OutcomeParameterProblem, true},
		{40, 0, core.OutcomeIcmpError, true},
	}
	for _, tt := range tests {
		got, ok := outcomeFromICMPv4(tt.typ, tt.code)
		if got != tt.want || ok != tt.ok {
			t.Errorf("type=%d code=%d: expected %s/%v, got %s/%v", tt.typ, tt.code, tt.want, tt.ok, got, ok)
		}
	}
}

// TestStripIPv4Header 测试IPv4头剥离
func TestStripIPv4Header(t *testing.T) {
	b := quoted4(t, 1, 2)
	stripped := stripIPv4Header(b)
	if len(stripped) != len(b)-ipv4.HeaderLen {
		t.Errorf("Expected %d bytes, got %d", len(b)-ipv4.HeaderLen, len(stripped))
	}
	if stripped[0] != byte(ipv4.ICMPTypeEcho) {
		t.Errorf("Expected echo type after strip, got %d", stripped[0])
	}

	reply := echoReply(t, false, 1, 2)
	if got := stripIPv4Header(reply); len(got) != len(reply) {
		t.Error("Bare ICMP message should be left untouched")
	}
}

// TestOutcomeFromSendError 测试发送错误映射
func TestOutcomeFromSendError(t *testing.T) {
	tests := []struct {
		err  error
		want core.OutcomeKind
		ok   bool
	}{
		{syscall.EMSGSIZE, core.OutcomePacketTooBig, true},
		{&net.OpError{Op: "write", Err: syscall.EHOSTUNREACH}, core.OutcomeDestinationHostUnreachable, true},
		{syscall.ENETUNREACH, core.OutcomeDestinationNetworkUnreachable, true},
		{errors.New("boom"), core.OutcomeUnrecognized, false},
	}
	for _, tt := range tests {
		got, ok := outcomeFromSendError(tt.err)
		if got != tt.want || ok != tt.ok {
			t.Errorf("%v: expected %s/%v, got %s/%v", tt.err, tt.want, tt.ok, got, ok)
		}
	}
}

// TestAddrFromNet 测试地址转换
func TestAddrFromNet(t *testing.T) {
	if got := addrFromNet(&net.IPAddr{IP: net.IPv4(10, 0, 0, 1)}); got.String() != "10.0.0.1" {
		t.Errorf("Expected 10.0.0.1, got %s", got)
	}
	if got := addrFromNet(&net.UDPAddr{IP: net.ParseIP("2001:db8::2")}); got.String() != "2001:db8::2" {
		t.Errorf("Expected 2001:db8::2, got %s", got)
	}
	if got := addrFromNet(nil); got.IsValid() {
		t.Errorf("Expected invalid address, got %s", got)
	}
}

// TestNewProber 测试创建探测器（依赖权限，失败时跳过）
func TestNewProber(t *testing.T) {
	config := DefaultConfig()
	config.Resolver = stubResolver{addr: netip.MustParseAddr("127.0.0.1")}
	p, err := NewProber(config)
	if err != nil {
		t.Skipf("ICMP socket unavailable: %v", err)
	}

	out, err := p.Probe(context.Background(), "127.0.0.1", time.Second, []byte("XXXXXXXX"), core.DefaultProbeOptions())
	if err != nil {
		t.Logf("Info: probe failed: %v", err)
	} else if out.Status == core.OutcomeSuccess && out.Address.String() != "127.0.0.1" {
		t.Errorf("Expected reply from 127.0.0.1, got %s", out.Address)
	}

	if err := p.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Second Close should be a no-op: %v", err)
	}
	if _, err := p.Probe(context.Background(), "127.0.0.1", time.Second, nil, core.DefaultProbeOptions()); !errors.Is(err, core.ErrProberClosed) {
		t.Errorf("Expected ErrProberClosed after Close, got %v", err)
	}
}

// TestGetSystemInfo 测试系统信息
func TestGetSystemInfo(t *testing.T) {
	osName, privilegeStatus, implementationType := GetSystemInfo()
	if osName == "" || privilegeStatus == "" || implementationType == "" {
		t.Errorf("Expected non-empty system info, got %q %q %q", osName, privilegeStatus, implementationType)
	}
	if GetOSName() != osName {
		t.Error("GetOSName mismatch")
	}
}
