package pinger

import (
	"encoding/binary"
	"errors"
	"net"
	"net/netip"
	"os"
	"syscall"

	"github.com/Kevin-Rudy/pingwatch/pkg/core"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// IANA协议号
const (
	protocolICMP     = 1
	protocolIPv6ICMP = 58
)

// marshalEcho 构造回显请求报文
// IPv6校验和由内核填写
func marshalEcho(v6 bool, id, seq int, payload []byte) ([]byte, error) {
	var typ icmp.Type = ipv4.ICMPTypeEcho
	if v6 {
		typ = ipv6.ICMPTypeEchoRequest
	}
	msg := &icmp.Message{
		Type: typ,
		Code: 0,
		Body: &icmp.Echo{
			ID:   id,
			Seq:  seq,
			Data: payload,
		},
	}
	return msg.Marshal(nil)
}

// classifyReply 判断收到的报文是否属于本次探测
// matchID 为false时只比较序号（DGRAM套接字的ID由内核改写）
func classifyReply(v6 bool, b []byte, id, seq int, matchID bool) (core.OutcomeKind, bool) {
	proto := protocolICMP
	if v6 {
		proto = protocolIPv6ICMP
	}
	msg, err := icmp.ParseMessage(proto, b)
	if err != nil {
		return core.OutcomeUnrecognized, false
	}

	switch body := msg.Body.(type) {
	case *icmp.Echo:
		if msg.Type != ipv4.ICMPTypeEchoReply && msg.Type != ipv6.ICMPTypeEchoReply {
			return core.OutcomeUnrecognized, false
		}
		if body.Seq != seq || (matchID && body.ID != id) {
			return core.OutcomeUnrecognized, false
		}
		return core.OutcomeSuccess, true
	case *icmp.DstUnreach:
		return matchQuoted(v6, msg, body.Data, id, seq, matchID)
	case *icmp.TimeExceeded:
		return matchQuoted(v6, msg, body.Data, id, seq, matchID)
	case *icmp.ParamProb:
		return matchQuoted(v6, msg, body.Data, id, seq, matchID)
	case *icmp.PacketTooBig:
		return matchQuoted(v6, msg, body.Data, id, seq, matchID)
	}
	return core.OutcomeUnrecognized, false
}

func matchQuoted(v6 bool, msg *icmp.Message, data []byte, id, seq int, matchID bool) (core.OutcomeKind, bool) {
	var (
		qid, qseq int
		ok        bool
	)
	if v6 {
		qid, qseq, ok = quotedEcho6(data)
	} else {
		qid, qseq, ok = quotedEcho4(data)
	}
	if !ok || qseq != seq || (matchID && qid != id) {
		return core.OutcomeUnrecognized, false
	}
	return outcomeFromMessage(msg)
}

func outcomeFromMessage(msg *icmp.Message) (core.OutcomeKind, bool) {
	switch t := msg.Type.(type) {
	case ipv4.ICMPType:
		return outcomeFromICMPv4(int(t), msg.Code)
	case ipv6.ICMPType:
		return outcomeFromICMPv6(int(t), msg.Code)
	}
	return core.OutcomeIcmpError, true
}

// outcomeFromICMPv4 将ICMPv4差错类型映射为结果，重定向等非差错报文返回false
func outcomeFromICMPv4(typ, code int) (core.OutcomeKind, bool) {
	switch typ {
	case 0:
		return core.OutcomeSuccess, true
	case 3:
		switch code {
		case 0, 6, 9, 11:
			return core.OutcomeDestinationNetworkUnreachable, true
		case 1, 7, 10, 12:
			return core.OutcomeDestinationHostUnreachable, true
		case 2:
			return core.OutcomeDestinationProtocolUnreachable, true
		case 3:
			return core.OutcomeDestinationPortUnreachable, true
		case 4:
			return core.OutcomePacketTooBig, true
		case 5:
			return core.OutcomeBadRoute, true
		default:
			return core.OutcomeDestinationUnreachable, true
		}
	case 4:
		return core.OutcomeSourceQuench, true
	case 5:
		return core.OutcomeUnrecognized, false
	case 11:
		if code == 1 {
			return core.OutcomeTtlReassemblyTimeExceeded, true
		}
		return core.OutcomeTtlExpired, true
	case 12:
		return core.OutcomeParameterProblem, true
	}
	return core.OutcomeIcmpError, true
}

// outcomeFromICMPv6 将ICMPv6差错类型映射为结果
func outcomeFromICMPv6(typ, code int) (core.OutcomeKind, bool) {
	switch typ {
	case 129:
		return core.OutcomeSuccess, true
	case 1:
		switch code {
		case 0:
			return core.OutcomeDestinationNetworkUnreachable, true
		case 2:
			return core.OutcomeDestinationScopeMismatch, true
		case 3:
			return core.OutcomeDestinationHostUnreachable, true
		case 4:
			return core.OutcomeDestinationPortUnreachable, true
		default:
			return core.OutcomeDestinationUnreachable, true
		}
	case 2:
		return core.OutcomePacketTooBig, true
	case 3:
		if code == 1 {
			return core.OutcomeTtlReassemblyTimeExceeded, true
		}
		return core.OutcomeTtlExpired, true
	case 4:
		switch code {
		case 0:
			return core.OutcomeBadHeader, true
		case 1:
			return core.OutcomeUnrecognizedNextHeader, true
		case 2:
			return core.OutcomeBadOption, true
		default:
			return core.OutcomeParameterProblem, true
		}
	case 137:
		return core.OutcomeUnrecognized, false
	}
	return core.OutcomeIcmpError, true
}

// quotedEcho4 从差错报文引用的原始IPv4数据报中取出回显请求的ID和序号
func quotedEcho4(data []byte) (id, seq int, ok bool) {
	if len(data) < ipv4.HeaderLen || data[0]>>4 != 4 {
		return 0, 0, false
	}
	hlen := int(data[0]&0x0f) << 2
	if hlen < ipv4.HeaderLen || len(data) < hlen+8 || data[9] != protocolICMP {
		return 0, 0, false
	}
	echo := data[hlen:]
	if echo[0] != byte(ipv4.ICMPTypeEcho) {
		return 0, 0, false
	}
	return int(binary.BigEndian.Uint16(echo[4:6])), int(binary.BigEndian.Uint16(echo[6:8])), true
}

// quotedEcho6 从差错报文引用的原始IPv6数据报中取出回显请求的ID和序号
func quotedEcho6(data []byte) (id, seq int, ok bool) {
	if len(data) < ipv6.HeaderLen+8 || data[0]>>4 != 6 || data[6] != protocolIPv6ICMP {
		return 0, 0, false
	}
	echo := data[ipv6.HeaderLen:]
	if echo[0] != byte(ipv6.ICMPTypeEchoRequest) {
		return 0, 0, false
	}
	return int(binary.BigEndian.Uint16(echo[4:6])), int(binary.BigEndian.Uint16(echo[6:8])), true
}

// stripIPv4Header 某些平台的原始套接字读取结果包含IPv4头
// ICMP类型不会以0x4开头，可据此判断
func stripIPv4Header(b []byte) []byte {
	if len(b) < ipv4.HeaderLen || b[0]>>4 != 4 {
		return b
	}
	hlen := int(b[0]&0x0f) << 2
	if hlen < ipv4.HeaderLen || len(b) < hlen {
		return b
	}
	return b[hlen:]
}

// outcomeFromSendError 将发送阶段的系统错误映射为结果
func outcomeFromSendError(err error) (core.OutcomeKind, bool) {
	switch {
	case errors.Is(err, syscall.EMSGSIZE):
		return core.OutcomePacketTooBig, true
	case errors.Is(err, syscall.EHOSTUNREACH):
		return core.OutcomeDestinationHostUnreachable, true
	case errors.Is(err, syscall.ENETUNREACH):
		return core.OutcomeDestinationNetworkUnreachable, true
	case errors.Is(err, syscall.ENOBUFS):
		return core.OutcomeNoResources, true
	}
	return core.OutcomeUnrecognized, false
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// addrFromNet 将net.Addr转换为netip.Addr
func addrFromNet(a net.Addr) netip.Addr {
	var ip net.IP
	switch v := a.(type) {
	case *net.IPAddr:
		ip = v.IP
	case *net.UDPAddr:
		ip = v.IP
	default:
		return netip.Addr{}
	}
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}
	}
	return addr.Unmap()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
