package core

import "fmt"

// OutcomeKind 探测结果分类，名称即导出与显示使用的状态名
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeTimedOut
	OutcomeDestinationNetworkUnreachable
	OutcomeDestinationHostUnreachable
	OutcomeDestinationProtocolUnreachable
	OutcomeDestinationPortUnreachable
	OutcomeNoResources
	OutcomeBadOption
	OutcomeHardwareError
	OutcomePacketTooBig
	OutcomeBadRoute
	OutcomeTtlExpired
	OutcomeTtlReassemblyTimeExceeded
	OutcomeParameterProblem
	OutcomeSourceQuench
	OutcomeBadDestination
	OutcomeDestinationUnreachable
	OutcomeTimeExceeded
	OutcomeBadHeader
	OutcomeUnrecognizedNextHeader
	OutcomeIcmpError
	OutcomeDestinationScopeMismatch
	// OutcomeIndeterminate 探测层自身抛出的错误，沿用旧导出文件中的 "Unknown"
	OutcomeIndeterminate
	// OutcomeUnrecognized 平台返回了无法映射的状态码
	OutcomeUnrecognized
)

var outcomeNames = [...]string{
	OutcomeSuccess:                        "Success",
	OutcomeTimedOut:                       "TimedOut",
	OutcomeDestinationNetworkUnreachable:  "DestinationNetworkUnreachable",
	OutcomeDestinationHostUnreachable:     "DestinationHostUnreachable",
	OutcomeDestinationProtocolUnreachable: "DestinationProtocolUnreachable",
	OutcomeDestinationPortUnreachable:     "DestinationPortUnreachable",
	OutcomeNoResources:                    "NoResources",
	OutcomeBadOption:                      "BadOption",
	OutcomeHardwareError:                  "HardwareError",
	OutcomePacketTooBig:                   "PacketTooBig",
	OutcomeBadRoute:                       "BadRoute",
	OutcomeTtlExpired:                     "TtlExpired",
	OutcomeTtlReassemblyTimeExceeded:      "TtlReassemblyTimeExceeded",
	OutcomeParameterProblem:               "ParameterProblem",
	OutcomeSourceQuench:                   "SourceQuench",
	OutcomeBadDestination:                 "BadDestination",
	OutcomeDestinationUnreachable:         "DestinationUnreachable",
	OutcomeTimeExceeded:                   "TimeExceeded",
	OutcomeBadHeader:                      "BadHeader",
	OutcomeUnrecognizedNextHeader:         "UnrecognizedNextHeader",
	OutcomeIcmpError:                      "IcmpError",
	OutcomeDestinationScopeMismatch:       "DestinationScopeMismatch",
	OutcomeIndeterminate:                  "Unknown",
	OutcomeUnrecognized:                   "Unrecognized",
}

// String 返回状态名
func (k OutcomeKind) String() string {
	if k >= 0 && int(k) < len(outcomeNames) {
		return outcomeNames[k]
	}
	return fmt.Sprintf("OutcomeKind(%d)", int(k))
}

// MarshalText 以状态名序列化
func (k OutcomeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText 从状态名解析
func (k *OutcomeKind) UnmarshalText(text []byte) error {
	v, err := ParseOutcomeKind(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// ParseOutcomeKind 将状态名解析回 OutcomeKind
func ParseOutcomeKind(name string) (OutcomeKind, error) {
	for i, n := range outcomeNames {
		if n == name {
			return OutcomeKind(i), nil
		}
	}
	return OutcomeUnrecognized, fmt.Errorf("未知的状态名: %q", name)
}

// Windows IP_STATUS 代码
var ipStatusCodes = map[uint32]OutcomeKind{
	0:     OutcomeSuccess,
	11002: OutcomeDestinationNetworkUnreachable,
	11003: OutcomeDestinationHostUnreachable,
	11004: OutcomeDestinationProtocolUnreachable,
	11005: OutcomeDestinationPortUnreachable,
	11006: OutcomeNoResources,
	11007: OutcomeBadOption,
	11008: OutcomeHardwareError,
	11009: OutcomePacketTooBig,
	11010: OutcomeTimedOut,
	11012: OutcomeBadRoute,
	11013: OutcomeTtlExpired,
	11014: OutcomeTtlReassemblyTimeExceeded,
	11015: OutcomeParameterProblem,
	11016: OutcomeSourceQuench,
	11018: OutcomeBadDestination,
	11040: OutcomeDestinationUnreachable,
	11041: OutcomeTimeExceeded,
	11042: OutcomeBadHeader,
	11043: OutcomeUnrecognizedNextHeader,
	11044: OutcomeIcmpError,
	11045: OutcomeDestinationScopeMismatch,
}

// OutcomeFromIPStatus 将平台 IP_STATUS 代码映射为 OutcomeKind
func OutcomeFromIPStatus(code uint32) OutcomeKind {
	if k, ok := ipStatusCodes[code]; ok {
		return k
	}
	return OutcomeUnrecognized
}
