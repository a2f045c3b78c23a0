package core

import "fmt"

// Statistics 表示账本当前内容的汇总统计
// 每次账本变化后由 ComputeStatistics 重新计算，不维护增量累加器
type Statistics struct {
	Sent        int     // 账本中的记录数
	Received    int     // 成功记录数
	LossPercent float64 // (Sent-Received)/Sent*100，Sent为0时为0
	MinRTT      int64   // 成功记录的最小往返时间
	MaxRTT      int64   // 成功记录的最大往返时间
	AvgRTT      float64 // 成功记录的平均往返时间
	HasRTT      bool    // 至少有一条成功记录时为true
}

// ComputeStatistics 从有序的观测记录计算统计数据
func ComputeStatistics(observations []Observation) Statistics {
	var s Statistics
	s.Sent = len(observations)
	if s.Sent == 0 {
		return s
	}

	var sum int64
	for _, o := range observations {
		if !o.Success() {
			continue
		}
		rtt := o.RoundTripMillis
		if !s.HasRTT {
			s.MinRTT, s.MaxRTT = rtt, rtt
			s.HasRTT = true
		} else {
			if rtt < s.MinRTT {
				s.MinRTT = rtt
			}
			if rtt > s.MaxRTT {
				s.MaxRTT = rtt
			}
		}
		sum += rtt
		s.Received++
	}

	s.LossPercent = float64(s.Sent-s.Received) / float64(s.Sent) * 100
	if s.Received > 0 {
		s.AvgRTT = float64(sum) / float64(s.Received)
	}
	return s
}

// String 返回统计行
func (s Statistics) String() string {
	if s.Sent == 0 {
		return "Packets: 0 sent, 0 received, 0% loss | Min: -ms, Max: -ms, Avg: -ms"
	}
	head := fmt.Sprintf("Packets: %d sent, %d received, %.1f%% loss | ", s.Sent, s.Received, s.LossPercent)
	if !s.HasRTT {
		return head + "Min: -ms, Max: -ms, Avg: -ms"
	}
	return head + fmt.Sprintf("Min: %dms, Max: %dms, Avg: %.1fms", s.MinRTT, s.MaxRTT, s.AvgRTT)
}
