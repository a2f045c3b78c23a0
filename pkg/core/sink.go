package core

import (
	"fmt"
	"time"
)

// ResultSink 接收会话产生的观测结果和日志行
// 调用发生在会话后台goroutine中，实现者自行负责切换到UI线程
type ResultSink interface {
	// OnObservation 每次探测完成后按序号顺序调用一次
	OnObservation(obs Observation, stats Statistics)

	// OnLogLine 会话生命周期消息（开始、停止、错误）
	OnLogLine(line string)
}

// NopSink 丢弃所有结果
type NopSink struct{}

func (NopSink) OnObservation(Observation, Statistics) {}
func (NopSink) OnLogLine(string)                      {}

// MultiSink 将结果依次分发给多个Sink
type MultiSink []ResultSink

// NewMultiSink 过滤掉nil后组合多个Sink
func NewMultiSink(sinks ...ResultSink) MultiSink {
	out := make(MultiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m MultiSink) OnObservation(obs Observation, stats Statistics) {
	for _, s := range m {
		s.OnObservation(obs, stats)
	}
}

func (m MultiSink) OnLogLine(line string) {
	for _, s := range m {
		s.OnLogLine(line)
	}
}

// FormatLogLine 为日志消息加上 [HH:mm:ss] 前缀
func FormatLogLine(at time.Time, message string) string {
	return fmt.Sprintf("[%s] %s", at.Format(LogTimeLayout), message)
}
