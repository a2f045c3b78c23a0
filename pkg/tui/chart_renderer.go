// Package tui 图表渲染模块
package tui

import (
	"fmt"
	"strings"

	"github.com/Kevin-Rudy/pingwatch/pkg/core"
)

// chartRow 每次观测一行：序号、按延迟缩放的竖线、延迟
//
//	0001: ||||| 25ms
//	0002: timeout
func (t *TUI) chartRow(obs core.Observation) row {
	if !obs.Success() {
		return row{text: fmt.Sprintf("%04d: timeout", obs.Sequence), color: "gray"}
	}
	return row{
		text:  chartText(obs.Sequence, obs.RoundTripMillis, t.tuiConfig.MsPerBar, t.tuiConfig.MaxBars),
		color: latencyColor(obs.RoundTripMillis, t.tuiConfig.FastThreshold, t.tuiConfig.SlowThreshold),
	}
}

func chartText(seq int, rtt int64, msPerBar, maxBars int) string {
	bars := min(int(rtt)/msPerBar, maxBars)
	return fmt.Sprintf("%04d: %s %dms", seq, strings.Repeat("|", bars), rtt)
}
