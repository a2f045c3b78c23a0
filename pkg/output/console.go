// Package output 控制台输出，无界面模式下使用
package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/Kevin-Rudy/pingwatch/pkg/core"
	"github.com/Kevin-Rudy/pingwatch/pkg/retention"
	"github.com/charmbracelet/lipgloss"
)

// Console 实现core.ResultSink，逐行输出观测结果
// 日志行同时保存在一个有界缓冲区中，和界面日志使用相同的保留策略
type Console struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
	log *retention.Buffer[string]

	success lipgloss.Style
	failure lipgloss.Style
	info    lipgloss.Style
	errLine lipgloss.Style
	stats   lipgloss.Style
}

// NewConsole 创建控制台输出，颜色能力按 w 检测
func NewConsole(w io.Writer) *Console {
	r := lipgloss.NewRenderer(w)
	return &Console{
		w:       w,
		now:     time.Now,
		log:     retention.New[string](retention.DefaultCapacity),
		success: r.NewStyle().Foreground(lipgloss.Color("42")),
		failure: r.NewStyle().Foreground(lipgloss.Color("196")),
		info:    r.NewStyle().Foreground(lipgloss.Color("252")),
		errLine: r.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		stats:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
	}
}

func (c *Console) OnObservation(obs core.Observation, _ core.Statistics) {
	style := c.success
	if !obs.Success() {
		style = c.failure
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, style.Render(obs.String()))
}

func (c *Console) OnLogLine(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	formatted := core.FormatLogLine(c.now(), line)
	c.log.Push(formatted)

	style := c.info
	if strings.HasPrefix(line, "Error:") {
		style = c.errLine
	}
	fmt.Fprintln(c.w, style.Render(formatted))
}

// PrintStatistics 输出统计行
func (c *Console) PrintStatistics(stats core.Statistics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, c.stats.Render(stats.String()))
}

// LogLines 返回保留的日志行
func (c *Console) LogLines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.log.Items()
}

// StopAfter 在收到第 n 条观测后调用一次 stop
type StopAfter struct {
	n    int
	stop func()
	once sync.Once
}

// NewStopAfter n<=0 时永不触发
func NewStopAfter(n int, stop func()) *StopAfter {
	return &StopAfter{n: n, stop: stop}
}

func (s *StopAfter) OnObservation(obs core.Observation, _ core.Statistics) {
	if s.n > 0 && obs.Sequence >= s.n {
		s.once.Do(s.stop)
	}
}

func (s *StopAfter) OnLogLine(string) {}
