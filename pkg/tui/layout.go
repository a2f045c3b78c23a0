// Package tui 布局管理模块
package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Kevin-Rudy/pingwatch/pkg/session"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// 表单按钮顺序
const (
	buttonStart = iota
	buttonStop
	buttonClear
	buttonExport
)

const helpText = "[yellow]F5[white] Start  [yellow]F6[white] Stop  [yellow]F7[white] Clear  [yellow]F8[white] Export  [yellow]q[white] Quit"

// controls 各控件的可用状态
type controls struct {
	start    bool
	stop     bool
	clear    bool
	export   bool
	editable bool // 参数输入框
}

// controlsFor 运行中禁止开始、编辑和导出，只有运行中可以停止
func controlsFor(state session.State) controls {
	running := state != session.StateIdle
	return controls{
		start:    !running,
		stop:     state == session.StateRunning,
		clear:    true,
		export:   !running,
		editable: !running,
	}
}

// setupUI 设置用户界面布局
func (t *TUI) setupUI(initial session.Params) {
	t.hostField = newField("Host", initial.Target, 32, nil)
	t.timeoutField = newField("Timeout (ms)", millis(initial.Timeout), 8, tview.InputFieldInteger)
	t.sizeField = newField("Size (bytes)", strconv.Itoa(initial.PayloadSize), 8, tview.InputFieldInteger)
	t.intervalField = newField("Interval (ms)", millis(initial.Interval), 8, tview.InputFieldInteger)

	// 主机输入框回车直接开始
	t.hostField.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			t.startSession()
		}
	})

	t.form = tview.NewForm()
	t.form.AddFormItem(t.hostField)
	t.form.AddFormItem(t.timeoutField)
	t.form.AddFormItem(t.sizeField)
	t.form.AddFormItem(t.intervalField)
	t.form.AddButton("Start", t.startSession)
	t.form.AddButton("Stop", t.stopSession)
	t.form.AddButton("Clear", t.clearResults)
	t.form.AddButton("Export", t.exportResults)
	t.form.SetBorder(true)
	t.form.SetTitle(" pingwatch ")

	t.chart = tview.NewTextView()
	t.chart.SetWordWrap(false)
	t.chart.SetDynamicColors(true)
	t.chart.SetBorder(true)
	t.chart.SetTitle(" Latency ")

	t.results = tview.NewTextView()
	t.results.SetDynamicColors(true)
	t.results.SetScrollable(true)
	t.results.SetBorder(true)
	t.results.SetTitle(" Results ")

	t.statsLine = tview.NewTextView()
	t.statsLine.SetDynamicColors(true)
	t.statsLine.SetTextAlign(tview.AlignCenter)

	help := tview.NewTextView()
	help.SetDynamicColors(true)
	help.SetTextAlign(tview.AlignCenter)
	help.SetText(helpText)

	top := tview.NewFlex()
	top.SetDirection(tview.FlexColumn)
	top.AddItem(t.form, 46, 0, true)
	top.AddItem(t.chart, 0, 1, false)

	// 创建主垂直布局
	t.flex = tview.NewFlex()
	t.flex.SetDirection(tview.FlexRow)
	t.flex.AddItem(top, 13, 0, true)
	t.flex.AddItem(t.results, 0, 1, false)
	t.flex.AddItem(t.statsLine, 1, 0, false)
	t.flex.AddItem(help, 1, 0, false)

	t.render()
}

func newField(label, value string, width int, accept func(string, rune) bool) *tview.InputField {
	field := tview.NewInputField()
	field.SetLabel(label)
	field.SetText(value)
	field.SetFieldWidth(width)
	if accept != nil {
		field.SetAcceptanceFunc(accept)
	}
	return field
}

func millis(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}

// render 把缓冲区内容写入各控件，只能在UI goroutine中调用
func (t *TUI) render() {
	t.mu.Lock()
	rows := t.rows.Items()
	chartRows := t.chartLog.Items()
	stats := t.stats
	t.dirty = false
	t.mu.Unlock()

	state := session.StateIdle
	if t.ctrl != nil {
		state = t.ctrl.State()
	}
	t.applyControls(controlsFor(state))

	t.results.SetText(renderRows(rows))
	t.results.ScrollToEnd()
	t.chart.SetText(renderRows(chartRows))
	t.chart.ScrollToEnd()
	t.statsLine.SetText(fmt.Sprintf("[::b]%s", tview.Escape(stats.String())))
}

// applyControls 根据会话状态启用或禁用控件
func (t *TUI) applyControls(c controls) {
	t.mu.Lock()
	t.running = !c.start
	t.mu.Unlock()
	t.controls = c

	for _, field := range []*tview.InputField{t.hostField, t.timeoutField, t.sizeField, t.intervalField} {
		field.SetDisabled(!c.editable)
	}
	t.form.GetButton(buttonStart).SetDisabled(!c.start)
	t.form.GetButton(buttonStop).SetDisabled(!c.stop)
	t.form.GetButton(buttonClear).SetDisabled(!c.clear)
	t.form.GetButton(buttonExport).SetDisabled(!c.export)
}

func renderRows(rows []row) string {
	var sb strings.Builder
	for i, r := range rows {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "[%s]%s[-]", r.color, tview.Escape(r.text))
	}
	return sb.String()
}
