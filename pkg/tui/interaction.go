// Package tui 交互控制模块
package tui

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/Kevin-Rudy/pingwatch/pkg/core"
	"github.com/Kevin-Rudy/pingwatch/pkg/export"
	"github.com/Kevin-Rudy/pingwatch/pkg/session"
	"github.com/Kevin-Rudy/pingwatch/pkg/validator"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// setupKeyBindings 设置键盘绑定
func (t *TUI) setupKeyBindings() {
	t.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlC:
			t.Stop()
			return nil
		case tcell.KeyF5:
			t.startSession()
			return nil
		case tcell.KeyF6:
			t.stopSession()
			return nil
		case tcell.KeyF7:
			t.clearResults()
			return nil
		case tcell.KeyF8:
			t.exportResults()
			return nil
		case tcell.KeyRune:
			// 输入框获得焦点时字母按键属于输入内容
			if _, editing := t.app.GetFocus().(*tview.InputField); editing {
				return event
			}
			switch event.Rune() {
			case 'q', 'Q':
				t.Stop()
				return nil
			}
		}
		return event
	})
}

// startSession 校验表单并启动会话
func (t *TUI) startSession() {
	if !t.controls.start {
		return
	}
	p, problem := t.readParams()
	if problem != "" {
		t.appendLog(problem)
		t.render()
		return
	}

	// 新会话从空列表开始，图表保留到清除为止
	t.mu.Lock()
	t.rows.Reset()
	t.stats = core.Statistics{}
	t.mu.Unlock()

	if err := t.ctrl.Start(p); err != nil {
		t.appendLog("Error: " + err.Error())
	}
	t.render()
}

// readParams 读取表单，出错时返回给用户看的提示
func (t *TUI) readParams() (session.Params, string) {
	host := validator.NormalizeHost(t.hostField.GetText())
	if err := validator.ValidateHost(host); err != nil {
		return session.Params{}, "Please enter a valid hostname or IP address."
	}
	timeout, err := validator.ParseTimeout(t.timeoutField.GetText())
	if err != nil {
		return session.Params{}, fmt.Sprintf("Timeout must be between %d and %d milliseconds.",
			validator.MinTimeoutMillis, validator.MaxTimeoutMillis)
	}
	size, err := validator.ParsePayloadSize(t.sizeField.GetText())
	if err != nil {
		return session.Params{}, fmt.Sprintf("Buffer size must be between %d and %d bytes.",
			validator.MinPayloadSize, validator.MaxPayloadSize)
	}
	interval, err := validator.ParseInterval(t.intervalField.GetText())
	if err != nil {
		return session.Params{}, fmt.Sprintf("Interval must be between %d and %d milliseconds.",
			validator.MinIntervalMillis, validator.MaxIntervalMillis)
	}
	return session.ParamsFromMillis(host, timeout, size, interval), ""
}

// stopSession 请求停止，结束日志由会话引擎输出
func (t *TUI) stopSession() {
	if !t.controls.stop {
		return
	}
	t.ctrl.Stop()
	t.render()
}

// clearResults 清空账本、结果列表、图表和统计
func (t *TUI) clearResults() {
	t.ctrl.Clear()

	t.mu.Lock()
	t.rows.Reset()
	t.chartLog.Reset()
	t.stats = core.Statistics{}
	t.dirty = true
	t.mu.Unlock()

	t.render()
}

// exportResults 将账本写入导出目录
func (t *TUI) exportResults() {
	if !t.controls.export {
		return
	}
	snapshot := t.ctrl.Snapshot()
	path := filepath.Join(t.tuiConfig.ExportDir, export.DefaultFileName(t.now()))

	err := export.SaveFile(path, snapshot)
	switch {
	case errors.Is(err, export.ErrNothingToExport):
		t.appendLog(err.Error())
	case err != nil:
		t.appendLog("Failed to export: " + err.Error())
	default:
		t.appendLog(export.LogLine(len(snapshot), path))
	}
	t.render()
}
