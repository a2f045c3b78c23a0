// Package tui 提供交互式终端界面
// 界面本身是一个 core.ResultSink，通过 Controller 驱动会话引擎
package tui

import (
	"sync"
	"time"

	"github.com/Kevin-Rudy/pingwatch/pkg/core"
	"github.com/Kevin-Rudy/pingwatch/pkg/retention"
	"github.com/Kevin-Rudy/pingwatch/pkg/session"
	"github.com/rivo/tview"
)

// Controller 界面需要的会话引擎操作
type Controller interface {
	Start(p session.Params) error
	Stop()
	Clear()
	Snapshot() []core.Observation
	Statistics() core.Statistics
	State() session.State
	Params() session.Params
}

// row 列表中的一行，渲染时再加颜色
type row struct {
	text  string
	color string
}

// TUI 主界面结构
type TUI struct {
	app           *tview.Application
	form          *tview.Form
	hostField     *tview.InputField
	timeoutField  *tview.InputField
	sizeField     *tview.InputField
	intervalField *tview.InputField
	results       *tview.TextView
	chart         *tview.TextView
	statsLine     *tview.TextView
	flex          *tview.Flex
	ctrl          Controller

	// 配置信息
	tuiConfig *Config
	now       func() time.Time

	// 显示数据，由会话goroutine写入、UI goroutine读取
	mu       sync.Mutex
	rows     *retention.Buffer[row] // 结果与日志共用一个列表
	chartLog *retention.Buffer[row]
	stats    core.Statistics
	dirty    bool

	// 界面状态
	running  bool // 受 mu 保护
	controls controls

	// 控制
	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once

	// 测试模式标志
	testMode bool
}

// NewTUI 创建新的TUI实例，表单以 initial 作为初始值
func NewTUI(ctrl Controller, tuiConfig *Config, initial session.Params) *TUI {
	t := newTUI(ctrl, tuiConfig, initial)
	t.app.SetRoot(t.flex, true)
	t.setupKeyBindings()
	return t
}

// NewTUIForTest 创建用于测试的TUI实例（不运行应用，不调度绘制）
func NewTUIForTest(ctrl Controller, tuiConfig *Config, initial session.Params) *TUI {
	t := newTUI(ctrl, tuiConfig, initial)
	t.testMode = true
	return t
}

func newTUI(ctrl Controller, tuiConfig *Config, initial session.Params) *TUI {
	if tuiConfig == nil {
		tuiConfig = DefaultConfig()
	}
	t := &TUI{
		app:       tview.NewApplication(),
		ctrl:      ctrl,
		tuiConfig: tuiConfig,
		now:       time.Now,
		rows:      retention.New[row](retention.DefaultCapacity), // 与账本保留数一致
		chartLog:  retention.New[row](retention.DefaultCapacity),
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
	t.setupUI(initial)
	return t
}

// Run 启动TUI界面，阻塞到界面退出
func (t *TUI) Run() error {
	// 启动刷新goroutine
	go t.processData()

	err := t.app.Run()

	// 确保清理工作完成
	t.Stop()
	<-t.doneChan

	return err
}

// Stop 停止TUI界面，会话本身由调用方负责停止
func (t *TUI) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopChan)
		t.app.Stop()
	})
}

// OnObservation 实现 core.ResultSink
func (t *TUI) OnObservation(obs core.Observation, stats core.Statistics) {
	color := "red"
	if obs.Success() {
		color = "green"
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows.Push(row{text: obs.String(), color: color})
	t.chartLog.Push(t.chartRow(obs))
	t.stats = stats
	t.dirty = true
}

// OnLogLine 实现 core.ResultSink
func (t *TUI) OnLogLine(line string) {
	t.appendLog(line)
}

func (t *TUI) appendLog(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows.Push(row{text: core.FormatLogLine(t.now(), message), color: logColor(message)})
	t.dirty = true
}

// processData 按固定间隔把缓冲区的数据刷新到界面
func (t *TUI) processData() {
	defer close(t.doneChan)

	uiTicker := time.NewTicker(t.tuiConfig.RefreshInterval)
	defer uiTicker.Stop()

	// 初始UI刷新
	t.safeUIUpdate(t.render)

	for {
		select {
		case <-uiTicker.C:
			t.handleUIRefresh()
		case <-t.stopChan:
			return
		}
	}
}

// handleUIRefresh 有新数据或会话状态变化时重绘
func (t *TUI) handleUIRefresh() {
	running := t.ctrl.State() != session.StateIdle

	t.mu.Lock()
	changed := t.dirty || running != t.running
	t.mu.Unlock()

	if !changed {
		return
	}
	if t.testMode {
		t.render()
		return
	}
	t.safeUIUpdate(t.render)
}

// safeUIUpdate 安全地执行UI更新操作
func (t *TUI) safeUIUpdate(updateFunc func()) {
	if t.testMode {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			// 如果应用已经停止，忽略panic
		}
	}()
	t.app.QueueUpdateDraw(updateFunc)
}
