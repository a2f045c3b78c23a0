// Package session 实现探测会话引擎
// 引擎在后台goroutine中周期性调用 Prober，维护有界账本并在每次变化后重新计算统计
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Kevin-Rudy/pingwatch/pkg/core"
	"github.com/Kevin-Rudy/pingwatch/pkg/retention"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	stoppedLine = "Ping stopped by user."
	payloadByte = 'X' // 负载填充字节
)

var (
	// ErrSessionActive 会话正在运行或停止中
	ErrSessionActive = errors.New("会话已在运行")
	// ErrInvalidParams 启动参数不合法
	ErrInvalidParams = errors.New("启动参数不合法")
)

// State 会话状态
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Engine 探测会话引擎
// 同一时刻最多一个会话、最多一个在途探测；所有可变状态由 mu 保护
// deliverMu 串行化对 sink 的投递与 Start/Clear，持有顺序为 deliverMu 在 mu 之前
type Engine struct {
	prober    core.Prober
	sink      core.ResultSink
	logger    *zap.Logger
	capacity  int
	now       func() time.Time
	probeOpts core.ProbeOptions
	validate  func(Params) error

	deliverMu sync.Mutex

	mu         sync.Mutex
	ledger     *retention.Buffer[core.Observation]
	stats      core.Statistics
	lastSeq    int
	state      State
	params     Params
	sessionID  string
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
	lastErr    error
}

// New 创建引擎，sink 为 nil 时丢弃所有结果
func New(prober core.Prober, sink core.ResultSink, opts ...Option) *Engine {
	if sink == nil {
		sink = core.NopSink{}
	}
	e := &Engine{
		prober:    prober,
		sink:      sink,
		logger:    zap.NewNop(),
		capacity:  retention.DefaultCapacity,
		now:       time.Now,
		probeOpts: core.DefaultProbeOptions(),
		validate:  Params.Validate,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.ledger = retention.New[core.Observation](e.capacity)
	e.done = closedChan()
	return e
}

// Start 校验参数并启动新会话，立即返回
// 启动会清空账本并将序号重置为从1开始
func (e *Engine) Start(p Params) error {
	if err := e.validate(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	payload, err := buildPayload(p.PayloadSize)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	e.deliverMu.Lock()
	defer e.deliverMu.Unlock()

	e.mu.Lock()
	if e.state != StateIdle {
		state := e.state
		e.mu.Unlock()
		return fmt.Errorf("%w (%s)", ErrSessionActive, state)
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.ledger.Reset()
	e.lastSeq = 0
	e.stats = core.Statistics{}
	e.generation++
	gen := e.generation
	e.params = p
	e.sessionID = uuid.NewString()
	e.cancel = cancel
	e.done = make(chan struct{})
	e.lastErr = nil
	e.state = StateRunning
	logger := e.logger.With(zap.String("session_id", e.sessionID), zap.String("target", p.Target))
	done := e.done
	e.mu.Unlock()

	logger.Info("session started",
		zap.Duration("timeout", p.Timeout),
		zap.Duration("interval", p.Interval),
		zap.Int("payload_size", p.PayloadSize))
	e.sink.OnLogLine(fmt.Sprintf("Pinging %s with %d bytes of data:", p.Target, p.PayloadSize))

	go e.run(ctx, gen, p, payload, done, logger)
	return nil
}

// Stop 请求停止当前会话，不阻塞
// 只有运行中的会话会受影响，重复调用无效果
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateRunning {
		return
	}
	e.state = StateStopping
	e.cancel()
}

// Clear 清空账本并重置序号
// 会话运行中时先请求停止，在途探测的结果将被丢弃
// 返回时正在投递的记录已经送达，之后不会再有本次会话的记录
func (e *Engine) Clear() {
	e.deliverMu.Lock()
	defer e.deliverMu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateRunning {
		e.state = StateStopping
		e.cancel()
	}
	e.generation++
	e.ledger.Reset()
	e.lastSeq = 0
	e.stats = core.Statistics{}
}

// Shutdown 停止会话并等待后台goroutine退出
func (e *Engine) Shutdown(ctx context.Context) error {
	e.Stop()
	select {
	case <-e.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot 按序号顺序返回账本副本
func (e *Engine) Snapshot() []core.Observation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Items()
}

// Statistics 返回当前账本的统计
func (e *Engine) Statistics() core.Statistics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// State 返回会话状态
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Params 返回最近一次启动使用的参数
func (e *Engine) Params() Params {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// SessionID 返回最近一次启动的会话ID
func (e *Engine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionID
}

// LastError 返回最近一次会话的致命错误
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Capacity 账本容量
func (e *Engine) Capacity() int { return e.capacity }

// Done 返回在当前会话后台goroutine退出时关闭的通道
func (e *Engine) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

// run 会话主循环
func (e *Engine) run(ctx context.Context, gen uint64, p Params, payload []byte, done chan struct{}, logger *zap.Logger) {
	var fatal error
	defer func() {
		if r := recover(); r != nil {
			fatal = fmt.Errorf("内部错误: %v", r)
		}
		e.finish(fatal, done, logger)
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		obs, err := e.probeOnce(ctx, gen, p, payload, logger)
		if err != nil {
			fatal = err
			return
		}
		if obs != nil {
			e.record(gen, *obs)
		}

		timer := time.NewTimer(p.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// probeOnce 分配序号并执行一次探测
// 在途探测不受停止信号影响，返回的 error 表示会话必须终止
func (e *Engine) probeOnce(ctx context.Context, gen uint64, p Params, payload []byte, logger *zap.Logger) (*core.Observation, error) {
	e.mu.Lock()
	if gen != e.generation {
		e.mu.Unlock()
		return nil, nil
	}
	e.lastSeq++
	seq := e.lastSeq
	e.mu.Unlock()

	issued := e.now()
	res, err := e.prober.Probe(context.WithoutCancel(ctx), p.Target, p.Timeout, payload, e.probeOpts)
	if errors.Is(err, core.ErrProberClosed) {
		return nil, err
	}

	obs := core.Observation{
		Sequence:        seq,
		Timestamp:       issued.Truncate(time.Millisecond),
		Target:          p.Target,
		RoundTripMillis: -1,
		PayloadSize:     p.PayloadSize,
	}
	if err != nil {
		obs.Outcome = core.OutcomeIndeterminate
		logger.Warn("probe failed", zap.Int("seq", seq), zap.Error(err))
		e.sink.OnLogLine("Ping error: " + err.Error())
		return &obs, nil
	}

	obs.Outcome = res.Status
	obs.ResolvedAddress = res.Address
	obs.TTL = res.TTL
	if res.Status == core.OutcomeSuccess {
		obs.RoundTripMillis = res.RoundTrip.Milliseconds()
	}
	logger.Debug("probe completed",
		zap.Int("seq", seq),
		zap.Stringer("outcome", obs.Outcome),
		zap.Int64("rtt_ms", obs.RoundTripMillis))
	return &obs, nil
}

// record 追加记录、重算统计并通知 sink
// 通知期间持有 deliverMu，Clear 会等待投递完成
func (e *Engine) record(gen uint64, obs core.Observation) {
	e.deliverMu.Lock()
	defer e.deliverMu.Unlock()

	e.mu.Lock()
	if gen != e.generation {
		e.mu.Unlock()
		return
	}
	e.ledger.Push(obs)
	stats := core.ComputeStatistics(e.ledger.Items())
	e.stats = stats
	e.mu.Unlock()

	e.sink.OnObservation(obs, stats)
}

// finish 回到空闲状态并输出唯一的结束日志行
// 结束行送达前新的 Start 会等待
func (e *Engine) finish(fatal error, done chan struct{}, logger *zap.Logger) {
	e.deliverMu.Lock()
	defer close(done)
	defer e.deliverMu.Unlock()

	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.state = StateIdle
	e.lastErr = fatal
	e.mu.Unlock()

	if fatal != nil {
		logger.Error("session aborted", zap.Error(fatal))
		e.sink.OnLogLine("Error: " + fatal.Error())
	} else {
		logger.Info("session stopped")
		e.sink.OnLogLine(stoppedLine)
	}
}

// buildPayload 构造由 'X' 填充的负载
func buildPayload(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("负载大小必须大于0，当前为%d", size)
	}
	return bytes.Repeat([]byte{payloadByte}, size), nil
}

func closedChan() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}
