package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Kevin-Rudy/pingwatch/pkg/archive"
	"github.com/Kevin-Rudy/pingwatch/pkg/core"
	"github.com/Kevin-Rudy/pingwatch/pkg/export"
	"github.com/Kevin-Rudy/pingwatch/pkg/metrics"
	"github.com/Kevin-Rudy/pingwatch/pkg/output"
	"github.com/Kevin-Rudy/pingwatch/pkg/pinger"
	"github.com/Kevin-Rudy/pingwatch/pkg/server"
	"github.com/Kevin-Rudy/pingwatch/pkg/session"
	"github.com/Kevin-Rudy/pingwatch/pkg/tui"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// runApp 主要应用逻辑处理函数
func runApp(c *cli.Context) error {
	if c.NArg() > 1 {
		return cli.Exit("错误: 只能指定一个目标主机\n使用方法: pingwatch [目标主机]", 1)
	}

	// IP版本冲突检查
	if c.IsSet("4") && c.Bool("6") {
		return cli.Exit("错误: -4 和 -6 选项不能同时使用", 1)
	}

	fileConfig, err := loadFileConfig(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	// 构建配置
	appConfig := buildConfigFromCLI(c, fileConfig)

	// 验证配置
	if err := validateConfig(appConfig); err != nil {
		return cli.Exit(fmt.Sprintf("配置验证失败: %v", err), 1)
	}

	logger, err := newLogger(appConfig.LogLevel, appConfig.LogFile, !appConfig.NoTUI)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer logger.Sync()

	// 显示系统环境信息
	showSystemInfo()

	appConfig.PingerConfig.Logger = logger.Named("pinger")
	prober, err := pinger.NewProber(appConfig.PingerConfig)
	if err != nil {
		return cli.Exit(fmt.Sprintf("无法创建探测器: %v", err), 1)
	}
	defer prober.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{config: appConfig, logger: logger, prober: prober}
	if err := a.run(ctx); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return nil
}

// app 一次运行中创建的组件
type app struct {
	config *AppConfig
	logger *zap.Logger
	prober core.Prober

	engine  *session.Engine
	metrics *metrics.Collector
	archive *archive.Archive
	relay   *relaySink
}

func (a *app) run(ctx context.Context) error {
	if err := a.setup(); err != nil {
		return err
	}
	if a.archive != nil {
		defer a.archive.Close()
	}

	if a.config.NoTUI {
		return a.runConsole(ctx)
	}
	return a.runTUI(ctx)
}

// setup 创建引擎以及与显示方式无关的sink
func (a *app) setup() error {
	a.metrics = metrics.New()
	a.relay = &relaySink{}

	sinks := []core.ResultSink{a.relay, a.metrics}
	if a.config.ArchivePath != "" {
		arc, err := archive.New(a.config.ArchivePath, sessionIDFunc(a.sessionID), a.logger.Named("archive"))
		if err != nil {
			return err
		}
		a.archive = arc
		sinks = append(sinks, arc)
	}

	a.engine = session.New(a.prober, core.NewMultiSink(sinks...),
		session.WithLogger(a.logger.Named("session")))
	return nil
}

func (a *app) sessionID() string {
	if a.engine == nil {
		return ""
	}
	return a.engine.SessionID()
}

// controller 清除账本时同时清空按目标区分的指标
func (a *app) controller() *clearingEngine {
	return &clearingEngine{Engine: a.engine, onClear: a.metrics.Reset}
}

// newServer 未配置监听地址时返回nil
func (a *app) newServer() *server.Server {
	if a.config.ListenAddr == "" {
		return nil
	}
	deps := server.Dependencies{
		Logger:  a.logger.Named("http"),
		Engine:  a.controller(),
		Metrics: a.metrics.Handler(),
	}
	if a.archive != nil {
		deps.Archive = a.archive
	}
	return server.New(server.Config{Addr: a.config.ListenAddr}, deps)
}

// runConsole 逐行输出，直到达到次数、出错或收到中断信号
func (a *app) runConsole(ctx context.Context) error {
	console := output.NewConsole(os.Stdout)
	a.relay.set(core.NewMultiSink(console, output.NewStopAfter(a.config.Count, a.engine.Stop)))

	if err := a.engine.Start(a.config.Params); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, cancelServe := context.WithCancel(gctx)
	defer cancelServe()

	g.Go(func() error {
		defer cancelServe()
		select {
		case <-gctx.Done():
		case <-a.engine.Done():
		}
		return a.shutdownEngine()
	})
	if srv := a.newServer(); srv != nil {
		g.Go(func() error { return srv.Run(serveCtx) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	console.PrintStatistics(a.engine.Statistics())
	if path := a.config.ExportPath; path != "" {
		snapshot := a.engine.Snapshot()
		switch err := export.SaveFile(path, snapshot); {
		case errors.Is(err, export.ErrNothingToExport):
			console.OnLogLine(err.Error())
		case err != nil:
			return fmt.Errorf("导出失败: %w", err)
		default:
			console.OnLogLine(export.LogLine(len(snapshot), path))
		}
	}
	return a.engine.LastError()
}

// runTUI 运行界面，界面退出后停止会话和HTTP服务
func (a *app) runTUI(ctx context.Context) error {
	printUsageInstructions()

	ui := tui.NewTUI(a.controller(), a.config.TUIConfig, a.config.Params)
	a.relay.set(ui)

	if a.config.AutoStart {
		if err := a.engine.Start(a.config.Params); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, cancelServe := context.WithCancel(gctx)
	defer cancelServe()

	g.Go(func() error {
		defer cancelServe()
		return ui.Run()
	})
	g.Go(func() error {
		// 收到信号时关闭界面
		<-serveCtx.Done()
		ui.Stop()
		return nil
	})
	if srv := a.newServer(); srv != nil {
		g.Go(func() error { return srv.Run(serveCtx) })
	}

	err := g.Wait()
	if shutdownErr := a.shutdownEngine(); err == nil {
		err = shutdownErr
	}
	if err == nil {
		fmt.Println("程序已退出")
	}
	return err
}

// shutdownEngine 停止会话并等待在途探测完成
func (a *app) shutdownEngine() error {
	wait := a.engine.Params().Timeout + 2*time.Second
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	if err := a.engine.Shutdown(ctx); err != nil {
		return fmt.Errorf("等待会话结束超时: %w", err)
	}
	return nil
}

type clearingEngine struct {
	*session.Engine
	onClear func()
}

func (c *clearingEngine) Clear() {
	c.Engine.Clear()
	c.onClear()
}

// sessionIDFunc 让函数满足 archive.SessionSource
type sessionIDFunc func() string

func (f sessionIDFunc) SessionID() string { return f() }

// relaySink 显示方式确定之后再接入的sink
// 必须在第一次 Start 之前调用 set
type relaySink struct {
	target core.ResultSink
}

func (r *relaySink) set(s core.ResultSink) { r.target = s }

func (r *relaySink) OnObservation(obs core.Observation, stats core.Statistics) {
	if r.target != nil {
		r.target.OnObservation(obs, stats)
	}
}

func (r *relaySink) OnLogLine(line string) {
	if r.target != nil {
		r.target.OnLogLine(line)
	}
}
