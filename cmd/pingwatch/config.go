package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Kevin-Rudy/pingwatch/pkg/pinger"
	"github.com/Kevin-Rudy/pingwatch/pkg/session"
	"github.com/Kevin-Rudy/pingwatch/pkg/tui"
	"github.com/Kevin-Rudy/pingwatch/pkg/validator"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

const envConfigPath = "PINGWATCH_CONFIG"

// FileConfig YAML配置文件，所有字段都可以被命令行参数覆盖
type FileConfig struct {
	Host      string `yaml:"host"`
	IPVersion int    `yaml:"ip_version"`
	DNSServer string `yaml:"dns_server"`

	Probe struct {
		TimeoutMs  int `yaml:"timeout_ms"`
		Size       int `yaml:"size"`
		IntervalMs int `yaml:"interval_ms"`
	} `yaml:"probe"`

	Output struct {
		NoTUI       bool          `yaml:"no_tui"`
		Count       int           `yaml:"count"`
		Export      string        `yaml:"export"`
		ExportDir   string        `yaml:"export_dir"`
		RefreshRate time.Duration `yaml:"refresh_rate"`
	} `yaml:"output"`

	Archive string `yaml:"archive"`
	Listen  string `yaml:"listen"`

	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
}

// loadFileConfig 读取配置文件，path 为空时使用环境变量，都没有时返回空配置
func loadFileConfig(path string) (FileConfig, error) {
	var cfg FileConfig
	if path == "" {
		path = os.Getenv(envConfigPath)
	}
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("打开配置文件 %q 失败: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return cfg, fmt.Errorf("读取配置文件 %q 失败: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("解析配置文件 %q 失败: %w", path, err)
	}

	return cfg, nil
}

// AppConfig 应用层配置聚合
type AppConfig struct {
	Params       session.Params
	AutoStart    bool // 命令行或配置文件指定了目标时界面启动后立即开始
	PingerConfig *pinger.Config
	TUIConfig    *tui.Config

	NoTUI       bool
	Count       int
	ExportPath  string
	ArchivePath string
	ListenAddr  string
	LogLevel    string
	LogFile     string
}

// buildConfigFromCLI 默认值 < 配置文件 < 命令行参数
func buildConfigFromCLI(c *cli.Context, file FileConfig) *AppConfig {
	params := session.DefaultParams()
	pingerConfig := pinger.DefaultConfig()
	tuiConfig := tui.DefaultConfig()
	appConfig := &AppConfig{
		PingerConfig: pingerConfig,
		TUIConfig:    tuiConfig,
		LogLevel:     "warn",
	}

	// 配置文件
	if file.Host != "" {
		params.Target = file.Host
		appConfig.AutoStart = true
	}
	if file.IPVersion != 0 {
		pingerConfig.IPVersion = file.IPVersion
	}
	pingerConfig.DNSServer = file.DNSServer
	if file.Probe.TimeoutMs != 0 {
		params.Timeout = time.Duration(file.Probe.TimeoutMs) * time.Millisecond
	}
	if file.Probe.Size != 0 {
		params.PayloadSize = file.Probe.Size
	}
	if file.Probe.IntervalMs != 0 {
		params.Interval = time.Duration(file.Probe.IntervalMs) * time.Millisecond
	}
	appConfig.NoTUI = file.Output.NoTUI
	appConfig.Count = file.Output.Count
	appConfig.ExportPath = file.Output.Export
	if file.Output.ExportDir != "" {
		tuiConfig.ExportDir = file.Output.ExportDir
	}
	if file.Output.RefreshRate != 0 {
		tuiConfig.RefreshInterval = file.Output.RefreshRate
	}
	appConfig.ArchivePath = file.Archive
	appConfig.ListenAddr = file.Listen
	if file.Log.Level != "" {
		appConfig.LogLevel = file.Log.Level
	}
	appConfig.LogFile = file.Log.File

	// 命令行参数
	if c.Args().Present() {
		params.Target = c.Args().First()
		appConfig.AutoStart = true
	}
	if c.Bool("6") {
		pingerConfig.IPVersion = 6
	} else if c.IsSet("4") {
		pingerConfig.IPVersion = 4
	}
	if c.IsSet("dns-server") {
		pingerConfig.DNSServer = c.String("dns-server")
	}
	if c.IsSet("timeout") {
		params.Timeout = time.Duration(c.Int("timeout")) * time.Millisecond
	}
	if c.IsSet("size") {
		params.PayloadSize = c.Int("size")
	}
	if c.IsSet("interval") {
		params.Interval = time.Duration(c.Int("interval")) * time.Millisecond
	}
	if c.IsSet("no-tui") {
		appConfig.NoTUI = c.Bool("no-tui")
	}
	if c.IsSet("count") {
		appConfig.Count = c.Int("count")
	}
	if c.IsSet("export") {
		appConfig.ExportPath = c.String("export")
	}
	if c.IsSet("export-dir") {
		tuiConfig.ExportDir = c.String("export-dir")
	}
	if c.IsSet("refresh-rate") {
		tuiConfig.RefreshInterval = c.Duration("refresh-rate")
	}
	if c.IsSet("archive") {
		appConfig.ArchivePath = c.String("archive")
	}
	if c.IsSet("listen") {
		appConfig.ListenAddr = c.String("listen")
	}
	if c.IsSet("log-level") {
		appConfig.LogLevel = c.String("log-level")
	}
	if c.IsSet("log-file") {
		appConfig.LogFile = c.String("log-file")
	}

	appConfig.Params = params
	return appConfig
}

// validateConfig 验证配置的合理性
func validateConfig(config *AppConfig) error {
	// 界面模式可以不带目标启动，由用户在界面中填写
	if config.Params.Target != "" || config.NoTUI {
		if err := config.Params.Validate(); err != nil {
			return fmt.Errorf("探测参数错误: %v", err)
		}
	} else if err := validateProbeParams(config.Params); err != nil {
		return fmt.Errorf("探测参数错误: %v", err)
	}

	// 验证 pinger 配置
	if err := config.PingerConfig.Validate(); err != nil {
		return fmt.Errorf("pinger配置错误: %v", err)
	}

	// 验证 TUI 配置
	if err := config.TUIConfig.Validate(); err != nil {
		return fmt.Errorf("tui配置错误: %v", err)
	}

	if config.Count < 0 {
		return fmt.Errorf("探测次数不能为负数，当前为%d", config.Count)
	}

	return nil
}

func validateProbeParams(p session.Params) error {
	if err := validator.ValidateTimeout(int(p.Timeout / time.Millisecond)); err != nil {
		return err
	}
	if err := validator.ValidatePayloadSize(p.PayloadSize); err != nil {
		return err
	}
	return validator.ValidateInterval(int(p.Interval / time.Millisecond))
}
