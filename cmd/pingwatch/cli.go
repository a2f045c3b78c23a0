package main

import (
	"fmt"
	"time"

	"github.com/Kevin-Rudy/pingwatch/pkg/pinger"
	"github.com/Kevin-Rudy/pingwatch/pkg/session"
	"github.com/Kevin-Rudy/pingwatch/pkg/validator"
	"github.com/urfave/cli/v2"
)

// createCliApp 创建CLI应用实例
func createCliApp() *cli.App {
	app := &cli.App{
		Name:      AppName,
		Version:   AppVersion,
		Usage:     AppDesc,
		Flags:     createCliFlags(),
		Action:    runApp,
		ArgsUsage: "[目标主机]",
	}

	// 添加子命令
	app.Commands = createCommands()

	return app
}

// createCliFlags 创建CLI参数定义
func createCliFlags() []cli.Flag {
	defaults := session.DefaultParams()
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			EnvVars: []string{envConfigPath},
			Usage:   "YAML配置文件路径",
		},
		&cli.BoolFlag{
			Name:  "4",
			Usage: "使用IPv4进行域名解析（默认）",
			Value: true,
		},
		&cli.BoolFlag{
			Name:  "6",
			Usage: "使用IPv6进行域名解析",
		},
		&cli.StringFlag{
			Name:  "dns-server",
			Usage: "使用指定的DNS服务器解析目标 (例如: 1.1.1.1, 8.8.8.8:53)",
		},
		&cli.IntFlag{
			Name:    "timeout",
			Aliases: []string{"w"},
			Value:   int(defaults.Timeout / time.Millisecond),
			Usage:   fmt.Sprintf("单次探测超时(ms)，%d-%d", validator.MinTimeoutMillis, validator.MaxTimeoutMillis),
		},
		&cli.IntFlag{
			Name:    "size",
			Aliases: []string{"l"},
			Value:   defaults.PayloadSize,
			Usage:   fmt.Sprintf("负载字节数，%d-%d", validator.MinPayloadSize, validator.MaxPayloadSize),
		},
		&cli.IntFlag{
			Name:    "interval",
			Aliases: []string{"i"},
			Value:   int(defaults.Interval / time.Millisecond),
			Usage:   fmt.Sprintf("两次探测之间的间隔(ms)，%d-%d", validator.MinIntervalMillis, validator.MaxIntervalMillis),
		},
		&cli.BoolFlag{
			Name:  "no-tui",
			Usage: "不启动界面，逐行输出到控制台",
		},
		&cli.IntFlag{
			Name:    "count",
			Aliases: []string{"c"},
			Usage:   "控制台模式下探测次数，0表示直到Ctrl+C",
		},
		&cli.StringFlag{
			Name:  "export",
			Usage: "控制台模式结束时导出结果，.json 扩展名导出JSON，否则导出CSV",
		},
		&cli.StringFlag{
			Name:  "export-dir",
			Value: ".",
			Usage: "界面中导出文件的目录",
		},
		&cli.DurationFlag{
			Name:    "refresh-rate",
			Aliases: []string{"r"},
			Value:   200 * time.Millisecond,
			Usage:   "UI刷新频率 (例如: 100ms, 500ms)",
		},
		&cli.StringFlag{
			Name:  "archive",
			Usage: "SQLite归档文件路径，为空时不归档",
		},
		&cli.StringFlag{
			Name:  "listen",
			Usage: "HTTP控制接口监听地址 (例如: 127.0.0.1:8080)，为空时不启动",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Value: "warn",
			Usage: "日志级别: debug, info, warn, error",
		},
		&cli.StringFlag{
			Name:  "log-file",
			Usage: "日志文件路径，界面模式下未指定时不输出日志",
		},
	}
}

// createCommands 创建子命令
func createCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:    "version",
			Aliases: []string{"v"},
			Usage:   "显示详细版本信息",
			Action: func(c *cli.Context) error {
				fmt.Printf("%s v%s\n", AppName, AppVersion)
				fmt.Printf("描述: %s\n", AppDesc)
				fmt.Printf("系统: %s\n", pinger.GetOSName())
				fmt.Printf("实现: %s\n", pinger.GetImplementationType())
				return nil
			},
		},
		{
			Name:      "validate",
			Usage:     "检查目标主机是否合法",
			ArgsUsage: "<目标主机>",
			Action: func(c *cli.Context) error {
				if c.NArg() != 1 {
					return cli.Exit("错误: 必须指定一个目标主机", 1)
				}
				host := validator.NormalizeHost(c.Args().First())
				if err := validator.ValidateHost(host); err != nil {
					return cli.Exit(fmt.Sprintf("无效: %v", err), 1)
				}
				fmt.Printf("有效: %s\n", host)
				return nil
			},
		},
	}
}
