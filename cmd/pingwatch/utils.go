package main

import (
	"fmt"

	"github.com/Kevin-Rudy/pingwatch/pkg/pinger"
	"go.uber.org/zap"
)

// 程序信息常量
const (
	AppName    = "pingwatch"
	AppVersion = "0.1.0"
	AppDesc    = "持续探测单个主机的可达性，实时统计并导出结果"
)

// showSystemInfo 显示系统环境信息
func showSystemInfo() {
	fmt.Println("系统信息:")
	fmt.Printf("  操作系统: %s\n", pinger.GetOSName())
	fmt.Printf("  权限状态: %s\n", pinger.GetPrivilegeStatus())
	fmt.Printf("  实现方式: %s\n", pinger.GetImplementationType())
}

// printUsageInstructions 显示界面操作说明
func printUsageInstructions() {
	fmt.Println("操作说明:")
	fmt.Println("  F5 / F6     - 开始 / 停止")
	fmt.Println("  F7 / F8     - 清除 / 导出CSV")
	fmt.Println("  Tab         - 在输入框和按钮之间切换")
	fmt.Println("  q 或 Ctrl+C - 退出程序")
	fmt.Println("========================================")
}

// newLogger 创建zap日志
// debug级别使用开发格式；quiet为真且没有日志文件时不输出
func newLogger(level, file string, quiet bool) (*zap.Logger, error) {
	if file == "" && quiet {
		return zap.NewNop(), nil
	}

	atom, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("日志级别无效: %w", err)
	}

	cfg := zap.NewProductionConfig()
	if atom.Level() == zap.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = atom
	if file != "" {
		cfg.OutputPaths = []string{file}
		cfg.ErrorOutputPaths = []string{file}
	}
	return cfg.Build()
}
