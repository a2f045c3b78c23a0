// Package tui 工具函数
package tui

import "strings"

// latencyColor 根据延迟选择颜色
func latencyColor(rtt, fast, slow int64) string {
	switch {
	case rtt < fast:
		return "green"
	case rtt < slow:
		return "yellow"
	default:
		return "red"
	}
}

// logColor 错误日志用红色，单次探测异常用黄色
func logColor(message string) string {
	switch {
	case strings.HasPrefix(message, "Error:"):
		return "red"
	case strings.HasPrefix(message, "Ping error:"):
		return "yellow"
	default:
		return "white"
	}
}
