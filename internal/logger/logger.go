package logger

import (
	"log"
	"strings"
	"sync/atomic"
)

// 中文说明：
// 轻量日志封装：全局级别 + 可选前缀标签，循环内高频日志用 Debugf 压低噪音。
// 级别存取走 atomic，代理循环与 HTTP 服务并发写日志时无需加锁。

type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var current atomic.Int32

func init() {
	current.Store(int32(LevelInfo))
}

// SetLevel 按字符串设置全局级别，无法识别时回落到 info。
func SetLevel(s string) {
	current.Store(int32(ParseLevel(s)))
}

// ParseLevel 解析级别字符串；容忍 warning 写法。
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info", "":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func enabled(l Level) bool {
	return Level(current.Load()) <= l
}

func Debugf(format string, v ...any) {
	if enabled(LevelDebug) {
		log.Printf("[DEBUG] "+format, v...)
	}
}

func Infof(format string, v ...any) {
	if enabled(LevelInfo) {
		log.Printf("[INFO] "+format, v...)
	}
}

func Warnf(format string, v ...any) {
	if enabled(LevelWarn) {
		log.Printf("[WARN] "+format, v...)
	}
}

func Errorf(format string, v ...any) {
	if enabled(LevelError) {
		log.Printf("[ERROR] "+format, v...)
	}
}
