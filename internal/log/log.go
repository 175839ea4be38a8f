// Package log 提供 SDK 内部使用的分级日志。
// 默认仅输出 Warn 及以上级别，通过 SetLevel 调整。
package log

import (
	"fmt"
	stdlog "log"
	"os"
	"sync"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	mu       sync.Mutex
	level    = LevelWarn
	stdLog   = stdlog.New(os.Stderr, "[agents-sdk] ", stdlog.LstdFlags)
	levelTag = map[Level]string{
		LevelDebug: "DEBUG",
		LevelInfo:  "INFO",
		LevelWarn:  "WARN",
		LevelError: "ERROR",
	}
)

// SetLevel 设置日志输出级别。
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

// SetOutput 替换日志输出目标。
func SetOutput(logger *stdlog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if logger != nil {
		stdLog = logger
	}
}

func output(l Level, args ...interface{}) {
	mu.Lock()
	enabled := l >= level
	logger := stdLog
	mu.Unlock()
	if !enabled {
		return
	}
	logger.Print(levelTag[l] + " " + fmt.Sprint(args...))
}

func Debug(args ...interface{}) { output(LevelDebug, args...) }

func Debugf(format string, args ...interface{}) { output(LevelDebug, fmt.Sprintf(format, args...)) }

func Info(args ...interface{}) { output(LevelInfo, args...) }

func Infof(format string, args ...interface{}) { output(LevelInfo, fmt.Sprintf(format, args...)) }

func Warn(args ...interface{}) { output(LevelWarn, args...) }

func Warnf(format string, args ...interface{}) { output(LevelWarn, fmt.Sprintf(format, args...)) }

func Error(args ...interface{}) { output(LevelError, args...) }

func Errorf(format string, args ...interface{}) { output(LevelError, fmt.Sprintf(format, args...)) }
