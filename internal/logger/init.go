package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// level 全局日志级别，配置热更新时修改
var level = new(slog.LevelVar)

// Init 初始化默认日志器。format 为 "json" 时输出JSON，否则输出文本。
// 标准库 log 包的输出也会经由该日志器。
func Init(levelName, format string) (*slog.Logger, error) {
	if err := SetLevel(levelName); err != nil {
		return nil, err
	}
	l := New(os.Stderr, format)
	slog.SetDefault(l)
	l.Debug("Logger initialized", "level", level.Level().String(), "format", format)
	return l, nil
}

// New 创建共享全局级别的日志器
func New(w io.Writer, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SetLevel 运行时调整日志级别，空字符串视为 info
func SetLevel(name string) error {
	lvl, err := ParseLevel(name)
	if err != nil {
		return err
	}
	level.Set(lvl)
	return nil
}

// Level 当前日志级别
func Level() slog.Level {
	return level.Level()
}

// ParseLevel 解析 debug/info/warn/error
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}
