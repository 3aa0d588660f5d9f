package shared

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// LogOptions 日志配置（来自 log.* 配置项）
type LogOptions struct {
	Level  string        // debug, info, warn, error
	Format string        // text, json
	Output string        // stdout, stderr 或文件路径
	Retain time.Duration // 轮转文件保留时长，0 表示不清理
}

// NewLogger 按配置创建 logger。输出为文件时，启动前先轮转旧文件。
// 返回的 io.Closer 在进程退出时关闭日志文件（标准输出时为 no-op）。
func NewLogger(opts LogOptions) (*logrus.Logger, io.Closer, error) {
	log := logrus.New()

	level, err := logrus.ParseLevel(strings.TrimSpace(opts.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if strings.EqualFold(opts.Format, "json") {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:          true,
			TimestampFormat:        "2006-01-02 15:04:05.000",
			DisableLevelTruncation: true,
			PadLevelText:           true,
		})
	}

	out := strings.TrimSpace(opts.Output)
	switch out {
	case "", "stdout":
		log.SetOutput(os.Stdout)
		return log, nopCloser{}, nil
	case "stderr":
		log.SetOutput(os.Stderr)
		return log, nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	if err := RotateLogFile(out, opts.Retain); err != nil {
		return nil, nil, fmt.Errorf("rotate log file: %w", err)
	}
	f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	log.SetOutput(f)
	return log, f, nil
}

// DiscardLogger 丢弃全部输出；服务在未注入 logger 时使用
func DiscardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// OrDiscard 返回 l，l 为 nil 时返回丢弃型 logger
func OrDiscard(l logrus.FieldLogger) logrus.FieldLogger {
	if l == nil {
		return DiscardLogger()
	}
	return l
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
