// Package log sets up the node's zap logger: a rotating JSON file sink
// via lumberjack, the same tee'd-core shape as moto/utils.Logger,
// generalized to per-component named children instead of one global
// logger.
package log

import (
	"os"
	"time"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls the rotating file sink and minimum level.
type Config struct {
	Path       string
	Level      string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	Console    bool
}

var levelMap = map[string]zapcore.Level{
	"debug":  zapcore.DebugLevel,
	"info":   zapcore.InfoLevel,
	"warn":   zapcore.WarnLevel,
	"error":  zapcore.ErrorLevel,
	"dpanic": zapcore.DPanicLevel,
	"panic":  zapcore.PanicLevel,
	"fatal":  zapcore.FatalLevel,
}

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02 15:04:05.000"))
}

// New builds the root logger. Components derive named children from it
// with Named(component) so every log line carries a "logger" field
// identifying its source (stream, pubsub, attest, ...), the same role
// moto's zap.String("ruleName", ...) fields play per-request.
func New(cfg Config) *zap.Logger {
	if cfg.MaxSizeMB == 0 {
		cfg.MaxSizeMB = 1024
	}
	if cfg.MaxBackups == 0 {
		cfg.MaxBackups = 5
	}
	if cfg.MaxAgeDays == 0 {
		cfg.MaxAgeDays = 30
	}
	lvl := levelMap[cfg.Level]

	enabler := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= lvl })

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     timeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	fileEncoder := zapcore.NewJSONEncoder(encoderConfig)

	cores := []zapcore.Core{}
	if cfg.Path != "" {
		hook := &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(hook), enabler))
	}
	if cfg.Console || cfg.Path == "" {
		consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)
		cores = append(cores, zapcore.NewCore(consoleEncoder, zapcore.Lock(zapcore.AddSync(os.Stdout)), enabler))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.Development())
}
