package mlog

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type CoreConfig struct {
	OutputType  string
	OutputPath  string
	Level       string
	EncodeType  string
	EncodeColor bool
}

var (
	mu          sync.Mutex
	coreConfigs []CoreConfig
)

// SetOutputTypes adds cores used by loggers created afterwards.
func SetOutputTypes(configs ...CoreConfig) {
	mu.Lock()
	coreConfigs = append(coreConfigs, configs...)
	mu.Unlock()
}

// ResetOutputTypes drops every configured core.
func ResetOutputTypes() {
	mu.Lock()
	coreConfigs = nil
	mu.Unlock()
}

func NewCore() zapcore.Core {
	mu.Lock()
	configs := append([]CoreConfig(nil), coreConfigs...)
	mu.Unlock()

	cores := make([]zapcore.Core, 0, len(configs))
	for _, cfg := range configs {
		var core zapcore.Core
		switch cfg.OutputType {
		case "file":
			core = FileCore(cfg)
		case "console":
			core = ConsoleCore(cfg)
		}

		if core != nil {
			cores = append(cores, core)
		}
	}

	if len(cores) == 0 {
		cores = append(cores, ConsoleCore(CoreConfig{OutputPath: "stderr", EncodeColor: true}))
	}
	return zapcore.NewTee(cores...)
}

func encoderConfig(cfg CoreConfig, caller bool) zapcore.EncoderConfig {
	ec := zapcore.EncoderConfig{
		// Keys can be anything except the empty string.
		TimeKey:          "T",
		LevelKey:         "L",
		NameKey:          "N",
		CallerKey:        "C",
		FunctionKey:      zapcore.OmitKey,
		MessageKey:       "M",
		StacktraceKey:    "S",
		EncodeTime:       zapcore.RFC3339TimeEncoder,
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeCaller:     zapcore.ShortCallerEncoder,
		ConsoleSeparator: "\t",
	}
	if !caller {
		ec.CallerKey = ""
		ec.EncodeCaller = nil
	}
	if cfg.EncodeColor {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return ec
}

func newEncoder(cfg CoreConfig, ec zapcore.EncoderConfig) zapcore.Encoder {
	switch cfg.EncodeType {
	case "json":
		return zapcore.NewJSONEncoder(ec)
	default:
		return zapcore.NewConsoleEncoder(ec)
	}
}

// ParseLevel parses a level name, falling back to info.
func ParseLevel(level string) zap.AtomicLevel {
	l, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return l
}

func ConsoleCore(cfg CoreConfig) zapcore.Core {
	out := "stdout"
	if strings.ToLower(cfg.OutputPath) == "stderr" {
		out = "stderr"
	}
	writer, _, err := zap.Open(out)
	if err != nil {
		return nil
	}
	return zapcore.NewCore(newEncoder(cfg, encoderConfig(cfg, true)), writer, ParseLevel(cfg.Level))
}

func FileCore(cfg CoreConfig) zapcore.Core {
	if err := os.MkdirAll(filepath.Dir(cfg.OutputPath), 0o755); err != nil {
		return nil
	}
	writer, _, err := zap.Open(cfg.OutputPath)
	if err != nil {
		return nil
	}
	return zapcore.NewCore(newEncoder(cfg, encoderConfig(cfg, false)), writer, ParseLevel(cfg.Level))
}
