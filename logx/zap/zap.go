package zap

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/stockcore/logx"
)

var _ logx.Logger = Logger{}

type Logger struct{ L *zap.Logger }

func (z Logger) Debug(msg string, f logx.Fields) { z.L.Debug(msg, zf(f)...) }
func (z Logger) Info(msg string, f logx.Fields)  { z.L.Info(msg, zf(f)...) }
func (z Logger) Warn(msg string, f logx.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z Logger) Error(msg string, f logx.Fields) { z.L.Error(msg, zf(f)...) }

// NewProduction builds a JSON zap logger at the given level ("debug", "info", ...).
// An unknown level falls back to info.
func NewProduction(level string) (Logger, error) {
	cfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	l, err := cfg.Build()
	if err != nil {
		return Logger{}, err
	}
	return Logger{L: l}, nil
}

func zf(f logx.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}
