package logging

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Fields struct {
	Service    string
	OrderID    string
	ActorID    string
	EventID    string
	Step       string
	Status     string
	DurationMS int64
	Message    string
}

// New builds a JSON production logger tagged with the service name.
func New(service, level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339Nano)
	cfg.InitialFields = map[string]any{"service": service}
	return cfg.Build()
}

// Zap converts the non-empty fields.
func (f Fields) Zap() []zap.Field {
	out := make([]zap.Field, 0, 7)
	add := func(key, val string) {
		if val != "" {
			out = append(out, zap.String(key, val))
		}
	}
	add("service", f.Service)
	add("order_id", f.OrderID)
	add("actor_id", f.ActorID)
	add("event_id", f.EventID)
	add("step", f.Step)
	add("status", f.Status)
	if f.DurationMS > 0 {
		out = append(out, zap.Int64("duration_ms", f.DurationMS))
	}
	return out
}

func Log(l *zap.Logger, fields Fields) {
	msg := fields.Message
	if msg == "" {
		msg = fields.Step
	}
	l.Info(msg, fields.Zap()...)
}

// Finish logs err under msg when it is set, flushes l and returns the process
// exit code. Call os.Exit with the result only after Finish returns.
func Finish(l *zap.Logger, msg string, err error) int {
	code := 0
	if err != nil {
		l.Error(msg, zap.Error(err))
		code = 1
	}
	_ = l.Sync()
	return code
}
