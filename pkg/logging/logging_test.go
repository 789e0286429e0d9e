package logging

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func bufferedLogger(t *testing.T) (*zap.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	ws := &zapcore.BufferedWriteSyncer{WS: zapcore.AddSync(&buf), Size: 64 * 1024, FlushInterval: time.Hour}
	t.Cleanup(func() { _ = ws.Stop() })
	core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), ws, zapcore.InfoLevel)
	return zap.New(core), &buf
}

func TestFinish_FlushesBufferedEntries(t *testing.T) {
	l, buf := bufferedLogger(t)
	l.Info("serving")
	assert.Zero(t, buf.Len())

	code := Finish(l, "order-service stopped", errors.New("listen tcp :8080: address already in use"))
	assert.Equal(t, 1, code)
	assert.Contains(t, buf.String(), `"msg":"serving"`)
	assert.Contains(t, buf.String(), `"msg":"order-service stopped"`)
	assert.Contains(t, buf.String(), "address already in use")
}

func TestFinish_CleanShutdown(t *testing.T) {
	l, buf := bufferedLogger(t)
	l.Info("shutting down")

	assert.Equal(t, 0, Finish(l, "order-service stopped", nil))
	assert.Contains(t, buf.String(), "shutting down")
	assert.NotContains(t, buf.String(), "stopped")
}

func TestFields_ZapSkipsEmpty(t *testing.T) {
	fields := Fields{OrderID: "o-1", Step: "reserve"}.Zap()
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{"order_id", "step"}, keys)
}
