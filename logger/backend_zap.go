package logger

import (
	"io"
	"log/slog"
	"time"

	slogzap "github.com/samber/slog-zap/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newZapHandler writes one JSON object per record. Bursts of identical
// messages are sampled: the first 100 per second, then every 10th.
func newZapHandler(w io.Writer, level slog.Level) slog.Handler {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder

	zl := zapcore.InfoLevel
	if level < slog.LevelInfo {
		zl = zapcore.DebugLevel
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(w), zl)
	core = zapcore.NewSamplerWithOptions(core, time.Second, 100, 10)

	return slogzap.Option{Level: level, Logger: zap.New(core)}.NewZapHandler()
}
