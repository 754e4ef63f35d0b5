package logger

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogDir holds every rotated log file.
const LogDir = "log"

var Module = fx.Options(
	fx.Provide(ProvideLoggerMiddleware),
	fx.Provide(ProvideLogger),
)

func ProvideLogger() *zap.Logger { return NewLog("system.log") }

// NewLog tees JSON lines to log/<name> (rotated) and stdout.
func NewLog(name string) *zap.Logger {
	_ = os.MkdirAll(LogDir, 0o755)

	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder

	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(LogDir, name),
		MaxSize:    50, // MB
		MaxBackups: 3,
		MaxAge:     7, // days
	})

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(cfg), w, zap.InfoLevel),
		zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.Lock(os.Stdout), zap.InfoLevel),
	)
	return zap.New(core).Named("steeze-assets")
}

var (
	accessOnce   sync.Once
	accessMu     sync.RWMutex
	accessLogger *zap.Logger
)

func httpAccessLogger() *zap.Logger {
	accessOnce.Do(func() {
		accessMu.Lock()
		if accessLogger == nil {
			accessLogger = NewLog("http-access.log")
		}
		accessMu.Unlock()
	})
	accessMu.RLock()
	defer accessMu.RUnlock()
	return accessLogger
}

// SetAccessLogger overrides the access logger (tests, CLIs).
func SetAccessLogger(l *zap.Logger) {
	if l == nil {
		return
	}
	accessMu.Lock()
	accessLogger = l
	accessMu.Unlock()
}
