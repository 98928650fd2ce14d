package logger

import (
	"flag"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Environment variable name for log level configuration.
const envLogLevel = "RTMP_LOG_LEVEL"

var (
	// atomicLevel can be changed at runtime via SetLevel.
	atomicLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	// global logger instance
	global   *zap.Logger
	mu       sync.Mutex
	initOnce sync.Once

	// Optional flag (users may pass -log.level=debug). If flag.Parse() hasn't
	// yet been called when Init is invoked, we still read the raw os.Args.
	flagLevel = flag.String("log.level", "", "log level (debug, info, warn, error)")
)

// Init initializes the global logger. Safe to call multiple times; the first
// call wins except SetLevel / UseWriter which mutate state intentionally.
func Init() {
	initOnce.Do(func() {
		atomicLevel.SetLevel(detectLevel())
		global = newLogger(zapcore.Lock(os.Stdout))
	})
}

// newLogger builds a JSON-encoded zap logger writing to ws at atomicLevel.
func newLogger(ws zapcore.WriteSyncer) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), ws, atomicLevel)
	return zap.New(core)
}

// detectLevel resolves the initial log level from (precedence high to low):
//  1. command-line flag -log.level
//  2. environment variable RTMP_LOG_LEVEL
//  3. default (info)
func detectLevel() zapcore.Level {
	if *flagLevel == "" {
		for _, arg := range os.Args[1:] {
			if strings.HasPrefix(arg, "-log.level=") {
				parts := strings.SplitN(arg, "=", 2)
				if len(parts) == 2 {
					*flagLevel = parts[1]
				}
			}
		}
	}
	if f := strings.TrimSpace(*flagLevel); f != "" {
		if lvl, ok := parseLevel(f); ok {
			return lvl
		}
	}
	if env := os.Getenv(envLogLevel); env != "" {
		if lvl, ok := parseLevel(env); ok {
			return lvl
		}
	}
	return zap.InfoLevel
}

// parseLevel converts string to zapcore.Level.
func parseLevel(s string) (zapcore.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zap.DebugLevel, true
	case "info", "":
		return zap.InfoLevel, true
	case "warn", "warning":
		return zap.WarnLevel, true
	case "error", "err":
		return zap.ErrorLevel, true
	}
	return 0, false
}

// SetLevel changes the runtime log level.
func SetLevel(level string) error {
	Init()
	lvl, ok := parseLevel(level)
	if !ok {
		return errors.Errorf("invalid log level: %s", level)
	}
	atomicLevel.SetLevel(lvl)
	return nil
}

// Level returns the current runtime level as string.
func Level() string {
	Init()
	return atomicLevel.Level().String()
}

// UseWriter swaps the output writer (intended for tests). Retains current level.
func UseWriter(w io.Writer) {
	Init()
	mu.Lock()
	defer mu.Unlock()
	global = newLogger(zapcore.AddSync(w))
}

// Logger returns the global logger (ensures Init was called).
func Logger() *zap.Logger {
	Init()
	mu.Lock()
	defer mu.Unlock()
	return global
}

// Convenience top-level logging functions.
func Debug(msg string, fields ...zap.Field) { Logger().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { Logger().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { Logger().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { Logger().Error(msg, fields...) }

// WithConn attaches connection identity fields.
func WithConn(l *zap.Logger, connID, peerAddr string) *zap.Logger {
	return l.With(zap.String("conn_id", connID), zap.String("peer_addr", peerAddr))
}

// WithApp attaches the connected application name.
func WithApp(l *zap.Logger, app string) *zap.Logger {
	return l.With(zap.String("app", app))
}

// WithMessageMeta attaches message metadata fields (RTMP timestamp is
// milliseconds relative to stream epoch).
func WithMessageMeta(l *zap.Logger, msgType uint8, csid uint32, msid uint32, ts uint32) *zap.Logger {
	return l.With(
		zap.Uint8("msg_type", msgType),
		zap.Uint32("csid", csid),
		zap.Uint32("msid", msid),
		zap.Uint32("timestamp", ts),
	)
}
