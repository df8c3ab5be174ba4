package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"tg-amnesia/internal/config"
)

var (
	mu    sync.RWMutex
	sugar = zap.NewNop().Sugar()
)

// createLogFilePath generates a log file path with the current date
func createLogFilePath(logDir, prefix string) string {
	currentDate := time.Now().Format("2006-01-02")
	return filepath.Join(logDir, fmt.Sprintf("%s-%s.log", prefix, currentDate))
}

// createRotatingLogger creates a lumberjack rotating logger
func createRotatingLogger(logFilePath string, cfg *config.Config) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    cfg.Logger.Rotation.MaxSize,
		MaxBackups: cfg.Logger.Rotation.MaxBackups,
		MaxAge:     cfg.Logger.Rotation.MaxAge,
		Compress:   cfg.Logger.Rotation.Compress,
	}
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "WARNING", "WARN":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	case "FATAL":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func newEncoder(format string) zapcore.Encoder {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	if format == "json" {
		return zapcore.NewJSONEncoder(encCfg)
	}
	return zapcore.NewConsoleEncoder(encCfg)
}

// Setup configures logging to output to both stdout and a rotating log file
func Setup(cfg *config.Config) error {
	logDir := cfg.Logger.Directory

	// Create log directory if it doesn't exist
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	logFilePath := createLogFilePath(logDir, "tg-amnesia")
	rotatingLogger := createRotatingLogger(logFilePath, cfg)

	level := parseLevel(cfg.Logger.Level)
	core := zapcore.NewTee(
		zapcore.NewCore(newEncoder(cfg.Logger.Format), zapcore.Lock(os.Stdout), level),
		zapcore.NewCore(newEncoder(cfg.Logger.Format), zapcore.AddSync(rotatingLogger), level),
	)

	Use(zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)))

	Infof("Logging initialized: writing to %s", logFilePath)
	return nil
}

// Use replaces the package logger. Tests hand in zaptest loggers here.
func Use(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	sugar = l.Sugar()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Sync flushes buffered entries.
func Sync() {
	_ = current().Sync()
}

func Debugf(format string, args ...interface{}) { current().Debugf(format, args...) }

func Infof(format string, args ...interface{}) { current().Infof(format, args...) }

func Info(args ...interface{}) { current().Info(args...) }

func Warningf(format string, args ...interface{}) { current().Warnf(format, args...) }

func Warning(args ...interface{}) { current().Warn(args...) }

func Errorf(format string, args ...interface{}) { current().Errorf(format, args...) }

func Error(args ...interface{}) { current().Error(args...) }

func Fatalf(format string, args ...interface{}) { current().Fatalf(format, args...) }
