// internal/utils/logger.go
package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"hardware-service/internal/config"
)

// NewLogger creates a new logger instance based on configuration
func NewLogger(cfg *config.LoggingConfig) (*zap.Logger, error) {
	encoderConfig := getEncoderConfig(cfg)

	var encoder zapcore.Encoder
	switch cfg.Format {
	case "console":
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	writeSyncer, err := getWriteSyncer(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create write syncer: %w", err)
	}

	level, err := getLogLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	core := zapcore.NewCore(encoder, writeSyncer, level)
	logger := zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)

	return logger, nil
}

func getEncoderConfig(cfg *config.LoggingConfig) zapcore.EncoderConfig {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	encoderConfig.LevelKey = "level"
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	encoderConfig.CallerKey = "caller"
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	encoderConfig.MessageKey = "message"
	encoderConfig.StacktraceKey = "stacktrace"

	if cfg.Format == "console" {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	}

	return encoderConfig
}

func getWriteSyncer(cfg *config.LoggingConfig) (zapcore.WriteSyncer, error) {
	switch cfg.Output {
	case "stdout", "":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	default:
		logDir := filepath.Dir(cfg.Output)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		lumber := &lumberjack.Logger{
			Filename:   cfg.Output,
			MaxSize:    cfg.MaxSize, // MB
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge, // days
			Compress:   cfg.Compress,
		}
		return zapcore.AddSync(lumber), nil
	}
}

func getLogLevel(level string) (zapcore.Level, error) {
	switch level {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "fatal":
		return zapcore.FatalLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
}

// DeviceLogger wraps zap.Logger with device-specific fields
type DeviceLogger struct {
	*zap.Logger
	deviceID   string
	deviceKind string
}

// NewDeviceLogger creates a device-specific logger
func NewDeviceLogger(baseLogger *zap.Logger, deviceID, deviceKind string) *DeviceLogger {
	logger := baseLogger.With(
		zap.String("device_id", deviceID),
		zap.String("device_kind", deviceKind),
		zap.String("component", "device"),
	)

	return &DeviceLogger{
		Logger:     logger,
		deviceID:   deviceID,
		deviceKind: deviceKind,
	}
}

// LogOperation logs a device operation with its outcome
func (dl *DeviceLogger) LogOperation(operationType, operationID string, duration time.Duration, err error) {
	fields := []zap.Field{
		zap.String("operation_type", operationType),
		zap.String("operation_id", operationID),
		zap.Duration("duration", duration),
		zap.Bool("success", err == nil),
	}

	if err != nil {
		fields = append(fields, zap.Error(err))
		dl.Error("Device operation failed", fields...)
	} else {
		dl.Info("Device operation completed", fields...)
	}
}

// LogConnection logs connection events
func (dl *DeviceLogger) LogConnection(action string, err error) {
	fields := []zap.Field{
		zap.String("action", action),
		zap.Bool("success", err == nil),
	}

	if err != nil {
		fields = append(fields, zap.Error(err))
		dl.Error("Device connection event", fields...)
	} else {
		dl.Info("Device connection event", fields...)
	}
}

// CloseLogger flushes any buffered log entries
func CloseLogger(logger *zap.Logger) error {
	return logger.Sync()
}
