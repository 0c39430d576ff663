// Package logging wraps zap with payflow's field helpers. Payer phone
// numbers only ever reach the logs masked.
package logging

import (
	"strings"

	"payflow/pkg/payment"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger.
type Logger struct {
	*zap.Logger
}

// Config holds logging configuration.
type Config struct {
	// Level is debug, info, warn or error
	Level string
	// Format is json or console
	Format string
	// OutputPaths default to stdout
	OutputPaths []string
	// Development enables stack traces and DPanic panics
	Development  bool
	EnableCaller bool
	// Service is attached to every entry when set
	Service string
}

// DefaultConfig returns the production configuration: JSON at info level.
func DefaultConfig() Config {
	return Config{
		Level:       "info",
		Format:      "json",
		OutputPaths: []string{"stdout"},
		Service:     "payflow",
	}
}

// DevelopmentConfig returns a human-readable configuration at debug level.
func DevelopmentConfig() Config {
	return Config{
		Level:        "debug",
		Format:       "console",
		OutputPaths:  []string{"stdout"},
		Development:  true,
		EnableCaller: true,
	}
}

// NewLogger builds a logger from config.
func NewLogger(config Config) (*Logger, error) {
	encoder := zap.NewProductionEncoderConfig()
	if config.Development {
		encoder = zap.NewDevelopmentEncoderConfig()
	}
	encoder.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder.EncodeDuration = zapcore.StringDurationEncoder

	outputs := config.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zc := zap.Config{
		Level:             zap.NewAtomicLevelAt(parseLevel(config.Level)),
		Development:       config.Development,
		DisableCaller:     !config.EnableCaller,
		DisableStacktrace: !config.Development,
		Encoding:          config.Format,
		EncoderConfig:     encoder,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
	}
	if config.Service != "" {
		zc.InitialFields = map[string]interface{}{"service": config.Service}
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{logger}, nil
}

// NewNoOpLogger returns a logger that discards everything.
func NewNoOpLogger() *Logger {
	return &Logger{zap.NewNop()}
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// With returns a child logger carrying fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{l.Logger.With(fields...)}
}

// Named returns a child logger under name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{l.Logger.Named(name)}
}

// Phone logs a payer phone number with everything past the operator prefix masked.
func Phone(phone string) zap.Field {
	return zap.String("phone", payment.MaskPhone(phone))
}

// TransactionID logs the payment service's transaction id.
func TransactionID(id string) zap.Field {
	return zap.String("transaction_id", id)
}

// Status logs a payment status.
func Status(s payment.Status) zap.Field {
	return zap.String("status", string(s))
}

// Amount logs an amount with its currency, e.g. "MZN 2500.00".
func Amount(amount decimal.Decimal, currency string) zap.Field {
	return zap.String("amount", payment.FormatAmount(amount, currency))
}

// AccountReference logs the reference shown on the payer's statement.
func AccountReference(ref string) zap.Field {
	return zap.String("account_reference", ref)
}

// IdempotencyKey logs the key deduplicating an initiate request.
func IdempotencyKey(key string) zap.Field {
	return zap.String("idempotency_key", key)
}

var global = NewNoOpLogger()

// SetGlobal replaces the logger returned by Global.
func SetGlobal(logger *Logger) {
	global = logger
}

// Global returns the process-wide logger; a no-op until SetGlobal.
func Global() *Logger {
	return global
}
