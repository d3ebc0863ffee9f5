// Package clog collects request-scoped zap fields and emits them as a single
// log line at the end of the request.
package clog

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Logger, _ = zap.NewProduction()

// New builds a process logger. Development mode writes console output.
func New(level string, development bool) (*zap.Logger, error) {
	lvl := zap.NewAtomicLevel()
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = lvl
	return cfg.Build()
}

type ctxKey struct{}

type ctxValue struct {
	fields []zap.Field
	sync.Mutex
}

func Context(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, &ctxValue{})
}

// Set records f on the request. It is a no-op when ctx was not prepared with Context.
func Set(ctx context.Context, f zap.Field) {
	ctxVal, ok := ctx.Value(ctxKey{}).(*ctxValue)
	if !ok {
		return
	}
	ctxVal.Lock()
	ctxVal.fields = append(ctxVal.fields, f)
	ctxVal.Unlock()
}

// Fields returns a copy of the fields recorded so far.
func Fields(ctx context.Context) []zap.Field {
	ctxVal, ok := ctx.Value(ctxKey{}).(*ctxValue)
	if !ok {
		return nil
	}
	ctxVal.Lock()
	defer ctxVal.Unlock()
	return append([]zap.Field(nil), ctxVal.fields...)
}

// Log writes msg with the collected fields and resets them.
func Log(ctx context.Context, msg string) {
	LogTo(ctx, Logger, msg)
}

// LogTo is Log with an explicit logger. Requests answered with 5xx are logged at error level.
func LogTo(ctx context.Context, logger *zap.Logger, msg string) {
	ctxVal, ok := ctx.Value(ctxKey{}).(*ctxValue)
	if !ok {
		logger.Info(msg)
		return
	}
	ctxVal.Lock()
	level := zapcore.InfoLevel
	for _, f := range ctxVal.fields {
		if f.Key == "response_status" && f.Integer >= 500 {
			level = zapcore.ErrorLevel
		}
	}
	if ce := logger.Check(level, msg); ce != nil {
		ce.Write(ctxVal.fields...)
	}
	ctxVal.fields = ctxVal.fields[:0]
	ctxVal.Unlock()
}
