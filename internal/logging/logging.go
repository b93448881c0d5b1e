package logging

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	eventbus "github.com/hanpama/projectql/internal/eventbus"
	events "github.com/hanpama/projectql/internal/events"
	reqid "github.com/hanpama/projectql/internal/reqid"
)

// New builds a logger writing to stderr at the given level ("debug",
// "info", "warn", "error"). json selects the JSON encoder over the console
// one.
func New(level string, json bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "log level %q", level)
	}
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if json {
		enc = zapcore.NewJSONEncoder(cfg)
	} else {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(cfg)
	}
	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), lvl)
	return zap.New(core, zap.AddCaller()), nil
}

// Attach logs the events published on bus: finished HTTP requests at info,
// GraphQL operations at debug (warn when they carry errors) and query cache
// misses at debug.
func Attach(bus *eventbus.Bus, logger *zap.Logger) (unsubscribe func()) {
	unsubs := []func(){
		eventbus.On(bus, func(ctx context.Context, e events.HTTPFinish) {
			logger.Info("http request",
				requestID(ctx),
				zap.String("method", e.Request.Method),
				zap.String("path", e.Request.URL.Path),
				zap.Int("status", e.Status),
				zap.Duration("duration", e.Duration),
			)
		}),

		eventbus.On(bus, func(ctx context.Context, e events.GraphQLFinish) {
			fields := []zap.Field{
				requestID(ctx),
				zap.String("operation", e.OperationName),
				zap.String("type", e.OperationType),
				zap.Duration("duration", e.Duration),
			}
			if len(e.Errors) > 0 {
				logger.Warn("graphql operation failed", append(fields, zap.Errors("errors", e.Errors))...)
				return
			}
			logger.Debug("graphql operation", fields...)
		}),

		eventbus.On(bus, func(ctx context.Context, e events.QueryCacheMiss) {
			if e.Err != nil {
				logger.Debug("query rejected", requestID(ctx), zap.Error(e.Err))
				return
			}
			logger.Debug("query cached", requestID(ctx), zap.Int("bytes", len(e.Query)))
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func requestID(ctx context.Context) zap.Field {
	id, _ := reqid.FromContext(ctx)
	return zap.String("request_id", id)
}
