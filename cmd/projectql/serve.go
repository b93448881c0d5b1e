package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	eventbus "github.com/hanpama/projectql/internal/eventbus"
	gateway "github.com/hanpama/projectql/internal/gateway"
	logging "github.com/hanpama/projectql/internal/logging"
	metrics "github.com/hanpama/projectql/internal/metrics"
	otel "github.com/hanpama/projectql/internal/otel"
	querycache "github.com/hanpama/projectql/internal/querycache"
	server "github.com/hanpama/projectql/internal/server"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP GraphQL endpoint",
		Long: `
serve answers GraphQL queries at /graphql. Field values are read from the
JSON document given with --root; every root field is a key of it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := newConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := logging.New(conf.GetString("log.level"), conf.GetBool("log.json"))
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, conf, logger)
		},
	}
	f := cmd.Flags()
	addSchemaFlags(f)
	f.String("root", "", "JSON file holding the root value")
	f.String("addr", ":8080", "HTTP listen address")
	f.Duration("timeout", 10*time.Second, "Per-request timeout")
	f.Bool("pretty", false, "Pretty-print JSON responses")
	f.Int64("max-body-bytes", 1<<20, "Maximum request body size. 0 means unlimited.")
	f.StringSlice("cors", nil, "Allowed CORS origin, or * for any. Repeatable.")
	f.Int64("cache-size", querycache.DefaultSize, "Number of parsed queries kept")
	f.Bool("introspection", true, "Answer __schema and __type queries")
	f.Int("concurrency", 16, "Maximum resolvers running at once per batch. 0 or less means unbounded.")
	f.String("log.level", "info", "Log level: debug, info, warn or error")
	f.Bool("log.json", false, "Log JSON instead of console output")
	f.String("otel.endpoint", "", "OTLP/gRPC collector endpoint. Empty disables tracing.")
	f.String("otel.service", "projectql", "OpenTelemetry service name")
	f.String("metrics.path", "/metrics", "Path serving Prometheus metrics. Empty disables it.")
	return cmd
}

func serve(ctx context.Context, conf *viper.Viper, logger *zap.Logger) error {
	bus := eventbus.New()
	shutdownTracing, err := otel.Setup(bus, conf.GetString("otel.endpoint"), conf.GetString("otel.service"))
	if err != nil {
		return errors.Wrap(err, "otel setup")
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	handler, closeGateway, err := newHandler(conf, bus, logger)
	if err != nil {
		return err
	}
	defer closeGateway()

	srv := &http.Server{Addr: conf.GetString("addr"), Handler: handler}
	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "http shutdown")
	}
	return nil
}

// newHandler builds the gateway and the mux serving it, with logging and
// metrics subscribed to bus.
func newHandler(conf *viper.Viper, bus *eventbus.Bus, logger *zap.Logger) (http.Handler, func(), error) {
	base, extensions, err := loadSchemaSources(conf)
	if err != nil {
		return nil, nil, err
	}
	root, err := loadRoot(conf.GetString("root"))
	if err != nil {
		return nil, nil, err
	}
	exts := make([]gateway.Extension, len(extensions))
	for i, sdl := range extensions {
		exts[i] = gateway.Extension{Schema: sdl}
	}

	gw, err := gateway.New(gateway.Config{
		Schema:      base,
		Extensions:  exts,
		Root:        root,
		CacheSize:   conf.GetInt64("cache-size"),
		Concurrency: conf.GetInt("concurrency"),
		Logger:      logger,
		Bus:         bus,

		DisableIntrospection: !conf.GetBool("introspection"),
	})
	if err != nil {
		return nil, nil, err
	}

	unsubLog := logging.Attach(bus, logger)
	var opts []server.Option
	if d := conf.GetDuration("timeout"); d > 0 {
		opts = append(opts, server.WithTimeout(d))
	}
	if conf.GetBool("pretty") {
		opts = append(opts, server.WithPretty())
	}
	if n := conf.GetInt64("max-body-bytes"); n > 0 {
		opts = append(opts, server.WithMaxBodyBytes(n))
	}
	if origins := conf.GetStringSlice("cors"); len(origins) > 0 {
		opts = append(opts, server.WithCORS(origins...))
	}

	mux := http.NewServeMux()
	mux.Handle("/graphql", server.New(gw, opts...))

	unsubMetrics := func() {}
	if path := conf.GetString("metrics.path"); path != "" {
		m := metrics.New()
		unsubMetrics = m.Attach(bus)
		mux.Handle(path, m.Handler())
	}

	return mux, func() {
		unsubMetrics()
		unsubLog()
		gw.Close()
	}, nil
}

func loadRoot(path string) (any, error) {
	if path == "" {
		return map[string]any{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading root value")
	}
	var root map[string]any
	if err := json.Unmarshal(b, &root); err != nil {
		return nil, errors.Wrapf(err, "root value %s", path)
	}
	return root, nil
}
