// Package gateway ties schema, query cache, resolver runtime and executor
// into a single request pipeline.
package gateway

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	eventbus "github.com/hanpama/projectql/internal/eventbus"
	events "github.com/hanpama/projectql/internal/events"
	executor "github.com/hanpama/projectql/internal/executor"
	introspection "github.com/hanpama/projectql/internal/introspection"
	language "github.com/hanpama/projectql/internal/language"
	querycache "github.com/hanpama/projectql/internal/querycache"
	resolver "github.com/hanpama/projectql/internal/resolver"
	schema "github.com/hanpama/projectql/internal/schema"
)

const (
	MessageMissingQuery   = "missing GraphQL query"
	MessageMalformedQuery = "malformed GraphQL query"
	MessageExecution      = "GraphQL query execution error"
)

// Extension adds types or fields to the base schema together with the
// resolvers backing them.
type Extension struct {
	Schema    string
	Resolvers map[string]resolver.Func
}

type Config struct {
	// Schema is the base SDL. Empty means schema.DefaultSource.
	Schema     string
	Extensions []Extension
	// Root is the source value of root fields.
	Root any
	// Resolvers are keyed "Type.field". Every key must name a schema field.
	Resolvers map[string]resolver.Func
	// TypeResolvers are keyed by interface or union name.
	TypeResolvers map[string]resolver.TypeFunc

	CacheSize       int64
	Concurrency     int
	ResolverTimeout time.Duration
	Logger          *zap.Logger
	// Bus receives operation and cache events. Nil disables them.
	Bus *eventbus.Bus
	// DisableIntrospection stops answering __schema and __type.
	DisableIntrospection bool
}

// Request is one GraphQL operation request.
type Request struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
}

// RequestError is returned for requests that could not be served. Errors
// holds the underlying GraphQL errors, if any.
type RequestError struct {
	Message string
	Errors  language.ErrorList
}

func (e *RequestError) Error() string {
	if len(e.Errors) == 0 {
		return e.Message
	}
	return e.Message + ": " + e.Errors.Error()
}

type Gateway struct {
	schema *schema.Schema
	cache  *querycache.Cache
	exec   *executor.Executor
	root   any
	bus    *eventbus.Bus
}

// New builds the schema with its extensions and registers the configured
// resolvers. Fields backed by a resolver are marked resolved on the schema
// so projections leave them out.
func New(cfg Config) (*Gateway, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	extensions := make([]string, 0, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		extensions = append(extensions, ext.Schema)
	}
	sch, validated, err := schema.Build(cfg.Schema, extensions...)
	if err != nil {
		return nil, err
	}

	reg := resolver.NewRegistry()
	register := func(resolvers map[string]resolver.Func) error {
		for key, fn := range resolvers {
			typeName, field, err := resolver.SplitKey(key)
			if err != nil {
				return err
			}
			if err := sch.MarkResolved(typeName, field); err != nil {
				return errors.Wrapf(err, "resolver %s", key)
			}
			if err := reg.Register(key, fn); err != nil {
				return err
			}
		}
		return nil
	}
	if err := register(cfg.Resolvers); err != nil {
		return nil, err
	}
	for _, ext := range cfg.Extensions {
		if err := register(ext.Resolvers); err != nil {
			return nil, err
		}
	}
	for name, fn := range cfg.TypeResolvers {
		if !sch.LookupType(name).IsAbstract() {
			return nil, errors.Errorf("type resolver %s: %q is not an interface or union", name, name)
		}
		reg.RegisterType(name, fn)
	}

	cache, err := querycache.New(validated, cfg.CacheSize, cfg.Bus)
	if err != nil {
		return nil, err
	}

	opts := []resolver.Option{resolver.WithLogger(logger)}
	if cfg.Concurrency != 0 {
		opts = append(opts, resolver.WithConcurrency(cfg.Concurrency))
	}
	if cfg.ResolverTimeout > 0 {
		opts = append(opts, resolver.WithTimeout(cfg.ResolverTimeout))
	}
	var runtime executor.Runtime = resolver.NewRuntime(reg, sch, opts...)
	execSchema := sch
	if !cfg.DisableIntrospection {
		runtime, execSchema = introspection.Wrap(runtime, sch, validated)
	}

	logger.Debug("gateway ready",
		zap.Int("types", len(sch.Types)),
		zap.Strings("resolvers", reg.Keys()))

	return &Gateway{
		schema: sch,
		cache:  cache,
		exec:   executor.NewExecutor(runtime, execSchema),
		root:   cfg.Root,
		bus:    cfg.Bus,
	}, nil
}

// Request runs one operation. When execution reports errors both the result,
// holding any partial data, and a *RequestError are returned.
func (g *Gateway) Request(ctx context.Context, req Request) (res *executor.ExecutionResult, err error) {
	start := time.Now()
	opType := ""
	eventbus.Emit(ctx, g.bus, events.GraphQLStart{Query: req.Query, OperationName: req.OperationName})
	defer func() {
		finish := events.GraphQLFinish{
			Query:         req.Query,
			OperationName: req.OperationName,
			OperationType: opType,
			Duration:      time.Since(start),
		}
		var rerr *RequestError
		if errors.As(err, &rerr) && len(rerr.Errors) > 0 {
			for _, e := range rerr.Errors {
				finish.Errors = append(finish.Errors, e)
			}
		} else if err != nil {
			finish.Errors = []error{err}
		}
		eventbus.Emit(ctx, g.bus, finish)
	}()

	if req.Query == "" {
		return nil, &RequestError{
			Message: MessageMissingQuery,
			Errors:  language.ErrorList{{Message: "missing query"}},
		}
	}

	doc, errs := g.cache.Get(ctx, req.Query)
	if len(errs) > 0 {
		return nil, &RequestError{Message: MessageMalformedQuery, Errors: errs}
	}
	if op, err := executor.GetOperation(doc, req.OperationName); err == nil {
		opType = string(op.Operation)
	}

	res = g.exec.ExecuteRequest(ctx, doc, req.OperationName, req.Variables, g.root)
	if len(res.Errors) > 0 {
		return res, &RequestError{Message: MessageExecution, Errors: toErrorList(res.Errors)}
	}
	return res, nil
}

// Schema returns the built schema. It must not be modified.
func (g *Gateway) Schema() *schema.Schema { return g.schema }

// Bus returns the event bus the gateway reports to, possibly nil.
func (g *Gateway) Bus() *eventbus.Bus { return g.bus }

// Close releases the query cache.
func (g *Gateway) Close() {
	g.cache.Close()
}

func toErrorList(errs []executor.GraphQLError) language.ErrorList {
	out := make(language.ErrorList, len(errs))
	for i, e := range errs {
		ge := &language.Error{Message: e.Message, Extensions: e.Extensions}
		for _, loc := range e.Locations {
			ge.Locations = append(ge.Locations, language.Location{Line: loc.Line, Column: loc.Column})
		}
		for _, elem := range e.Path {
			switch v := elem.(type) {
			case string:
				ge.Path = append(ge.Path, language.PathName(v))
			case int:
				ge.Path = append(ge.Path, language.PathIndex(v))
			}
		}
		out[i] = ge
	}
	return out
}
