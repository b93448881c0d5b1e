package resolver

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	executor "github.com/hanpama/projectql/internal/executor"
	schema "github.com/hanpama/projectql/internal/schema"
)

// Typed is implemented by values that know their GraphQL object type.
type Typed interface {
	GraphQLType() string
}

// Runtime implements executor.Runtime over in-process Go values.
//   - Fields without a custom resolver are read off the source value: map
//     keys, or exported struct fields matched by json tag or name.
//   - Resolver-backed fields run their registered Func. One batch fans out
//     over an errgroup bounded by Options.Concurrency; results keep task
//     order and fail independently.
//   - A panicking resolver fails its own field only.
type Runtime struct {
	reg    *Registry
	schema *schema.Schema
	opts   *Options
}

var _ executor.Runtime = (*Runtime)(nil)

func NewRuntime(reg *Registry, sch *schema.Schema, opts ...Option) *Runtime {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &Runtime{reg: reg, schema: sch, opts: o}
}

// ResolveSync reads a plain field. A registered resolver still wins when the
// field was not marked as resolver-backed.
func (r *Runtime) ResolveSync(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error) {
	if fn := r.reg.Lookup(objectType, field); fn != nil {
		return r.call(ctx, fn, Key(objectType, field), Params{
			Source: source,
			Args:   args,
			Info:   executor.ResolveInfoFromContext(ctx),
		})
	}
	return readField(source, field)
}

func (r *Runtime) BatchResolveAsync(ctx context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	results := make([]executor.AsyncResolveResult, len(tasks))
	if len(tasks) == 0 {
		return results
	}

	var g errgroup.Group
	if r.opts.Concurrency > 0 {
		g.SetLimit(r.opts.Concurrency)
	}
	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			results[i] = r.resolveTask(ctx, task)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (r *Runtime) resolveTask(ctx context.Context, task executor.AsyncResolveTask) executor.AsyncResolveResult {
	key := Key(task.ObjectType, task.Field)
	fn := r.reg.Lookup(task.ObjectType, task.Field)
	if fn == nil {
		return executor.AsyncResolveResult{Error: errors.Errorf("no resolver registered for %s", key)}
	}
	if task.Info != nil {
		ctx = executor.WithResolveInfo(ctx, task.Info)
	}
	v, err := r.call(ctx, fn, key, Params{Source: task.Source, Args: task.Args, Info: task.Info})
	return executor.AsyncResolveResult{Value: v, Error: err}
}

func (r *Runtime) call(ctx context.Context, fn Func, key string, p Params) (v any, err error) {
	if r.opts.Timeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
			defer cancel()
		}
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.opts.Logger.Error("resolver panicked", zap.String("field", key), zap.Any("panic", rec))
			v, err = nil, errors.Errorf("resolver %s panicked: %v", key, rec)
		}
	}()
	return fn(ctx, p)
}

// ResolveType names the concrete type of value: a registered TypeFunc, then
// Typed, then a "__typename" map key, then the Go struct type name.
func (r *Runtime) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	if fn := r.reg.LookupType(abstractType); fn != nil {
		return fn(ctx, value)
	}
	switch v := value.(type) {
	case Typed:
		return v.GraphQLType(), nil
	case map[string]any:
		if name, ok := v["__typename"].(string); ok && name != "" {
			return name, nil
		}
	}
	t := reflect.TypeOf(value)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t != nil && t.Kind() == reflect.Struct && t.Name() != "" {
		return t.Name(), nil
	}
	return "", errors.Errorf("cannot resolve the concrete type of %s value %T", abstractType, value)
}

// SerializeLeafValue coerces built-in scalars to their JSON representation.
// Enums serialize to their name; custom scalars pass through, with []byte
// base64 encoded.
func (r *Runtime) SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch scalarOrEnumTypeName {
	case "Int":
		return serializeInt(value)
	case "Float":
		return serializeFloat(value)
	case "String":
		return serializeString(value), nil
	case "ID":
		return serializeString(value), nil
	case "Boolean":
		if b, ok := value.(bool); ok {
			return b, nil
		}
		return nil, errors.Errorf("Boolean cannot represent a non boolean value: %v", value)
	}

	if t := r.schema.LookupType(scalarOrEnumTypeName); t != nil && t.Kind == schema.TypeKindEnum {
		name := serializeString(value)
		for _, ev := range t.EnumValues {
			if ev.Name == name {
				return name, nil
			}
		}
		return nil, errors.Errorf("Enum %q cannot represent value: %v", scalarOrEnumTypeName, value)
	}

	if b, ok := value.([]byte); ok {
		return base64.StdEncoding.EncodeToString(b), nil
	}
	return value, nil
}

func serializeInt(value any) (any, error) {
	rv := reflect.ValueOf(value)
	var n int64
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n = rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if rv.Uint() > math.MaxInt32 {
			return nil, errors.Errorf("Int cannot represent non 32-bit signed integer value: %v", value)
		}
		n = int64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) {
			return nil, errors.Errorf("Int cannot represent non-integer value: %v", value)
		}
		n = int64(f)
	case reflect.String:
		parsed, err := strconv.ParseInt(rv.String(), 10, 64)
		if err != nil {
			return nil, errors.Errorf("Int cannot represent non-integer value: %q", rv.String())
		}
		n = parsed
	default:
		return nil, errors.Errorf("Int cannot represent value: %v", value)
	}
	if n > math.MaxInt32 || n < math.MinInt32 {
		return nil, errors.Errorf("Int cannot represent non 32-bit signed integer value: %v", value)
	}
	return int(n), nil
}

func serializeFloat(value any) (any, error) {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	case reflect.String:
		f, err := strconv.ParseFloat(rv.String(), 64)
		if err != nil {
			return nil, errors.Errorf("Float cannot represent non numeric value: %q", rv.String())
		}
		return f, nil
	}
	return nil, errors.Errorf("Float cannot represent value: %v", value)
}

func serializeString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case []byte:
		return string(v)
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.String {
		return rv.String()
	}
	return fmt.Sprint(value)
}

// readField reads name off a map or struct source. Missing keys and nil
// sources read as null.
func readField(source any, name string) (any, error) {
	if m, ok := source.(map[string]any); ok {
		return m[name], nil
	}

	rv := reflect.ValueOf(source)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Invalid:
		return nil, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, errors.Errorf("cannot read field %q from %T: map key is not a string", name, source)
		}
		v := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, nil
		}
		return v.Interface(), nil
	case reflect.Struct:
		if v, ok := structField(rv, name); ok {
			return v.Interface(), nil
		}
		return nil, nil
	}
	return nil, errors.Errorf("cannot read field %q from %T", name, source)
}

// structField finds the exported field tagged json:"name", falling back to
// a case-insensitive match on the Go field name. Embedded structs are
// searched after the outer fields.
func structField(rv reflect.Value, name string) (reflect.Value, bool) {
	t := rv.Type()
	var byName, embedded []int
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch {
		case tag == "-":
			continue
		case tag == name:
			return rv.Field(i), true
		case tag == "" && strings.EqualFold(f.Name, name):
			byName = append(byName, i)
		}
		if f.Anonymous && tag == "" {
			embedded = append(embedded, i)
		}
	}
	if len(byName) > 0 {
		return rv.Field(byName[0]), true
	}
	for _, i := range embedded {
		inner := rv.Field(i)
		if inner.Kind() == reflect.Ptr {
			if inner.IsNil() {
				continue
			}
			inner = inner.Elem()
		}
		if inner.Kind() == reflect.Struct {
			if v, ok := structField(inner, name); ok {
				return v, true
			}
		}
	}
	return reflect.Value{}, false
}
