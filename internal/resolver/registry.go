package resolver

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	executor "github.com/hanpama/projectql/internal/executor"
)

// Params is the input of a field resolver.
type Params struct {
	// Source is the parent object value, the root value for root fields.
	Source any
	// Args are the coerced field arguments.
	Args map[string]any
	// Info describes the field and its selections; Info.Projection reports the
	// requested sub-fields.
	Info *executor.ResolveInfo
}

// Func resolves one field value.
type Func func(ctx context.Context, p Params) (any, error)

// TypeFunc names the concrete object type of a value of an interface or
// union type.
type TypeFunc func(ctx context.Context, value any) (string, error)

// Registry holds field resolvers keyed "Type.field" and type resolvers keyed
// by abstract type name. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	fields    map[string]Func
	typeFuncs map[string]TypeFunc
}

func NewRegistry() *Registry {
	return &Registry{
		fields:    make(map[string]Func),
		typeFuncs: make(map[string]TypeFunc),
	}
}

// Key returns the registry key of a field.
func Key(typeName, field string) string { return typeName + "." + field }

// SplitKey splits a "Type.field" key.
func SplitKey(key string) (typeName, field string, err error) {
	typeName, field, ok := strings.Cut(key, ".")
	if !ok || typeName == "" || field == "" {
		return "", "", errors.Errorf("resolver key %q is not of the form Type.field", key)
	}
	return typeName, field, nil
}

// Register sets the resolver of a "Type.field" key, replacing any previous
// one.
func (r *Registry) Register(key string, fn Func) error {
	if _, _, err := SplitKey(key); err != nil {
		return err
	}
	if fn == nil {
		return errors.Errorf("resolver %s is nil", key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fields[key] = fn
	return nil
}

// RegisterType sets the type resolver of an interface or union.
func (r *Registry) RegisterType(abstractType string, fn TypeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.typeFuncs[abstractType] = fn
}

func (r *Registry) Lookup(typeName, field string) Func {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fields[Key(typeName, field)]
}

func (r *Registry) LookupType(abstractType string) TypeFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.typeFuncs[abstractType]
}

// Keys returns the registered field keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.fields))
	for k := range r.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
