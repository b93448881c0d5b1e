package executor

import (
	"context"
	"fmt"
	"sync"
)

// MockResolver resolves a single field value in tests.
type MockResolver func(ctx context.Context, source any, args map[string]any) (any, error)

const (
	CallKindSync  = "sync"
	CallKindAsync = "async"
)

// NewMockValueResolver returns a MockResolver that always returns val.
func NewMockValueResolver(val any) MockResolver {
	return func(ctx context.Context, source any, args map[string]any) (any, error) {
		return val, nil
	}
}

// NewMockErrorResolver returns a MockResolver that always fails with err.
func NewMockErrorResolver(err error) MockResolver {
	return func(ctx context.Context, source any, args map[string]any) (any, error) {
		return nil, err
	}
}

// Call records one resolved field. Async calls of the same flush share a
// BatchID; sync calls have BatchID 0.
type Call struct {
	Kind       string
	ObjectType string
	Field      string
	Source     any
	Args       map[string]any
	BatchID    int
}

// MockRuntime implements Runtime over a map of resolvers keyed
// "ObjectType.field" and records every call.
type MockRuntime struct {
	mu        sync.Mutex
	resolvers map[string]MockResolver
	calls     []Call
	infos     []*ResolveInfo
	batchSeq  int

	TypeResolver func(value any) (string, error)
	Serializer   func(typeName string, value any) (any, error)
}

func NewMockRuntime(resolvers map[string]MockResolver) *MockRuntime {
	m := &MockRuntime{resolvers: make(map[string]MockResolver, len(resolvers))}
	for k, v := range resolvers {
		m.resolvers[k] = v
	}
	return m
}

func (m *MockRuntime) SetResolver(objectType, field string, resolver MockResolver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolvers[objectType+"."+field] = resolver
}

func (m *MockRuntime) resolve(ctx context.Context, call Call, info *ResolveInfo) (any, error) {
	m.mu.Lock()
	r := m.resolvers[call.ObjectType+"."+call.Field]
	m.calls = append(m.calls, call)
	m.infos = append(m.infos, info)
	m.mu.Unlock()

	if r == nil {
		return nil, nil
	}
	return r(ctx, call.Source, call.Args)
}

func (m *MockRuntime) ResolveSync(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error) {
	call := Call{Kind: CallKindSync, ObjectType: objectType, Field: field, Source: source, Args: args}
	return m.resolve(ctx, call, ResolveInfoFromContext(ctx))
}

func (m *MockRuntime) BatchResolveAsync(ctx context.Context, tasks []AsyncResolveTask) []AsyncResolveResult {
	m.mu.Lock()
	m.batchSeq++
	batchID := m.batchSeq
	m.mu.Unlock()

	results := make([]AsyncResolveResult, len(tasks))
	for i, t := range tasks {
		call := Call{Kind: CallKindAsync, ObjectType: t.ObjectType, Field: t.Field, Source: t.Source, Args: t.Args, BatchID: batchID}
		val, err := m.resolve(ctx, call, t.Info)
		results[i] = AsyncResolveResult{Value: val, Error: err}
	}
	return results
}

// ResolveType uses TypeResolver when set, otherwise the "__typename" key of
// map values.
func (m *MockRuntime) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	if m.TypeResolver != nil {
		return m.TypeResolver(value)
	}
	if obj, ok := value.(map[string]any); ok {
		if name, ok := obj["__typename"].(string); ok {
			return name, nil
		}
	}
	return "", fmt.Errorf("cannot resolve type of %s value", abstractType)
}

func (m *MockRuntime) SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, value any) (any, error) {
	if m.Serializer != nil {
		return m.Serializer(scalarOrEnumTypeName, value)
	}
	return value, nil
}

// GetCalls returns a copy of the recorded calls in order.
func (m *MockRuntime) GetCalls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// GetInfos returns the ResolveInfo of every recorded call, in call order.
func (m *MockRuntime) GetInfos() []*ResolveInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*ResolveInfo(nil), m.infos...)
}

// Reset clears recorded calls; resolvers are kept.
func (m *MockRuntime) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.infos = nil
	m.batchSeq = 0
}
