package executor

import (
	"context"

	language "github.com/hanpama/projectql/internal/language"
	projection "github.com/hanpama/projectql/internal/projection"
	schema "github.com/hanpama/projectql/internal/schema"
)

// ResolveInfo describes the field being resolved. Batched resolvers receive
// it on AsyncResolveTask; synchronous resolution finds it in the context.
//
// ResolveInfo implements projection.Info.
type ResolveInfo struct {
	FieldName  string
	ParentType *schema.Type
	Path       Path
	Schema     *schema.Schema
	Operation  *language.OperationDefinition
	Variables  map[string]any

	// Nodes are the field nodes merged under the field's response name.
	Nodes []*language.Field
	// Type is the declared return type of the field.
	Type      *schema.TypeRef
	Fragments language.FragmentDefinitionList
}

var _ projection.Info = (*ResolveInfo)(nil)

func (i *ResolveInfo) FieldNodes() []*language.Field { return i.Nodes }

func (i *ResolveInfo) Fragment(name string) *language.FragmentDefinition {
	return i.Fragments.ForName(name)
}

func (i *ResolveInfo) LookupType(name string) *schema.Type { return i.Schema.LookupType(name) }

func (i *ResolveInfo) ReturnType() *schema.TypeRef { return i.Type }

// Projection compiles the sub-fields requested below this field, or below
// the dot-separated path of child fields when path is not empty.
func (i *ResolveInfo) Projection(path string) (projection.Projection, error) {
	return projection.Compile(i, path)
}

type resolveInfoKey struct{}

// WithResolveInfo returns a copy of ctx carrying info.
func WithResolveInfo(ctx context.Context, info *ResolveInfo) context.Context {
	return context.WithValue(ctx, resolveInfoKey{}, info)
}

// ResolveInfoFromContext returns the ResolveInfo stored in ctx, or nil.
func ResolveInfoFromContext(ctx context.Context) *ResolveInfo {
	info, _ := ctx.Value(resolveInfoKey{}).(*ResolveInfo)
	return info
}
