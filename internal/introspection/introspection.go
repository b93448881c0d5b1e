// Package introspection answers the __schema and __type meta fields on top
// of another executor.Runtime.
package introspection

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/pkg/errors"

	executor "github.com/hanpama/projectql/internal/executor"
	language "github.com/hanpama/projectql/internal/language"
	schema "github.com/hanpama/projectql/internal/schema"
)

// Runtime serves introspection values and delegates everything else to the
// wrapped runtime.
type Runtime struct {
	base   executor.Runtime
	schema *schema.Schema
}

var _ executor.Runtime = (*Runtime)(nil)

// Wrap returns base extended with introspection over sch, and the schema the
// executor must run against: sch plus the meta types taken from validated
// and the __schema and __type fields on the query type. sch itself is left
// unchanged and is what introspection reports.
func Wrap(base executor.Runtime, sch *schema.Schema, validated *language.ValidatedSchema) (*Runtime, *schema.Schema) {
	ext := &schema.Schema{
		QueryType:        sch.QueryType,
		MutationType:     sch.MutationType,
		SubscriptionType: sch.SubscriptionType,
		Types:            make(map[string]*schema.Type, len(sch.Types)+8),
		Directives:       sch.Directives,
		Description:      sch.Description,
	}
	for name, t := range sch.Types {
		ext.Types[name] = t
	}
	for _, t := range schema.IntrospectionTypes(validated) {
		ext.Types[t.Name] = t
	}
	if q := sch.GetQueryType(); q != nil {
		query := *q
		query.Fields = append(slices.Clone(q.Fields),
			schema.NewField("__schema", "Access the current type schema of this server.",
				schema.NonNullType(schema.NamedType("__Schema"))),
			schema.NewField("__type", "Request the type information of a single type.",
				schema.NamedType("__Type")).
				AddArgument(schema.NewInputValue("name", "", schema.NonNullType(schema.NamedType("String")))),
		)
		ext.Types[query.Name] = &query
	}
	return &Runtime{base: base, schema: sch}, ext
}

func (r *Runtime) ResolveSync(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error) {
	switch src := source.(type) {
	case *schema.Schema:
		return r.schemaField(src, field)
	case *schema.Type:
		return r.typeField(src, field, args)
	case *schema.TypeRef:
		return r.typeRefField(src, field, args)
	case *schema.Field:
		return fieldField(src, field, args)
	case *schema.InputValue:
		return inputValueField(src, field)
	case *schema.EnumValue:
		return enumValueField(src, field)
	case *schema.Directive:
		return directiveField(src, field, args)
	}

	if objectType == r.schema.QueryType {
		switch field {
		case "__schema":
			return r.schema, nil
		case "__type":
			name, _ := args["name"].(string)
			return r.schema.LookupType(name), nil
		}
	}
	return r.base.ResolveSync(ctx, objectType, field, source, args)
}

func (r *Runtime) BatchResolveAsync(ctx context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	return r.base.BatchResolveAsync(ctx, tasks)
}

func (r *Runtime) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	return r.base.ResolveType(ctx, abstractType, value)
}

// SerializeLeafValue writes the meta enums __TypeKind and
// __DirectiveLocation by name.
func (r *Runtime) SerializeLeafValue(ctx context.Context, typ string, value any) (any, error) {
	if strings.HasPrefix(typ, "__") {
		return fmt.Sprint(value), nil
	}
	return r.base.SerializeLeafValue(ctx, typ, value)
}

func (r *Runtime) schemaField(s *schema.Schema, field string) (any, error) {
	switch field {
	case "description":
		return optional(s.Description), nil
	case "types":
		types := make([]*schema.Type, 0, len(s.Types))
		for _, t := range s.Types {
			types = append(types, t)
		}
		sort.Slice(types, func(i, j int) bool { return types[i].Name < types[j].Name })
		return types, nil
	case "queryType":
		return s.GetQueryType(), nil
	case "mutationType":
		return s.GetMutationType(), nil
	case "subscriptionType":
		return s.GetSubscriptionType(), nil
	case "directives":
		dirs := make([]*schema.Directive, 0, len(s.Directives))
		for _, d := range s.Directives {
			dirs = append(dirs, d)
		}
		sort.Slice(dirs, func(i, j int) bool { return dirs[i].Name < dirs[j].Name })
		return dirs, nil
	}
	return nil, errors.Errorf("unknown __Schema field %q", field)
}

func (r *Runtime) typeField(t *schema.Type, field string, args map[string]any) (any, error) {
	includeDeprecated, _ := args["includeDeprecated"].(bool)
	composite := t.Kind == schema.TypeKindObject || t.Kind == schema.TypeKindInterface

	switch field {
	case "kind":
		return string(t.Kind), nil
	case "name":
		return t.Name, nil
	case "description":
		return optional(t.Description), nil
	case "specifiedByURL":
		if t.SpecifiedByURL == nil {
			return nil, nil
		}
		return *t.SpecifiedByURL, nil
	case "isOneOf":
		if t.Kind != schema.TypeKindInputObject {
			return nil, nil
		}
		return t.OneOf, nil
	case "ofType":
		return nil, nil
	case "fields":
		if !composite {
			return nil, nil
		}
		out := []*schema.Field{}
		for _, f := range t.Fields {
			if strings.HasPrefix(f.Name, "__") || (f.IsDeprecated && !includeDeprecated) {
				continue
			}
			out = append(out, f)
		}
		return out, nil
	case "interfaces":
		if !composite {
			return nil, nil
		}
		return r.lookupAll(t.Interfaces), nil
	case "possibleTypes":
		if !t.IsAbstract() {
			return nil, nil
		}
		return r.lookupAll(t.PossibleTypes), nil
	case "enumValues":
		if t.Kind != schema.TypeKindEnum {
			return nil, nil
		}
		out := []*schema.EnumValue{}
		for _, ev := range t.EnumValues {
			if !ev.IsDeprecated || includeDeprecated {
				out = append(out, ev)
			}
		}
		return out, nil
	case "inputFields":
		if t.Kind != schema.TypeKindInputObject {
			return nil, nil
		}
		return inputValues(t.InputFields, includeDeprecated), nil
	}
	return nil, errors.Errorf("unknown __Type field %q", field)
}

// typeRefField answers __Type fields for a type reference: wrappers report
// LIST or NON_NULL with ofType set, named references read the named type.
func (r *Runtime) typeRefField(ref *schema.TypeRef, field string, args map[string]any) (any, error) {
	if ref.Kind == schema.TypeRefKindNamed {
		t := r.schema.LookupType(ref.Named)
		if t == nil {
			return nil, errors.Errorf("unknown type %q", ref.Named)
		}
		return r.typeField(t, field, args)
	}
	switch field {
	case "kind":
		return string(ref.Kind), nil
	case "ofType":
		return ref.OfType, nil
	}
	return nil, nil
}

func (r *Runtime) lookupAll(names []string) []*schema.Type {
	out := make([]*schema.Type, 0, len(names))
	for _, name := range names {
		if t := r.schema.LookupType(name); t != nil {
			out = append(out, t)
		}
	}
	return out
}

func fieldField(f *schema.Field, field string, args map[string]any) (any, error) {
	switch field {
	case "name":
		return f.Name, nil
	case "description":
		return optional(f.Description), nil
	case "args":
		includeDeprecated, _ := args["includeDeprecated"].(bool)
		return inputValues(f.Arguments, includeDeprecated), nil
	case "type":
		return f.Type, nil
	case "isDeprecated":
		return f.IsDeprecated, nil
	case "deprecationReason":
		return deprecationReason(f.IsDeprecated, f.DeprecationReason), nil
	}
	return nil, errors.Errorf("unknown __Field field %q", field)
}

func inputValueField(v *schema.InputValue, field string) (any, error) {
	switch field {
	case "name":
		return v.Name, nil
	case "description":
		return optional(v.Description), nil
	case "type":
		return v.Type, nil
	case "defaultValue":
		if v.DefaultValue == nil {
			return nil, nil
		}
		return schema.RenderValue(v.DefaultValue), nil
	case "isDeprecated":
		return v.IsDeprecated, nil
	case "deprecationReason":
		return deprecationReason(v.IsDeprecated, v.DeprecationReason), nil
	}
	return nil, errors.Errorf("unknown __InputValue field %q", field)
}

func enumValueField(v *schema.EnumValue, field string) (any, error) {
	switch field {
	case "name":
		return v.Name, nil
	case "description":
		return optional(v.Description), nil
	case "isDeprecated":
		return v.IsDeprecated, nil
	case "deprecationReason":
		return deprecationReason(v.IsDeprecated, v.DeprecationReason), nil
	}
	return nil, errors.Errorf("unknown __EnumValue field %q", field)
}

func directiveField(d *schema.Directive, field string, args map[string]any) (any, error) {
	switch field {
	case "name":
		return d.Name, nil
	case "description":
		return optional(d.Description), nil
	case "isRepeatable":
		return d.IsRepeatable, nil
	case "locations":
		return d.Locations, nil
	case "args":
		includeDeprecated, _ := args["includeDeprecated"].(bool)
		return inputValues(d.Arguments, includeDeprecated), nil
	}
	return nil, errors.Errorf("unknown __Directive field %q", field)
}

func inputValues(values []*schema.InputValue, includeDeprecated bool) []*schema.InputValue {
	out := []*schema.InputValue{}
	for _, v := range values {
		if !v.IsDeprecated || includeDeprecated {
			out = append(out, v)
		}
	}
	return out
}

func deprecationReason(deprecated bool, reason string) any {
	if !deprecated {
		return nil
	}
	return reason
}

func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}
