package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	language "github.com/hanpama/projectql/internal/language"
)

// DefaultSource is used when no base schema is configured. It declares
// empty root types meant to be filled in by extensions. Mutation is dropped
// when no extension adds to it.
const DefaultSource = `
type Query
type Mutation

schema {
  query: Query
  mutation: Mutation
}
`

const queryOnlySource = `
type Query

schema {
  query: Query
}
`

// SchemaError reports an SDL document that does not form a valid schema.
type SchemaError struct {
	Errors language.ErrorList
}

func (e *SchemaError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return "invalid GraphQL schema: " + strings.Join(msgs, "; ")
}

// Build parses source plus any extension documents, validates the result
// and converts it into a Schema. The validated gqlparser schema is returned
// as well so query documents can be checked against it.
func Build(source string, extensions ...string) (*Schema, *language.ValidatedSchema, error) {
	if strings.TrimSpace(source) == "" {
		source = defaultSource(extensions)
	}
	sources := []*language.Source{{Name: "schema.graphql", Input: source}}
	for i, ext := range extensions {
		sources = append(sources, &language.Source{Name: fmt.Sprintf("extension_%d.graphql", i), Input: ext})
	}
	validated, errs := language.LoadSchema(sources...)
	if len(errs) > 0 {
		return nil, nil, &SchemaError{Errors: errs}
	}
	return FromValidated(validated), validated, nil
}

func defaultSource(extensions []string) string {
	for _, ext := range extensions {
		doc, err := language.ParseSchema("extension.graphql", ext)
		if err != nil {
			// reported by LoadSchema
			continue
		}
		if doc.Extensions.ForName("Mutation") != nil {
			return DefaultSource
		}
	}
	return queryOnlySource
}

// BuildFromSDL parses SDL string and returns the corresponding Schema.
func BuildFromSDL(sdl string) (*Schema, error) {
	s, _, err := Build(sdl)
	return s, err
}

// MarkResolved flags typeName.fieldName as computed by a custom resolver.
func (s *Schema) MarkResolved(typeName, fieldName string) error {
	t := s.LookupType(typeName)
	if t == nil {
		return errors.Errorf("unknown type %q", typeName)
	}
	f := t.FieldByName(fieldName)
	if f == nil {
		return errors.Errorf("unknown field %q on type %q", fieldName, typeName)
	}
	f.Async = true
	return nil
}

// FromValidated converts a gqlparser schema into a Schema. Introspection
// types and meta fields are left out; the executor answers __typename itself.
func FromValidated(src *language.ValidatedSchema) *Schema {
	s := NewSchema("")
	if src.Query != nil {
		s.SetQueryType(src.Query.Name)
	}
	if src.Mutation != nil {
		s.SetMutationType(src.Mutation.Name)
	}
	if src.Subscription != nil {
		s.SetSubscriptionType(src.Subscription.Name)
	}

	for name, def := range src.Types {
		if strings.HasPrefix(name, "__") {
			continue
		}
		t := buildType(src, def)
		if t != nil {
			s.AddType(t)
		}
	}
	for name, def := range src.Directives {
		s.Directives[name] = buildDirective(def)
	}
	return s
}

// IntrospectionTypes converts the meta types gqlparser declares for
// introspection, such as __Schema and __Type, sorted by name.
func IntrospectionTypes(src *language.ValidatedSchema) []*Type {
	var out []*Type
	for name, def := range src.Types {
		if !strings.HasPrefix(name, "__") {
			continue
		}
		if t := buildType(src, def); t != nil {
			t.BuiltIn = true
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func buildType(src *language.ValidatedSchema, def *language.Definition) *Type {
	var t *Type
	switch def.Kind {
	case language.Object:
		t = NewType(def.Name, TypeKindObject, def.Description)
	case language.Interface:
		t = NewType(def.Name, TypeKindInterface, def.Description)
	case language.Union:
		t = NewType(def.Name, TypeKindUnion, def.Description)
	case language.Scalar:
		t = NewType(def.Name, TypeKindScalar, def.Description)
	case language.Enum:
		t = NewType(def.Name, TypeKindEnum, def.Description)
	case language.InputObject:
		t = NewType(def.Name, TypeKindInputObject, def.Description)
	default:
		return nil
	}
	t.BuiltIn = def.BuiltIn

	for _, name := range def.Interfaces {
		t.AddInterface(name)
	}
	switch t.Kind {
	case TypeKindObject, TypeKindInterface:
		for _, fd := range def.Fields {
			if strings.HasPrefix(fd.Name, "__") {
				continue
			}
			t.AddField(buildField(fd))
		}
	case TypeKindInputObject:
		for _, fd := range def.Fields {
			t.AddInputField(buildInputValue(fd.Name, fd.Description, fd.Type, fd.DefaultValue, fd.Directives))
		}
		t.SetOneOf(def.Directives.ForName("oneOf") != nil)
	case TypeKindEnum:
		for _, v := range def.EnumValues {
			ev := NewEnumValue(v.Name, v.Description)
			if ok, reason := deprecation(v.Directives); ok {
				ev.Deprecate(reason)
			}
			t.AddEnumValue(ev)
		}
	case TypeKindScalar:
		if d := def.Directives.ForName("specifiedBy"); d != nil {
			if arg := d.Arguments.ForName("url"); arg != nil && arg.Value != nil {
				url := arg.Value.Raw
				t.SpecifiedByURL = &url
			}
		}
	}
	if t.IsAbstract() {
		var names []string
		for _, pt := range src.GetPossibleTypes(def) {
			names = append(names, pt.Name)
		}
		sort.Strings(names)
		for _, name := range names {
			t.AddPossibleType(name)
		}
	}
	return t
}

func buildField(def *language.FieldDefinition) *Field {
	f := NewField(def.Name, def.Description, TypeRefFromAST(def.Type))
	if ok, reason := deprecation(def.Directives); ok {
		f.Deprecate(reason)
	}
	for _, arg := range def.Arguments {
		f.AddArgument(buildInputValue(arg.Name, arg.Description, arg.Type, arg.DefaultValue, arg.Directives))
	}
	return f
}

func buildInputValue(name, description string, typ *language.Type, def *language.Value, directives language.DirectiveList) *InputValue {
	in := NewInputValue(name, description, TypeRefFromAST(typ))
	if def != nil {
		if v, err := def.Value(nil); err == nil {
			in.SetDefault(v)
		}
	}
	if ok, reason := deprecation(directives); ok {
		in.Deprecate(reason)
	}
	return in
}

func buildDirective(def *language.DirectiveDefinition) *Directive {
	d := NewDirective(def.Name, def.Description).SetRepeatable(def.IsRepeatable)
	for _, loc := range def.Locations {
		d.Locations = append(d.Locations, string(loc))
	}
	for _, arg := range def.Arguments {
		d.AddArgument(buildInputValue(arg.Name, arg.Description, arg.Type, arg.DefaultValue, arg.Directives))
	}
	d.BuiltIn = def.Position != nil && def.Position.Src != nil && def.Position.Src.BuiltIn
	return d
}

func deprecation(directives language.DirectiveList) (bool, string) {
	d := directives.ForName("deprecated")
	if d == nil {
		return false, ""
	}
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		return true, arg.Value.Raw
	}
	return true, ""
}

// TypeRefFromAST converts a gqlparser type reference.
func TypeRefFromAST(t *language.Type) *TypeRef {
	if t == nil {
		return nil
	}
	if t.NonNull {
		return NonNullType(TypeRefFromAST(&language.Type{NamedType: t.NamedType, Elem: t.Elem}))
	}
	if t.NamedType != "" {
		return NamedType(t.NamedType)
	}
	if t.Elem != nil {
		return ListType(TypeRefFromAST(t.Elem))
	}
	return nil
}

// ----- constructors -----

func NewSchema(description string) *Schema {
	return &Schema{
		Types:       make(map[string]*Type),
		Directives:  make(map[string]*Directive),
		Description: description,
	}
}

func (s *Schema) SetQueryType(name string) *Schema        { s.QueryType = name; return s }
func (s *Schema) SetMutationType(name string) *Schema     { s.MutationType = name; return s }
func (s *Schema) SetSubscriptionType(name string) *Schema { s.SubscriptionType = name; return s }
func (s *Schema) AddType(t *Type) *Schema                 { s.Types[t.Name] = t; return s }
func (s *Schema) AddDirective(d *Directive) *Schema       { s.Directives[d.Name] = d; return s }

func NewType(name string, kind TypeKind, description string) *Type {
	return &Type{Name: name, Kind: kind, Description: description}
}

func (t *Type) AddField(f *Field) *Type             { t.Fields = append(t.Fields, f); return t }
func (t *Type) AddInterface(name string) *Type      { t.Interfaces = append(t.Interfaces, name); return t }
func (t *Type) AddPossibleType(name string) *Type   { t.PossibleTypes = append(t.PossibleTypes, name); return t }
func (t *Type) AddEnumValue(v *EnumValue) *Type     { t.EnumValues = append(t.EnumValues, v); return t }
func (t *Type) AddInputField(v *InputValue) *Type   { t.InputFields = append(t.InputFields, v); return t }
func (t *Type) SetOneOf(oneOf bool) *Type           { t.OneOf = oneOf; return t }

func NewField(name, description string, typ *TypeRef) *Field {
	return &Field{Name: name, Description: description, Type: typ}
}

func (f *Field) SetAsync(async bool) *Field        { f.Async = async; return f }
func (f *Field) AddArgument(a *InputValue) *Field  { f.Arguments = append(f.Arguments, a); return f }
func (f *Field) Deprecate(reason string) *Field {
	f.IsDeprecated = true
	f.DeprecationReason = reason
	return f
}

func NewEnumValue(name, description string) *EnumValue {
	return &EnumValue{Name: name, Description: description}
}

func (v *EnumValue) Deprecate(reason string) *EnumValue {
	v.IsDeprecated = true
	v.DeprecationReason = reason
	return v
}

func NewInputValue(name, description string, typ *TypeRef) *InputValue {
	return &InputValue{Name: name, Description: description, Type: typ}
}

func (v *InputValue) SetDefault(value any) *InputValue { v.DefaultValue = value; return v }
func (v *InputValue) Deprecate(reason string) *InputValue {
	v.IsDeprecated = true
	v.DeprecationReason = reason
	return v
}

func NewDirective(name, description string) *Directive {
	return &Directive{Name: name, Description: description}
}

func (d *Directive) SetRepeatable(repeatable bool) *Directive { d.IsRepeatable = repeatable; return d }
func (d *Directive) AddArgument(a *InputValue) *Directive     { d.Arguments = append(d.Arguments, a); return d }
