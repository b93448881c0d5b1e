package schema

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Render produces SDL from the Schema.
// Deterministic ordering: type/directive names sorted lexicographically.
// Built-in scalars and directives are omitted.
func Render(s *Schema) string {
	if s == nil {
		return ""
	}
	var b strings.Builder

	renderSchemaBlock(&b, s)

	typeNames := make([]string, 0, len(s.Types))
	for name, typ := range s.Types {
		if !typ.BuiltIn {
			typeNames = append(typeNames, name)
		}
	}
	sort.Strings(typeNames)

	for _, name := range typeNames {
		typ := s.Types[name]
		renderDescription(&b, "", typ.Description)
		switch typ.Kind {
		case TypeKindScalar:
			b.WriteString("scalar " + typ.Name)
			if typ.SpecifiedByURL != nil {
				b.WriteString(" @specifiedBy(url: " + strconv.Quote(*typ.SpecifiedByURL) + ")")
			}
			b.WriteString("\n\n")
		case TypeKindEnum:
			b.WriteString("enum " + typ.Name + " {\n")
			for _, val := range typ.EnumValues {
				renderDescription(&b, "  ", val.Description)
				b.WriteString("  " + val.Name)
				renderDeprecation(&b, val.IsDeprecated, val.DeprecationReason)
				b.WriteString("\n")
			}
			b.WriteString("}\n\n")
		case TypeKindInputObject:
			b.WriteString("input " + typ.Name)
			if typ.OneOf {
				b.WriteString(" @oneOf")
			}
			b.WriteString(" {\n")
			for _, field := range typ.InputFields {
				renderDescription(&b, "  ", field.Description)
				b.WriteString("  " + renderInputValue(field))
				renderDeprecation(&b, field.IsDeprecated, field.DeprecationReason)
				b.WriteString("\n")
			}
			b.WriteString("}\n\n")
		case TypeKindObject:
			renderComposite(&b, "type", typ)
		case TypeKindInterface:
			renderComposite(&b, "interface", typ)
		case TypeKindUnion:
			b.WriteString("union " + typ.Name + " = " + strings.Join(typ.PossibleTypes, " | ") + "\n\n")
		}
	}

	directiveNames := make([]string, 0, len(s.Directives))
	for name, directive := range s.Directives {
		if !directive.BuiltIn {
			directiveNames = append(directiveNames, name)
		}
	}
	sort.Strings(directiveNames)
	for _, name := range directiveNames {
		renderDirective(&b, s.Directives[name])
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

// ----- render helpers -----

// renderSchemaBlock writes the schema definition unless the root types use
// their conventional names.
func renderSchemaBlock(b *strings.Builder, s *Schema) {
	conventional := (s.QueryType == "" || s.QueryType == "Query") &&
		(s.MutationType == "" || s.MutationType == "Mutation") &&
		(s.SubscriptionType == "" || s.SubscriptionType == "Subscription")
	if conventional {
		return
	}
	b.WriteString("schema {\n")
	for _, root := range [][2]string{{"query", s.QueryType}, {"mutation", s.MutationType}, {"subscription", s.SubscriptionType}} {
		if root[1] != "" {
			b.WriteString("  " + root[0] + ": " + root[1] + "\n")
		}
	}
	b.WriteString("}\n\n")
}

func renderDescription(b *strings.Builder, indent, desc string) {
	if desc == "" {
		return
	}
	b.WriteString(indent + "\"\"\"\n")
	for _, line := range strings.Split(strings.ReplaceAll(desc, `"""`, `\"""`), "\n") {
		b.WriteString(indent + line + "\n")
	}
	b.WriteString(indent + "\"\"\"\n")
}

func renderDeprecation(b *strings.Builder, deprecated bool, reason string) {
	if !deprecated {
		return
	}
	b.WriteString(" @deprecated")
	if reason != "" {
		b.WriteString("(reason: " + strconv.Quote(reason) + ")")
	}
}

func renderComposite(b *strings.Builder, keyword string, typ *Type) {
	b.WriteString(keyword + " " + typ.Name)
	if len(typ.Interfaces) > 0 {
		b.WriteString(" implements " + strings.Join(typ.Interfaces, " & "))
	}
	b.WriteString(" {\n")
	for _, field := range typ.Fields {
		renderDescription(b, "  ", field.Description)
		b.WriteString("  " + field.Name + renderArguments(field.Arguments) + ": " + renderTypeRef(field.Type))
		renderDeprecation(b, field.IsDeprecated, field.DeprecationReason)
		b.WriteString("\n")
	}
	b.WriteString("}\n\n")
}

func renderDirective(b *strings.Builder, directive *Directive) {
	renderDescription(b, "", directive.Description)
	b.WriteString("directive @" + directive.Name + renderArguments(directive.Arguments))
	if directive.IsRepeatable {
		b.WriteString(" repeatable")
	}
	b.WriteString(" on " + strings.Join(directive.Locations, " | ") + "\n\n")
}

func renderArguments(args []*InputValue) string {
	if len(args) == 0 {
		return ""
	}
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = renderInputValue(arg)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func renderInputValue(v *InputValue) string {
	out := v.Name + ": " + renderTypeRef(v.Type)
	if v.DefaultValue != nil {
		out += " = " + RenderValue(v.DefaultValue)
	}
	return out
}

func renderTypeRef(typeRef *TypeRef) string {
	if typeRef == nil {
		return ""
	}

	switch typeRef.Kind {
	case TypeRefKindNamed:
		return typeRef.Named
	case TypeRefKindList:
		return "[" + renderTypeRef(typeRef.OfType) + "]"
	case TypeRefKindNonNull:
		return renderTypeRef(typeRef.OfType) + "!"
	default:
		return ""
	}
}

// RenderValue renders a value as a GraphQL literal, as used for default
// values.
func RenderValue(value any) string {
	if value == nil {
		return "null"
	}

	switch v := value.(type) {
	case string:
		return strconv.Quote(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = RenderValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + RenderValue(v[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprint(v)
	}
}
