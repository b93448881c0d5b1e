package executor

import (
	language "github.com/hanpama/projectql/internal/language"
	schema "github.com/hanpama/projectql/internal/schema"
)

// collectedFieldMap groups field nodes by response name, preserving query
// order.
type collectedFieldMap struct {
	fields []collectedField
	index  map[string]int
}

type collectedField struct {
	ResponseName string
	Fields       []*language.Field
}

func (cfm *collectedFieldMap) add(responseName string, field *language.Field) {
	if idx, ok := cfm.index[responseName]; ok {
		cfm.fields[idx].Fields = append(cfm.fields[idx].Fields, field)
		return
	}
	cfm.index[responseName] = len(cfm.fields)
	cfm.fields = append(cfm.fields, collectedField{
		ResponseName: responseName,
		Fields:       []*language.Field{field},
	})
}

func (ex *execution) collectFields(objectType *schema.Type, selectionSet language.SelectionSet) *collectedFieldMap {
	groups := &collectedFieldMap{index: make(map[string]int)}
	ex.collectFieldsInto(objectType, selectionSet, groups, make(map[string]bool))
	return groups
}

func (ex *execution) collectFieldsInto(objectType *schema.Type, selectionSet language.SelectionSet, groups *collectedFieldMap, visited map[string]bool) {
	for _, selection := range selectionSet {
		switch sel := selection.(type) {
		case *language.Field:
			if !ex.shouldInclude(sel.Directives) {
				continue
			}
			responseName := sel.Alias
			if responseName == "" {
				responseName = sel.Name
			}
			groups.add(responseName, sel)

		case *language.InlineFragment:
			if !ex.shouldInclude(sel.Directives) || !ex.fragmentApplies(objectType, sel.TypeCondition) {
				continue
			}
			ex.collectFieldsInto(objectType, sel.SelectionSet, groups, visited)

		case *language.FragmentSpread:
			if !ex.shouldInclude(sel.Directives) || visited[sel.Name] {
				continue
			}
			visited[sel.Name] = true

			def := ex.document.Fragments.ForName(sel.Name)
			if def == nil || !ex.fragmentApplies(objectType, def.TypeCondition) {
				continue
			}
			ex.collectFieldsInto(objectType, def.SelectionSet, groups, visited)
		}
	}
}

// fragmentApplies reports whether a fragment with the given type condition
// selects fields on objectType: the condition names the type itself or an
// interface or union the type belongs to.
func (ex *execution) fragmentApplies(objectType *schema.Type, condition string) bool {
	if condition == "" || condition == objectType.Name {
		return true
	}
	return ex.schema.LookupType(condition).IsPossibleType(objectType.Name)
}

// shouldInclude evaluates @skip and @include.
func (ex *execution) shouldInclude(directives language.DirectiveList) bool {
	if skip := directives.ForName("skip"); skip != nil {
		if v, ok := ex.directiveCondition(skip); ok && v {
			return false
		}
	}
	if include := directives.ForName("include"); include != nil {
		if v, ok := ex.directiveCondition(include); ok && !v {
			return false
		}
	}
	return true
}

func (ex *execution) directiveCondition(directive *language.Directive) (bool, bool) {
	arg := directive.Arguments.ForName("if")
	if arg == nil {
		return false, false
	}
	v, ok := valueFromAST(arg.Value, ex.variables).(bool)
	return v, ok
}
