package executor

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	language "github.com/hanpama/projectql/internal/language"
	schema "github.com/hanpama/projectql/internal/schema"
)

// Path is a response path made of field response names (string) and list
// indices (int).
type Path []PathElement

type PathElement any

func (p Path) String() string {
	var b strings.Builder
	for i, elem := range p {
		switch v := elem.(type) {
		case string:
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(v)
		case int:
			b.WriteString("[" + strconv.Itoa(v) + "]")
		}
	}
	return b.String()
}

type Executor struct {
	runtime Runtime
	schema  *schema.Schema
}

func NewExecutor(runtime Runtime, schema *schema.Schema) *Executor {
	return &Executor{runtime: runtime, schema: schema}
}

// execution holds the state of a single request.
type execution struct {
	ctx       context.Context
	runtime   Runtime
	schema    *schema.Schema
	document  *language.QueryDocument
	operation *language.OperationDefinition
	variables map[string]any

	pending []asyncTask
	errors  []GraphQLError
	// response paths nulled by a non-null violation
	nullified map[string]struct{}
}

// asyncTask is a queued resolver-backed field.
type asyncTask struct {
	Task   AsyncResolveTask
	Path   Path
	Type   *schema.TypeRef
	Fields []*language.Field
}

type asyncPending struct{}

func (e *Executor) ExecuteRequest(
	ctx context.Context,
	document *language.QueryDocument,
	operationName string,
	variableValues map[string]any,
	initialValue any,
) *ExecutionResult {
	operation, err := GetOperation(document, operationName)
	if err != nil {
		return errorResult(err.Error())
	}

	variables, err := coerceVariableValues(operation, variableValues)
	if err != nil {
		return errorResult(err.Error())
	}

	var rootType *schema.Type
	switch operation.Operation {
	case language.Query:
		rootType = e.schema.GetQueryType()
	case language.Mutation:
		rootType = e.schema.GetMutationType()
	default:
		return errorResult(fmt.Sprintf("unsupported operation type: %s", operation.Operation))
	}
	if rootType == nil {
		return errorResult(fmt.Sprintf("schema does not define a %s root type", operation.Operation))
	}

	ex := &execution{
		ctx:       ctx,
		runtime:   e.runtime,
		schema:    e.schema,
		document:  document,
		operation: operation,
		variables: variables,
		nullified: make(map[string]struct{}),
	}

	// Sync fields expand immediately; resolver-backed fields are queued and
	// flushed one depth at a time.
	data := ex.executeSelectionSet(rootType, operation.SelectionSet, initialValue, Path{})
	for len(ex.pending) > 0 {
		ex.flush(data)
	}

	return &ExecutionResult{Data: data, Errors: ex.errors}
}

func errorResult(message string) *ExecutionResult {
	return &ExecutionResult{Errors: []GraphQLError{{Message: message}}}
}

// GetOperation picks the operation to run: the one named operationName, or
// the only operation of the document when no name is given.
func GetOperation(document *language.QueryDocument, operationName string) (*language.OperationDefinition, error) {
	if document == nil || len(document.Operations) == 0 {
		return nil, fmt.Errorf("must provide an operation")
	}
	if operationName == "" {
		if len(document.Operations) > 1 {
			return nil, fmt.Errorf("must provide operation name if query contains multiple operations")
		}
		return document.Operations[0], nil
	}
	if op := document.Operations.ForName(operationName); op != nil {
		return op, nil
	}
	return nil, fmt.Errorf("unknown operation named %q", operationName)
}

// executeSelectionSet resolves the selections of one object. It returns nil
// when a non-null field of a nested object resolved to null.
func (ex *execution) executeSelectionSet(objectType *schema.Type, selectionSet language.SelectionSet, source any, path Path) map[string]any {
	groups := ex.collectFields(objectType, selectionSet)
	out := make(map[string]any, len(groups.fields))

	for _, group := range groups.fields {
		fieldPath := appendPath(path, group.ResponseName)
		name := group.Fields[0].Name

		if name == "__typename" {
			out[group.ResponseName] = objectType.Name
			continue
		}

		def := objectType.FieldByName(name)
		if def == nil {
			ex.addError(fmt.Sprintf("Cannot query field %q on type %q", name, objectType.Name), fieldPath, group.Fields)
			continue
		}

		value := ex.executeField(objectType, def, group.Fields, source, fieldPath)
		if isNullish(value) {
			if schema.IsNonNull(def.Type) && len(path) > 0 {
				ex.markNullified(path)
				return nil
			}
			value = nil
		}
		out[group.ResponseName] = value
	}
	return out
}

func (ex *execution) executeField(parent *schema.Type, def *schema.Field, fields []*language.Field, source any, path Path) any {
	args := ex.coerceArgumentValues(def, fields[0].Arguments, path, fields)
	info := &ResolveInfo{
		FieldName:  def.Name,
		ParentType: parent,
		Path:       path,
		Schema:     ex.schema,
		Operation:  ex.operation,
		Variables:  ex.variables,
		Nodes:      fields,
		Type:       def.Type,
		Fragments:  ex.document.Fragments,
	}

	if def.Async {
		ex.pending = append(ex.pending, asyncTask{
			Task: AsyncResolveTask{
				ObjectType: parent.Name,
				Field:      def.Name,
				Source:     source,
				Args:       args,
				Info:       info,
			},
			Path:   path,
			Type:   def.Type,
			Fields: fields,
		})
		return asyncPending{}
	}

	value, err := ex.runtime.ResolveSync(WithResolveInfo(ex.ctx, info), parent.Name, def.Name, source, args)
	if err != nil {
		ex.addError(err.Error(), path, fields)
		return nil
	}
	return ex.completeValue(def.Type, fields, value, path)
}

// flush resolves every queued task of the current depth in one batch.
// Completing them may queue the next depth.
func (ex *execution) flush(data map[string]any) {
	live := make([]asyncTask, 0, len(ex.pending))
	for _, at := range ex.pending {
		if !ex.isNullified(at.Path) {
			live = append(live, at)
		}
	}
	ex.pending = nil
	if len(live) == 0 {
		return
	}

	tasks := make([]AsyncResolveTask, len(live))
	for i, at := range live {
		tasks[i] = at.Task
	}
	results := ex.runtime.BatchResolveAsync(ex.ctx, tasks)

	for i, at := range live {
		res := AsyncResolveResult{Error: fmt.Errorf("no result for %s.%s", at.Task.ObjectType, at.Task.Field)}
		if i < len(results) {
			res = results[i]
		}
		ex.completeAsyncField(at, res, data)
	}
}

func (ex *execution) completeAsyncField(at asyncTask, res AsyncResolveResult, data map[string]any) {
	if ex.isNullified(at.Path) {
		return
	}

	var value any
	if res.Error != nil {
		ex.addError(res.Error.Error(), at.Path, at.Fields)
	} else {
		value = ex.completeValue(at.Type, at.Fields, res.Value, at.Path)
	}

	if isNullish(value) {
		if schema.IsNonNull(at.Type) {
			top := topLevelFieldPath(at.Path)
			setValueAtPath(data, top, nil)
			ex.markNullified(top)
			return
		}
		value = nil
	}
	setValueAtPath(data, at.Path, value)
}

func (ex *execution) completeValue(fieldType *schema.TypeRef, fields []*language.Field, result any, path Path) any {
	if schema.IsNonNull(fieldType) {
		if isNullish(result) {
			if !ex.hasErrorAtPath(path) {
				ex.addError(fmt.Sprintf("Cannot return null for non-nullable field %s", path), path, fields)
			}
			return nil
		}
		return ex.completeValue(schema.Unwrap(fieldType), fields, result, path)
	}

	if isNullish(result) {
		return nil
	}

	if schema.IsList(fieldType) {
		return ex.completeListValue(fieldType, fields, result, path)
	}

	named := ex.schema.LookupType(schema.GetNamedType(fieldType))
	if named == nil {
		ex.addError(fmt.Sprintf("Unknown type: %s", schema.GetNamedType(fieldType)), path, fields)
		return nil
	}

	switch named.Kind {
	case schema.TypeKindScalar, schema.TypeKindEnum:
		serialized, err := ex.runtime.SerializeLeafValue(ex.ctx, named.Name, result)
		if err != nil {
			ex.addError(err.Error(), path, fields)
			return nil
		}
		return serialized
	case schema.TypeKindObject:
		return ex.executeSelectionSet(named, mergeSelectionSets(fields), result, path)
	case schema.TypeKindInterface, schema.TypeKindUnion:
		return ex.completeAbstractValue(named, fields, result, path)
	default:
		ex.addError(fmt.Sprintf("Cannot complete value of unexpected type: %s", named.Kind), path, fields)
		return nil
	}
}

func (ex *execution) completeListValue(listType *schema.TypeRef, fields []*language.Field, result any, path Path) any {
	items, ok := result.([]any)
	if !ok {
		rv := reflect.ValueOf(result)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			ex.addError(fmt.Sprintf("Expected list value, got %T", result), path, fields)
			return nil
		}
		items = make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
	}

	inner := schema.Unwrap(listType)
	completed := make([]any, len(items))
	for i, item := range items {
		v := ex.completeValue(inner, fields, item, appendPath(path, i))
		if isNullish(v) {
			if schema.IsNonNull(inner) {
				return nil
			}
			v = nil
		}
		completed[i] = v
	}
	return completed
}

func (ex *execution) completeAbstractValue(abstract *schema.Type, fields []*language.Field, result any, path Path) any {
	typeName, err := ex.runtime.ResolveType(ex.ctx, abstract.Name, result)
	if err != nil {
		ex.addError(err.Error(), path, fields)
		return nil
	}
	objectType := ex.schema.LookupType(typeName)
	if objectType == nil || objectType.Kind != schema.TypeKindObject || !abstract.IsPossibleType(typeName) {
		ex.addError(fmt.Sprintf("Abstract type %s must resolve to one of its possible object types at runtime. Got: %q", abstract.Name, typeName), path, fields)
		return nil
	}
	return ex.executeSelectionSet(objectType, mergeSelectionSets(fields), result, path)
}

func (ex *execution) addError(message string, path Path, fields []*language.Field) {
	ex.errors = append(ex.errors, GraphQLError{
		Message:   message,
		Path:      path,
		Locations: fieldLocations(fields),
	})
}

func (ex *execution) hasErrorAtPath(path Path) bool {
	key := path.String()
	for _, err := range ex.errors {
		if err.Path.String() == key {
			return true
		}
	}
	return false
}

func (ex *execution) markNullified(p Path) {
	if key := p.String(); key != "" {
		ex.nullified[key] = struct{}{}
	}
}

func (ex *execution) isNullified(p Path) bool {
	if len(ex.nullified) == 0 {
		return false
	}
	for i := 1; i <= len(p); i++ {
		if _, ok := ex.nullified[p[:i].String()]; ok {
			return true
		}
	}
	return false
}

func fieldLocations(fields []*language.Field) []Location {
	if len(fields) == 0 || fields[0].Position == nil {
		return nil
	}
	return []Location{{Line: fields[0].Position.Line, Column: fields[0].Position.Column}}
}

func appendPath(path Path, elem PathElement) Path {
	out := make(Path, len(path)+1)
	copy(out, path)
	out[len(path)] = elem
	return out
}

func topLevelFieldPath(p Path) Path {
	if len(p) == 0 {
		return Path{}
	}
	return Path{p[0]}
}

// setValueAtPath writes value into the response tree. Writes below a
// container that no longer exists are dropped: an ancestor was nulled.
func setValueAtPath(root map[string]any, path Path, value any) {
	if len(path) == 0 {
		return
	}
	var current any = root
	for _, elem := range path[:len(path)-1] {
		switch e := elem.(type) {
		case string:
			m, ok := current.(map[string]any)
			if !ok {
				return
			}
			current = m[e]
		case int:
			s, ok := current.([]any)
			if !ok || e >= len(s) {
				return
			}
			current = s[e]
		}
	}
	switch e := path[len(path)-1].(type) {
	case string:
		if m, ok := current.(map[string]any); ok {
			m[e] = value
		}
	case int:
		if s, ok := current.([]any); ok && e < len(s) {
			s[e] = value
		}
	}
}

func mergeSelectionSets(fields []*language.Field) language.SelectionSet {
	var merged language.SelectionSet
	for _, f := range fields {
		merged = append(merged, f.SelectionSet...)
	}
	return merged
}

// isNullish reports nil interfaces and typed nils.
func isNullish(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Interface, reflect.Ptr, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
