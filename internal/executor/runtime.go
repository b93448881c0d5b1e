package executor

import (
	"context"
)

// Runtime is the host integration surface of the Executor: field
// resolution, depth-wise batching, abstract type resolution and leaf
// serialization.
//
// General contract
//   - Execution is breadth-first. At each depth the Executor drains all
//     synchronous fields through ResolveSync, then calls BatchResolveAsync once
//     with every resolver-backed field collected at that depth. The next depth
//     starts after those results are completed.
//   - ResolveSync is never invoked for fields marked Async, and
//     BatchResolveAsync only receives live tasks: tasks below a path nulled by
//     a non-null violation are dropped before the call.
//   - Errors are reported as located GraphQL errors. A null in a non-null
//     position propagates to the enclosing nullable field.
//   - Implementations must be safe for concurrent use and must not mutate
//     source or args.
//
// Identifiers
//   - objectType is the GraphQL type name of the parent object ("User"); for
//     root fields it is the root type name ("Query").
//   - field is the field name on that type.
//   - source is the parent object value, the request's root value for root
//     fields.
//   - args are already coerced against the field's argument definitions.
type Runtime interface {
	// ResolveSync reads a field that has no custom resolver. The context
	// carries the field's ResolveInfo (see ResolveInfoFromContext).
	// Return (nil, nil) for a GraphQL null.
	ResolveSync(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error)

	// BatchResolveAsync resolves one depth of resolver-backed fields.
	//
	// Requirements:
	// - len(results) == len(tasks), results[i] belongs to tasks[i].
	// - Failures are reported per element without failing the whole batch.
	BatchResolveAsync(ctx context.Context, tasks []AsyncResolveTask) []AsyncResolveResult

	// ResolveType returns the concrete object type name of a value of an
	// interface or union type. The name must be one of the abstract type's
	// possible types.
	ResolveType(ctx context.Context, abstractType string, value any) (string, error)

	// SerializeLeafValue converts a scalar or enum value into a JSON-safe Go
	// value. Enums serialize to their symbolic name.
	SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, value any) (any, error)
}

type AsyncResolveTask struct {
	// ObjectType is the parent GraphQL object type name for the field.
	ObjectType string
	// Field is the GraphQL field name to resolve.
	Field string
	// Source is the parent object value.
	Source any
	// Args are the field arguments, coerced to Go values per the schema.
	Args map[string]any
	// Info describes the field and its selections.
	Info *ResolveInfo
}

type AsyncResolveResult struct {
	// Value is the resolved raw value prior to completion, or nil on error.
	Value any
	// Error contains a failure specific to this element; other elements in the
	// same batch are unaffected.
	Error error
}
