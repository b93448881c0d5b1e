// Package executor implements a breadth-first, batch-friendly GraphQL
// executor with runtime hooks for plain field reads, depth-wise batching of
// resolver-backed fields, abstract type resolution and leaf serialization.
//
// # Field classes
//
// The schema marks a field with schema.Field.Async when it is backed by a
// custom resolver. Other fields are read straight off their source value.
//
//   - Plain fields are resolved immediately through Runtime.ResolveSync and
//     expand downward without adding batch depth.
//   - Resolver-backed fields met while expanding a depth are queued and
//     resolved together in a single Runtime.BatchResolveAsync call.
//
// For a response whose resolver-backed fields nest d levels deep,
// BatchResolveAsync is invoked exactly d times.
//
// # Per-depth loop
//
//	A. Expand plain fields of the current frontier, completing their values
//	   in place. Queue resolver-backed fields with their ResolveInfo.
//	B. Drop queued tasks under nulled paths and resolve the rest in one batch.
//	C. Complete each result. Objects found there form the next frontier; their
//	   resolver-backed children are queued for the next batch.
//
// # Value completion
//
//   - Non-Null: complete the inner type; a null records an error and nulls
//     the enclosing nullable field.
//   - List: complete each element with an index-aware path. A null element
//     of a non-null item type nulls the whole list.
//   - Scalar and Enum: Runtime.SerializeLeafValue.
//   - Interface and Union: Runtime.ResolveType names the concrete type, which
//     must be one of the abstract type's possible types.
//   - Object: collect sub-fields and continue.
//
// Fragments apply when their type condition is the object type itself or an
// interface or union listing it among its possible types.
//
// # Resolve info
//
// Every field gets a ResolveInfo: its field nodes, declared type, parent,
// path, the request's fragments and the schema. Resolver-backed fields see
// it on AsyncResolveTask.Info, plain reads through ResolveInfoFromContext.
// ResolveInfo.Projection compiles the sub-fields the client asked for, so a
// resolver can limit what it loads.
//
// # Errors
//
// Errors are accumulated as located GraphQL errors (message, locations,
// path) and execution continues where the type system allows, so a response
// may carry both data and errors.
package executor
