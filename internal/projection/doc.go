// Package projection compiles the selection tree of a resolving field into a
// Projection: a nested description of exactly which sub-fields the client
// asked for, so resolvers can limit backing-data fetches to what is needed.
//
// # Shape
//
// A Projection maps field names to either Selected (a leaf request) or a
// nested Projection (an object field). Fragments whose type condition names
// a different type than the enclosing one are kept apart under the reserved
// key "$", keyed by the type condition:
//
//	{
//	  id
//	  shapes {
//	    area
//	    ... on Circle { radius }
//	  }
//	}
//
// compiles to
//
//	{"id": true, "shapes": {"area": true, "$": {"Circle": {"radius": true}}}}
//
// # Rules
//
//   - A field without a sub-selection is always marked Selected.
//   - A field with a sub-selection whose definition has a custom resolver is
//     left out entirely; that resolver sources its own data.
//   - Any other field with a sub-selection must reach an object type once
//     list and non-null wrappers are stripped. Only the compiled field itself
//     may return an interface or union, which is then entered through
//     fragments.
//   - Fragments on the enclosing type merge in place; fragments on another
//     type merge under "$".
//   - Selections touching the same field are deep-merged, never overwritten.
//
// # Errors
//
// Compile returns ErrUnsupportedChildType when a declared type cannot be
// reduced to a named object type, and ErrUnsupportedSelection for a selection
// node that is not a field, inline fragment or fragment spread. Both describe
// a schema or caller bug. A path segment that matches nothing yields an empty
// Projection, not an error. A fragment spread that names an undefined
// fragment panics: documents are validated before execution.
//
// Compile never mutates its inputs and shares no state between calls, so
// resolvers running concurrently may call it freely.
package projection
