package projection

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	language "github.com/hanpama/projectql/internal/language"
	schema "github.com/hanpama/projectql/internal/schema"
)

// Projection describes the requested sub-fields of a field. Values are
// either Selected or a nested Projection.
type Projection map[string]any

// Selected marks a requested leaf field.
const Selected = true

// TypeBranchKey holds per-type-condition projections for fragments that
// narrow to a type other than the enclosing one.
const TypeBranchKey = "$"

const pathSeparator = "."

var (
	ErrUnsupportedChildType = errors.New("unsupported child type")
	ErrUnsupportedSelection = errors.New("unsupported query selection")
)

// Info is the resolver-time view of the field being resolved.
type Info interface {
	// FieldNodes returns the selection nodes of the current field.
	FieldNodes() []*language.Field
	// Fragment looks up a named fragment of the request.
	Fragment(name string) *language.FragmentDefinition
	// LookupType returns the named schema type, or nil.
	LookupType(name string) *schema.Type
	// ReturnType is the declared, possibly wrapped, type of the current field.
	ReturnType() *schema.TypeRef
}

// Compile builds the Projection of the current field. When path is not
// empty it is a dot-separated list of field names followed through the
// field's own selections first; a segment with no matching selection yields
// an empty Projection.
func Compile(info Info, path string) (Projection, error) {
	nodes := info.FieldNodes()
	ref := info.ReturnType()

	if path != "" {
		for _, segment := range strings.Split(path, pathSeparator) {
			nodes = childFields(nodes, segment)
			if len(nodes) == 0 {
				return Projection{}, nil
			}
			name, err := unwrapNamed(ref)
			if err != nil {
				return nil, err
			}
			def := info.LookupType(name).FieldByName(segment)
			if def == nil {
				return Projection{}, nil
			}
			ref = def.Type
		}
	}

	if !hasSubSelection(nodes) {
		return Projection{}, nil
	}

	name, err := unwrapNamed(ref)
	if err != nil {
		return nil, err
	}
	parent := info.LookupType(name)
	if parent == nil {
		return nil, errors.Wrapf(ErrUnsupportedChildType, "unknown type %q", name)
	}

	c := &compiler{info: info}
	out := Projection{}
	for _, node := range nodes {
		if len(node.SelectionSet) == 0 {
			continue
		}
		local, err := c.buildLocal(parent, node.SelectionSet)
		if err != nil {
			return nil, err
		}
		absorb(out, local)
	}
	return out, nil
}

type compiler struct {
	info Info
}

func (c *compiler) buildLocal(parent *schema.Type, set language.SelectionSet) (Projection, error) {
	out := Projection{}
	for _, selection := range set {
		var (
			part Projection
			err  error
		)
		switch sel := selection.(type) {
		case *language.Field:
			if len(sel.SelectionSet) == 0 {
				part = Projection{sel.Name: Selected}
				break
			}
			def := parent.FieldByName(sel.Name)
			if def == nil {
				return nil, errors.Wrapf(ErrUnsupportedChildType, "field %q is not defined on %q", sel.Name, parent.Name)
			}
			if def.HasResolver() {
				continue
			}
			child, err := c.objectType(def.Type)
			if err != nil {
				return nil, errors.WithMessagef(err, "field %s.%s", parent.Name, sel.Name)
			}
			sub, err := c.buildLocal(child, sel.SelectionSet)
			if err != nil {
				return nil, err
			}
			part = Projection{sel.Name: sub}
		case *language.InlineFragment:
			part, err = c.buildFragment(parent, sel.TypeCondition, sel.SelectionSet)
		case *language.FragmentSpread:
			def := c.info.Fragment(sel.Name)
			if def == nil {
				def = sel.Definition
			}
			if def == nil {
				panic(fmt.Sprintf("projection: fragment %q is not defined", sel.Name))
			}
			part, err = c.buildFragment(parent, def.TypeCondition, def.SelectionSet)
		default:
			return nil, errors.Wrapf(ErrUnsupportedSelection, "%T", selection)
		}
		if err != nil {
			return nil, err
		}
		absorb(out, part)
	}
	return out, nil
}

// buildFragment compiles a fragment body against its type condition. Bodies
// on another type than parent are nested under TypeBranchKey.
func (c *compiler) buildFragment(parent *schema.Type, condition string, set language.SelectionSet) (Projection, error) {
	target := parent
	if condition != "" && condition != parent.Name {
		target = c.info.LookupType(condition)
		if target == nil {
			return nil, errors.Wrapf(ErrUnsupportedChildType, "unknown type condition %q", condition)
		}
	}
	sub, err := c.buildLocal(target, set)
	if err != nil {
		return nil, err
	}
	if target == parent {
		return sub, nil
	}
	return Projection{TypeBranchKey: Projection{target.Name: sub}}, nil
}

func (c *compiler) objectType(ref *schema.TypeRef) (*schema.Type, error) {
	name, err := unwrapNamed(ref)
	if err != nil {
		return nil, err
	}
	t := c.info.LookupType(name)
	if t == nil || t.Kind != schema.TypeKindObject {
		return nil, errors.Wrapf(ErrUnsupportedChildType, "%s", ref)
	}
	return t, nil
}

// unwrapNamed strips list and non-null wrappers down to the named type.
func unwrapNamed(ref *schema.TypeRef) (string, error) {
	for ref != nil {
		switch ref.Kind {
		case schema.TypeRefKindNamed:
			return ref.Named, nil
		case schema.TypeRefKindList, schema.TypeRefKindNonNull:
			ref = ref.OfType
		default:
			return "", errors.Wrapf(ErrUnsupportedChildType, "type reference kind %q", ref.Kind)
		}
	}
	return "", errors.Wrap(ErrUnsupportedChildType, "missing type reference")
}

func childFields(nodes []*language.Field, name string) []*language.Field {
	var out []*language.Field
	for _, node := range nodes {
		for _, sel := range node.SelectionSet {
			if f, ok := sel.(*language.Field); ok && f.Name == name {
				out = append(out, f)
			}
		}
	}
	return out
}

func hasSubSelection(nodes []*language.Field) bool {
	for _, node := range nodes {
		if len(node.SelectionSet) > 0 {
			return true
		}
	}
	return false
}

// Merge returns the deep merge of a and b in a freshly allocated
// Projection. A nested Projection wins over Selected for the same name.
func Merge(a, b Projection) Projection {
	out := a.Clone()
	absorb(out, b.Clone())
	return out
}

// absorb merges src into dst, taking ownership of src's nested maps.
func absorb(dst, src Projection) {
	for name, v := range src {
		sub, ok := v.(Projection)
		if !ok {
			if _, exists := dst[name]; !exists {
				dst[name] = v
			}
			continue
		}
		if cur, ok := dst[name].(Projection); ok {
			absorb(cur, sub)
		} else {
			dst[name] = sub
		}
	}
}

// Clone returns a deep copy of p.
func (p Projection) Clone() Projection {
	out := make(Projection, len(p))
	for name, v := range p {
		if sub, ok := v.(Projection); ok {
			out[name] = sub.Clone()
		} else {
			out[name] = v
		}
	}
	return out
}

// Has reports whether name was requested, as a leaf or as an object.
func (p Projection) Has(name string) bool {
	_, ok := p[name]
	return ok
}

// Field returns the nested Projection of name; nil for leaves and for
// fields that were not requested.
func (p Projection) Field(name string) Projection {
	sub, _ := p[name].(Projection)
	return sub
}

// On returns the fields requested by fragments on typeName.
func (p Projection) On(typeName string) Projection {
	return p.Field(TypeBranchKey).Field(typeName)
}

// Fields returns the requested field names in sorted order, excluding
// TypeBranchKey.
func (p Projection) Fields() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		if name != TypeBranchKey {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Equal reports whether p and other describe the same selection.
func (p Projection) Equal(other Projection) bool {
	if len(p) != len(other) {
		return false
	}
	for name, v := range p {
		w, ok := other[name]
		if !ok {
			return false
		}
		vs, vIsSub := v.(Projection)
		ws, wIsSub := w.(Projection)
		if vIsSub != wIsSub {
			return false
		}
		if vIsSub && !vs.Equal(ws) {
			return false
		}
	}
	return true
}
