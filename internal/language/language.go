package language

import (
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"
)

func ParseQuery(source string) (*QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func ParseSchema(name, source string) (*SchemaDocument, error) {
	doc, err := parser.ParseSchema(&ast.Source{Name: name, Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// LoadSchema parses and validates the given SDL sources as one schema.
// Later sources may extend types declared by earlier ones.
func LoadSchema(sources ...*Source) (*ValidatedSchema, ErrorList) {
	s, err := gqlparser.LoadSchema(sources...)
	if err != nil {
		return nil, toErrorList(err)
	}
	return s, nil
}

// LoadQuery parses source and validates it against s.
func LoadQuery(s *ValidatedSchema, source string) (*QueryDocument, ErrorList) {
	doc, errs := gqlparser.LoadQuery(s, source)
	if len(errs) > 0 {
		return nil, errs
	}
	return doc, nil
}

func toErrorList(err error) ErrorList {
	switch e := err.(type) {
	case gqlerror.List:
		return e
	case *gqlerror.Error:
		return ErrorList{e}
	default:
		return ErrorList{&gqlerror.Error{Message: err.Error()}}
	}
}
