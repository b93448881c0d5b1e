package main

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	executor "github.com/hanpama/projectql/internal/executor"
	language "github.com/hanpama/projectql/internal/language"
	projection "github.com/hanpama/projectql/internal/projection"
	resolver "github.com/hanpama/projectql/internal/resolver"
	schema "github.com/hanpama/projectql/internal/schema"
)

func newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Print the selection projection of each root field of a query",
		Long: `
project validates a query against the schema and prints, for every root
field of the selected operation, the projection a resolver of that field
would compile. Fields named with --resolved are treated as backed by their
own resolver and left out of enclosing projections.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := newConfig(cmd)
			if err != nil {
				return err
			}
			base, extensions, err := loadSchemaSources(conf)
			if err != nil {
				return err
			}
			sch, validated, err := schema.Build(base, extensions...)
			if err != nil {
				return err
			}
			for _, key := range conf.GetStringSlice("resolved") {
				typeName, field, err := resolver.SplitKey(key)
				if err != nil {
					return err
				}
				if err := sch.MarkResolved(typeName, field); err != nil {
					return err
				}
			}

			query := conf.GetString("query")
			if file := conf.GetString("query-file"); file != "" {
				b, err := os.ReadFile(file)
				if err != nil {
					return errors.Wrap(err, "reading query")
				}
				query = string(b)
			}
			if query == "" {
				return errors.New("one of --query or --query-file is required")
			}

			out, err := projectQuery(sch, validated, query, conf.GetString("operation"), conf.GetString("path"))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	addSchemaFlags(cmd.Flags())
	cmd.Flags().String("query", "", "GraphQL query text")
	cmd.Flags().String("query-file", "", "File holding the GraphQL query")
	cmd.Flags().String("operation", "", "Operation name, required when the query has several")
	cmd.Flags().String("path", "", "Dot-separated path below each root field to start from")
	cmd.Flags().StringSlice("resolved", nil, "Type.field backed by its own resolver. Repeatable.")
	return cmd
}

// projectQuery compiles the projection of every root field of the chosen
// operation, keyed by response name.
func projectQuery(sch *schema.Schema, validated *language.ValidatedSchema, query, operationName, path string) (map[string]projection.Projection, error) {
	doc, errs := language.LoadQuery(validated, query)
	if len(errs) > 0 {
		return nil, errs
	}
	op, err := executor.GetOperation(doc, operationName)
	if err != nil {
		return nil, err
	}
	var rootType *schema.Type
	switch op.Operation {
	case language.Query:
		rootType = sch.GetQueryType()
	case language.Mutation:
		rootType = sch.GetMutationType()
	default:
		return nil, errors.Errorf("unsupported operation type: %s", op.Operation)
	}

	groups := map[string][]*language.Field{}
	var order []string
	collectRootFields(doc, op.SelectionSet, func(f *language.Field) {
		name := f.Alias
		if name == "" {
			name = f.Name
		}
		if _, ok := groups[name]; !ok {
			order = append(order, name)
		}
		groups[name] = append(groups[name], f)
	})

	out := make(map[string]projection.Projection, len(order))
	for _, name := range order {
		nodes := groups[name]
		def := rootType.FieldByName(nodes[0].Name)
		if def == nil {
			// __typename and other meta fields
			continue
		}
		info := &executor.ResolveInfo{
			FieldName:  def.Name,
			ParentType: rootType,
			Path:       executor.Path{name},
			Schema:     sch,
			Operation:  op,
			Nodes:      nodes,
			Type:       def.Type,
			Fragments:  doc.Fragments,
		}
		p, err := info.Projection(path)
		if err != nil {
			return nil, errors.WithMessagef(err, "field %s", name)
		}
		out[name] = p
	}
	return out, nil
}

func collectRootFields(doc *language.QueryDocument, set language.SelectionSet, visit func(*language.Field)) {
	for _, sel := range set {
		switch sel := sel.(type) {
		case *language.Field:
			visit(sel)
		case *language.InlineFragment:
			collectRootFields(doc, sel.SelectionSet, visit)
		case *language.FragmentSpread:
			if def := doc.Fragments.ForName(sel.Name); def != nil {
				collectRootFields(doc, def.SelectionSet, visit)
			}
		}
	}
}
