package gateway_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	eventbus "github.com/hanpama/projectql/internal/eventbus"
	events "github.com/hanpama/projectql/internal/events"
	gateway "github.com/hanpama/projectql/internal/gateway"
	projection "github.com/hanpama/projectql/internal/projection"
	resolver "github.com/hanpama/projectql/internal/resolver"
	schema "github.com/hanpama/projectql/internal/schema"
)

const librarySDL = `
type Query {
  books: [Book!]!
  book(id: ID!): Book
  version: String
}

type Book {
  id: ID!
  title: String
  author: Author
  reviews: [Review!]
}

type Author {
  name: String
  born: Int
}

type Review {
  stars: Int!
}
`

type library struct {
	mu    sync.Mutex
	seen  []projection.Projection
	books []map[string]any
}

func (l *library) record(p projection.Projection) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = append(l.seen, p)
}

func newLibrary(t *testing.T, bus *eventbus.Bus) (*gateway.Gateway, *library) {
	t.Helper()
	lib := &library{books: []map[string]any{
		{"id": "1", "title": "Dune", "author": map[string]any{"name": "Frank Herbert", "born": 1920}},
		{"id": "2", "title": "Emma", "author": map[string]any{"name": "Jane Austen", "born": 1775}},
	}}
	gw, err := gateway.New(gateway.Config{
		Schema: librarySDL,
		Root:   map[string]any{"version": "v1"},
		Resolvers: map[string]resolver.Func{
			"Query.books": func(ctx context.Context, p resolver.Params) (any, error) {
				proj, err := p.Info.Projection("")
				if err != nil {
					return nil, err
				}
				lib.record(proj)
				return lib.books, nil
			},
			"Query.book": func(ctx context.Context, p resolver.Params) (any, error) {
				for _, b := range lib.books {
					if b["id"] == p.Args["id"] {
						return b, nil
					}
				}
				return nil, errors.Errorf("book %v not found", p.Args["id"])
			},
			"Book.reviews": func(ctx context.Context, p resolver.Params) (any, error) {
				return []map[string]any{{"stars": 5}}, nil
			},
		},
		Bus: bus,
	})
	require.NoError(t, err)
	t.Cleanup(gw.Close)
	return gw, lib
}

func TestNew(t *testing.T) {
	t.Run("marks resolver fields", func(t *testing.T) {
		gw, _ := newLibrary(t, nil)
		require.True(t, gw.Schema().FieldDefinition("Query", "books").HasResolver())
		require.True(t, gw.Schema().FieldDefinition("Book", "reviews").HasResolver())
		require.False(t, gw.Schema().FieldDefinition("Book", "title").HasResolver())
	})

	t.Run("default schema with extensions", func(t *testing.T) {
		gw, err := gateway.New(gateway.Config{
			Extensions: []gateway.Extension{{
				Schema: `extend type Query { hello(name: String = "world"): String }`,
				Resolvers: map[string]resolver.Func{
					"Query.hello": func(ctx context.Context, p resolver.Params) (any, error) {
						return "hello " + p.Args["name"].(string), nil
					},
				},
			}},
		})
		require.NoError(t, err)
		defer gw.Close()

		res, err := gw.Request(context.Background(), gateway.Request{Query: `{ hello }`})
		require.NoError(t, err)
		require.Equal(t, map[string]any{"hello": "hello world"}, res.Data)
	})

	t.Run("invalid schema", func(t *testing.T) {
		_, err := gateway.New(gateway.Config{Schema: `type Query { a: Missing }`})
		var schemaErr *schema.SchemaError
		require.ErrorAs(t, err, &schemaErr)
	})

	t.Run("resolver for unknown field", func(t *testing.T) {
		_, err := gateway.New(gateway.Config{
			Schema: librarySDL,
			Resolvers: map[string]resolver.Func{
				"Book.isbn": func(context.Context, resolver.Params) (any, error) { return nil, nil },
			},
		})
		require.ErrorContains(t, err, "Book.isbn")
	})

	t.Run("malformed resolver key", func(t *testing.T) {
		_, err := gateway.New(gateway.Config{
			Schema: librarySDL,
			Resolvers: map[string]resolver.Func{
				"books": func(context.Context, resolver.Params) (any, error) { return nil, nil },
			},
		})
		require.ErrorContains(t, err, "Type.field")
	})

	t.Run("type resolver on object type", func(t *testing.T) {
		_, err := gateway.New(gateway.Config{
			Schema: librarySDL,
			TypeResolvers: map[string]resolver.TypeFunc{
				"Book": func(context.Context, any) (string, error) { return "Book", nil },
			},
		})
		require.ErrorContains(t, err, "not an interface or union")
	})
}

func TestRequest(t *testing.T) {
	ctx := context.Background()
	gw, lib := newLibrary(t, nil)

	t.Run("success", func(t *testing.T) {
		res, err := gw.Request(ctx, gateway.Request{
			Query: `{ version books { title author { name } reviews { stars } } }`,
		})
		require.NoError(t, err)
		want := map[string]any{
			"version": "v1",
			"books": []any{
				map[string]any{"title": "Dune", "author": map[string]any{"name": "Frank Herbert"}, "reviews": []any{map[string]any{"stars": 5}}},
				map[string]any{"title": "Emma", "author": map[string]any{"name": "Jane Austen"}, "reviews": []any{map[string]any{"stars": 5}}},
			},
		}
		require.Empty(t, cmp.Diff(want, res.Data))

		// reviews has its own resolver and stays out of the projection
		require.Len(t, lib.seen, 1)
		require.True(t, lib.seen[0].Equal(projection.Projection{
			"title":  projection.Selected,
			"author": projection.Projection{"name": projection.Selected},
		}), "got %v", lib.seen[0])
	})

	t.Run("variables and operation name", func(t *testing.T) {
		res, err := gw.Request(ctx, gateway.Request{
			Query:         `query A { version } query B($id: ID!) { book(id: $id) { title } }`,
			OperationName: "B",
			Variables:     map[string]any{"id": "2"},
		})
		require.NoError(t, err)
		require.Equal(t, map[string]any{"book": map[string]any{"title": "Emma"}}, res.Data)
	})

	t.Run("missing query", func(t *testing.T) {
		res, err := gw.Request(ctx, gateway.Request{})
		require.Nil(t, res)
		var reqErr *gateway.RequestError
		require.ErrorAs(t, err, &reqErr)
		require.Equal(t, gateway.MessageMissingQuery, reqErr.Message)
		require.Len(t, reqErr.Errors, 1)
		require.Equal(t, "missing query", reqErr.Errors[0].Message)
	})

	t.Run("syntax error", func(t *testing.T) {
		_, err := gw.Request(ctx, gateway.Request{Query: `{ books {`})
		var reqErr *gateway.RequestError
		require.ErrorAs(t, err, &reqErr)
		require.Equal(t, gateway.MessageMalformedQuery, reqErr.Message)
		require.NotEmpty(t, reqErr.Errors)
	})

	t.Run("validation error", func(t *testing.T) {
		_, err := gw.Request(ctx, gateway.Request{Query: `{ books { isbn } }`})
		var reqErr *gateway.RequestError
		require.ErrorAs(t, err, &reqErr)
		require.Equal(t, gateway.MessageMalformedQuery, reqErr.Message)
		require.Contains(t, reqErr.Errors[0].Message, "isbn")
	})

	t.Run("execution error keeps partial data", func(t *testing.T) {
		res, err := gw.Request(ctx, gateway.Request{Query: `{ version book(id: "9") { title } }`})
		var reqErr *gateway.RequestError
		require.ErrorAs(t, err, &reqErr)
		require.Equal(t, gateway.MessageExecution, reqErr.Message)
		require.Len(t, reqErr.Errors, 1)

		ge := reqErr.Errors[0]
		require.Equal(t, "book 9 not found", ge.Message)
		require.Equal(t, "book", ge.Path.String())
		require.Len(t, ge.Locations, 1)
		require.Equal(t, 11, ge.Locations[0].Column)

		require.NotNil(t, res)
		require.Equal(t, map[string]any{"version": "v1", "book": nil}, res.Data)
	})
}

func TestRequestEvents(t *testing.T) {
	bus := eventbus.New()
	var (
		starts   int
		finishes []events.GraphQLFinish
		hits     int
		misses   int
	)
	eventbus.On(bus, func(_ context.Context, e events.GraphQLStart) { starts++ })
	eventbus.On(bus, func(_ context.Context, e events.GraphQLFinish) { finishes = append(finishes, e) })
	eventbus.On(bus, func(_ context.Context, e events.QueryCacheHit) { hits++ })
	eventbus.On(bus, func(_ context.Context, e events.QueryCacheMiss) { misses++ })

	gw, _ := newLibrary(t, bus)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := gw.Request(ctx, gateway.Request{Query: `{ version }`})
		require.NoError(t, err)
	}
	_, err := gw.Request(ctx, gateway.Request{Query: `{ nope }`})
	require.Error(t, err)

	require.Equal(t, 3, starts)
	require.Len(t, finishes, 3)
	require.Equal(t, 1, hits)
	require.Equal(t, 2, misses)

	require.Equal(t, "query", finishes[0].OperationType)
	require.Empty(t, finishes[0].Errors)
	require.Empty(t, finishes[2].OperationType)
	require.NotEmpty(t, finishes[2].Errors)
}

func TestIntrospection(t *testing.T) {
	gw, _ := newLibrary(t, nil)
	query := `{ __type(name: "Book") { name fields { name } } __schema { queryType { name } } }`

	res, err := gw.Request(context.Background(), gateway.Request{Query: query})
	require.NoError(t, err)
	want := map[string]any{
		"__type": map[string]any{
			"name": "Book",
			"fields": []any{
				map[string]any{"name": "id"},
				map[string]any{"name": "title"},
				map[string]any{"name": "author"},
				map[string]any{"name": "reviews"},
			},
		},
		"__schema": map[string]any{"queryType": map[string]any{"name": "Query"}},
	}
	if diff := cmp.Diff(want, res.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}

	closed, err := gateway.New(gateway.Config{Schema: librarySDL, DisableIntrospection: true})
	require.NoError(t, err)
	_, err = closed.Request(context.Background(), gateway.Request{Query: `{ __schema { queryType { name } } }`})
	var rerr *gateway.RequestError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, gateway.MessageExecution, rerr.Message)
}
