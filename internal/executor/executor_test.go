package executor_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	executor "github.com/hanpama/projectql/internal/executor"
	language "github.com/hanpama/projectql/internal/language"
	projection "github.com/hanpama/projectql/internal/projection"
	schema "github.com/hanpama/projectql/internal/schema"
)

func mustParseQuery(t *testing.T, q string) *language.QueryDocument {
	t.Helper()
	doc, err := language.ParseQuery(q)
	require.NoError(t, err)
	return doc
}

// newExecutor builds the schema from sdl and marks the "Type.field" entries
// of resolved as resolver-backed.
func newExecutor(t *testing.T, sdl string, resolved []string, resolvers map[string]executor.MockResolver) (*executor.Executor, *executor.MockRuntime) {
	t.Helper()
	sch, err := schema.BuildFromSDL(sdl)
	require.NoError(t, err)
	for _, key := range resolved {
		typeName, fieldName, _ := strings.Cut(key, ".")
		require.NoError(t, sch.MarkResolved(typeName, fieldName))
	}
	rt := executor.NewMockRuntime(resolvers)
	return executor.NewExecutor(rt, sch), rt
}

func mapField(name string) executor.MockResolver {
	return func(_ context.Context, source any, _ map[string]any) (any, error) {
		return source.(map[string]any)[name], nil
	}
}

func execute(t *testing.T, exec *executor.Executor, query string, variables map[string]any) *executor.ExecutionResult {
	t.Helper()
	return exec.ExecuteRequest(context.Background(), mustParseQuery(t, query), "", variables, nil)
}

func TestExecute_SyncAndAsyncRouting(t *testing.T) {
	exec, rt := newExecutor(t, `type Query { a: String b: String }`, []string{"Query.b"}, map[string]executor.MockResolver{
		"Query.a": executor.NewMockValueResolver("A"),
		"Query.b": executor.NewMockValueResolver("B"),
	})

	got := execute(t, exec, "{ a b }", nil)
	want := &executor.ExecutionResult{Data: map[string]any{"a": "A", "b": "B"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
	}

	wantCalls := []executor.Call{
		{Kind: executor.CallKindSync, ObjectType: "Query", Field: "a", Args: map[string]any{}},
		{Kind: executor.CallKindAsync, ObjectType: "Query", Field: "b", Args: map[string]any{}, BatchID: 1},
	}
	if diff := cmp.Diff(wantCalls, rt.GetCalls()); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestExecute_OneBatchPerDepth(t *testing.T) {
	const sdl = `
type Post { title: String author: User }
type User { name: String posts: [Post] }
type Query { users: [User] }
`
	ada := map[string]any{"name": "ada"}
	bob := map[string]any{"name": "bob"}
	posts := map[string][]any{
		"ada": {map[string]any{"title": "a1"}, map[string]any{"title": "a2"}},
		"bob": {map[string]any{"title": "b1"}},
	}
	exec, rt := newExecutor(t, sdl, []string{"Query.users", "User.posts", "Post.author"}, map[string]executor.MockResolver{
		"Query.users": executor.NewMockValueResolver([]any{ada, bob}),
		"User.name":   mapField("name"),
		"User.posts": func(_ context.Context, source any, _ map[string]any) (any, error) {
			return posts[source.(map[string]any)["name"].(string)], nil
		},
		"Post.title":  mapField("title"),
		"Post.author": executor.NewMockValueResolver(ada),
	})

	got := execute(t, exec, "{ users { name posts { title author { name } } } }", nil)
	require.Empty(t, got.Errors)
	want := map[string]any{"users": []any{
		map[string]any{"name": "ada", "posts": []any{
			map[string]any{"title": "a1", "author": map[string]any{"name": "ada"}},
			map[string]any{"title": "a2", "author": map[string]any{"name": "ada"}},
		}},
		map[string]any{"name": "bob", "posts": []any{
			map[string]any{"title": "b1", "author": map[string]any{"name": "ada"}},
		}},
	}}
	if diff := cmp.Diff(want, got.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}

	perBatch := map[int][]string{}
	for _, call := range rt.GetCalls() {
		if call.Kind == executor.CallKindAsync {
			perBatch[call.BatchID] = append(perBatch[call.BatchID], call.ObjectType+"."+call.Field)
		}
	}
	require.Equal(t, map[int][]string{
		1: {"Query.users"},
		2: {"User.posts", "User.posts"},
		3: {"Post.author", "Post.author", "Post.author"},
	}, perBatch)
}

func TestExecute_NonNullPropagation(t *testing.T) {
	const sdl = `
type User { id: ID! name: String! }
type Query { user: User me: User! }
`
	t.Run("plain field", func(t *testing.T) {
		exec, _ := newExecutor(t, sdl, nil, map[string]executor.MockResolver{
			"Query.user": executor.NewMockValueResolver(map[string]any{"id": "1", "name": nil}),
			"User.id":    mapField("id"),
			"User.name":  mapField("name"),
		})
		got := execute(t, exec, "{ user { id name } }", nil)
		require.Equal(t, map[string]any{"user": nil}, got.Data)
		require.Len(t, got.Errors, 1)
		require.Equal(t, "Cannot return null for non-nullable field user.name", got.Errors[0].Message)
		require.Equal(t, executor.Path{"user", "name"}, got.Errors[0].Path)
		require.Equal(t, []executor.Location{{Line: 1, Column: 13}}, got.Errors[0].Locations)
	})

	t.Run("resolver error", func(t *testing.T) {
		exec, _ := newExecutor(t, sdl, []string{"Query.me"}, map[string]executor.MockResolver{
			"Query.me": executor.NewMockErrorResolver(errors.New("boom")),
		})
		got := execute(t, exec, "{ me { id } }", nil)
		require.Equal(t, map[string]any{"me": nil}, got.Data)
		require.Len(t, got.Errors, 1)
		require.Equal(t, "boom", got.Errors[0].Message)
		require.Equal(t, executor.Path{"me"}, got.Errors[0].Path)
	})

	t.Run("queued children of a nulled parent are dropped", func(t *testing.T) {
		exec, rt := newExecutor(t, `
type Post { title: String }
type User { id: ID! posts: [Post] }
type Query { user: User }
`, []string{"User.posts"}, map[string]executor.MockResolver{
			"Query.user": executor.NewMockValueResolver(map[string]any{}),
			"User.id":    mapField("id"),
		})
		got := execute(t, exec, "{ user { posts { title } id } }", nil)
		require.Equal(t, map[string]any{"user": nil}, got.Data)
		for _, call := range rt.GetCalls() {
			require.NotEqual(t, executor.CallKindAsync, call.Kind)
		}
	})
}

const shapesSDL = `
interface Shape { area: Float }
type Circle implements Shape { area: Float radius: Float }
type Square implements Shape { area: Float side: Float }
type Query { shapes: [Shape] }
`

func shapeResolvers() map[string]executor.MockResolver {
	return map[string]executor.MockResolver{
		"Query.shapes": executor.NewMockValueResolver([]any{
			map[string]any{"__typename": "Circle", "area": 3.14, "radius": 1.0},
			map[string]any{"__typename": "Square", "area": 4.0, "side": 2.0},
		}),
		"Circle.area":   mapField("area"),
		"Circle.radius": mapField("radius"),
		"Square.area":   mapField("area"),
		"Square.side":   mapField("side"),
	}
}

func TestExecute_AbstractTypes(t *testing.T) {
	exec, _ := newExecutor(t, shapesSDL, nil, shapeResolvers())

	got := execute(t, exec, `
{ shapes { __typename ... on Shape { area } ... on Circle { radius } ...S } }
fragment S on Square { side }
`, nil)
	want := &executor.ExecutionResult{Data: map[string]any{"shapes": []any{
		map[string]any{"__typename": "Circle", "area": 3.14, "radius": 1.0},
		map[string]any{"__typename": "Square", "area": 4.0, "side": 2.0},
	}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
	}

	t.Run("type outside the possible types", func(t *testing.T) {
		exec, rt := newExecutor(t, shapesSDL, nil, shapeResolvers())
		rt.TypeResolver = func(any) (string, error) { return "Query", nil }

		got := execute(t, exec, "{ shapes { area } }", nil)
		require.Equal(t, map[string]any{"shapes": []any{nil, nil}}, got.Data)
		require.Len(t, got.Errors, 2)
		require.Contains(t, got.Errors[0].Message, "must resolve to one of its possible object types")
		require.Equal(t, executor.Path{"shapes", 0}, got.Errors[0].Path)
	})
}

func TestExecute_ResolveInfo(t *testing.T) {
	const sdl = `
type Address { street: String city: String }
type Post { title: String }
type User { id: ID address: Address posts: [Post] }
type Query { user: User }
`
	var addressInfo *executor.ResolveInfo
	exec, rt := newExecutor(t, sdl, []string{"Query.user", "User.posts"}, map[string]executor.MockResolver{
		"Query.user": executor.NewMockValueResolver(map[string]any{"id": "1", "address": map[string]any{"city": "Oslo"}}),
		"User.id":    mapField("id"),
		"User.address": func(ctx context.Context, source any, _ map[string]any) (any, error) {
			addressInfo = executor.ResolveInfoFromContext(ctx)
			return source.(map[string]any)["address"], nil
		},
		"Address.city": mapField("city"),
		"User.posts":   executor.NewMockValueResolver([]any{map[string]any{"title": "hello"}}),
		"Post.title":   mapField("title"),
	})

	got := execute(t, exec, "{ user { id address { city } posts { title } } }", nil)
	require.Empty(t, got.Errors)

	var userInfo *executor.ResolveInfo
	for i, call := range rt.GetCalls() {
		if call.ObjectType == "Query" && call.Field == "user" {
			userInfo = rt.GetInfos()[i]
		}
	}
	require.NotNil(t, userInfo)
	require.Equal(t, executor.Path{"user"}, userInfo.Path)

	p, err := userInfo.Projection("")
	require.NoError(t, err)
	if diff := cmp.Diff(projection.Projection{"id": projection.Selected, "address": projection.Projection{"city": projection.Selected}}, p); diff != "" {
		t.Fatalf("projection mismatch (-want +got):\n%s", diff)
	}

	p, err = userInfo.Projection("address")
	require.NoError(t, err)
	require.Equal(t, projection.Projection{"city": projection.Selected}, p)

	require.NotNil(t, addressInfo)
	require.Equal(t, "address", addressInfo.FieldName)
	require.Equal(t, "User", addressInfo.ParentType.Name)
	require.Equal(t, executor.Path{"user", "address"}, addressInfo.Path)
	require.Equal(t, "Address", addressInfo.ReturnType().String())
	require.Nil(t, executor.ResolveInfoFromContext(context.Background()))
}

func TestExecute_VariablesAndDirectives(t *testing.T) {
	const sdl = `
type User { id: ID name: String }
type Query { user(id: ID!, limit: Int = 5): User }
`
	exec, rt := newExecutor(t, sdl, nil, map[string]executor.MockResolver{
		"Query.user": func(_ context.Context, _ any, args map[string]any) (any, error) {
			return map[string]any{"id": args["id"], "name": "ada"}, nil
		},
		"User.id":   mapField("id"),
		"User.name": mapField("name"),
	})

	const query = `query Q($id: ID!, $withName: Boolean!) { user(id: $id) { id name @include(if: $withName) } }`
	got := execute(t, exec, query, map[string]any{"id": 7, "withName": false})
	require.Empty(t, got.Errors)
	require.Equal(t, map[string]any{"user": map[string]any{"id": "7"}}, got.Data)
	require.Equal(t, map[string]any{"id": "7", "limit": 5}, rt.GetCalls()[0].Args)

	got = execute(t, exec, query, map[string]any{"withName": true})
	require.Nil(t, got.Data)
	require.Equal(t, "variable $id of required type ID! was not provided", got.Errors[0].Message)
}

func TestExecute_OperationErrors(t *testing.T) {
	exec, _ := newExecutor(t, `type Query { a: String } type Mutation { ping: String }`, nil, map[string]executor.MockResolver{
		"Query.a":       executor.NewMockValueResolver("A"),
		"Mutation.ping": executor.NewMockValueResolver("pong"),
	})
	ctx := context.Background()

	doc := mustParseQuery(t, "query A { a } mutation B { ping }")
	require.Equal(t, map[string]any{"ping": "pong"}, exec.ExecuteRequest(ctx, doc, "B", nil, nil).Data)

	got := exec.ExecuteRequest(ctx, doc, "", nil, nil)
	require.Contains(t, got.Errors[0].Message, "must provide operation name")

	got = exec.ExecuteRequest(ctx, doc, "C", nil, nil)
	require.Equal(t, `unknown operation named "C"`, got.Errors[0].Message)

	got = exec.ExecuteRequest(ctx, mustParseQuery(t, "subscription { a }"), "", nil, nil)
	require.Equal(t, "unsupported operation type: subscription", got.Errors[0].Message)

	got = execute(t, exec, "{ a nope }", nil)
	require.Equal(t, map[string]any{"a": "A"}, got.Data)
	require.Equal(t, `Cannot query field "nope" on type "Query"`, got.Errors[0].Message)
	require.Equal(t, []executor.Location{{Line: 1, Column: 5}}, got.Errors[0].Locations)
}

func TestPathString(t *testing.T) {
	require.Equal(t, "users[0].posts[12].title", executor.Path{"users", 0, "posts", 12, "title"}.String())
	require.Equal(t, "", executor.Path{}.String())
}
