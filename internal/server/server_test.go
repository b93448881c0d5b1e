package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	eventbus "github.com/hanpama/projectql/internal/eventbus"
	events "github.com/hanpama/projectql/internal/events"
	gateway "github.com/hanpama/projectql/internal/gateway"
	reqid "github.com/hanpama/projectql/internal/reqid"
	resolver "github.com/hanpama/projectql/internal/resolver"
)

type response struct {
	Data   map[string]any `json:"data"`
	Errors []struct {
		Message string `json:"message"`
		Path    []any  `json:"path"`
	} `json:"errors"`
}

func newTestHandler(t *testing.T, resolvers map[string]resolver.Func, bus *eventbus.Bus, opts ...Option) *Handler {
	t.Helper()
	gw, err := gateway.New(gateway.Config{
		Schema:    `type Query { hello(name: String): String fail: String }`,
		Root:      map[string]any{"hello": "world"},
		Resolvers: resolvers,
		Bus:       bus,
	})
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}
	t.Cleanup(gw.Close)
	return New(gw, opts...)
}

func serve(h http.Handler, req *http.Request) (*httptest.ResponseRecorder, response) {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	var res response
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	return w, res
}

func post(body string) *http.Request {
	req := httptest.NewRequest("POST", "/", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestGetAndPost(t *testing.T) {
	h := newTestHandler(t, map[string]resolver.Func{
		"Query.hello": func(ctx context.Context, p resolver.Params) (any, error) {
			if name, ok := p.Args["name"].(string); ok {
				return "hello " + name, nil
			}
			return "world", nil
		},
	}, nil)

	w, res := serve(h, post(`{"query":"query Q($n: String) { hello(name: $n) }","variables":{"n":"ada"},"operationName":"Q"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body)
	}
	require.Equal(t, map[string]any{"hello": "hello ada"}, res.Data)
	require.Empty(t, res.Errors)
	require.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	q := url.Values{}
	q.Set("query", "query Q($n: String) { hello(name: $n) }")
	q.Set("variables", `{"n":"bob"}`)
	w, res = serve(h, httptest.NewRequest("GET", "/?"+q.Encode(), nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body)
	}
	require.Equal(t, map[string]any{"hello": "hello bob"}, res.Data)
}

func TestRequestErrors(t *testing.T) {
	h := newTestHandler(t, map[string]resolver.Func{
		"Query.fail": func(ctx context.Context, p resolver.Params) (any, error) {
			return nil, errors.New("boom")
		},
	}, nil)

	tests := []struct {
		name    string
		req     *http.Request
		status  int
		message string
	}{
		{"missing query", post(`{}`), http.StatusConflict, "missing query"},
		{"missing GET query", httptest.NewRequest("GET", "/", nil), http.StatusConflict, "missing query"},
		{"syntax error", post(`{"query":"{ hello"}`), http.StatusConflict, "EOF"},
		{"unknown field", post(`{"query":"{ nope }"}`), http.StatusConflict, `Cannot query field "nope" on type "Query".`},
		{"execution error", post(`{"query":"{ hello fail }"}`), http.StatusConflict, "boom"},
		{"array body", post(`[{"query":"{ hello }"}]`), http.StatusConflict, "invalid input format"},
		{"string body", post(`"{ hello }"`), http.StatusConflict, "invalid input format"},
		{"broken json", post(`{"query":`), http.StatusConflict, "invalid input format"},
		{"bad GET variables", httptest.NewRequest("GET", "/?query=%7Bhello%7D&variables=%7B", nil), http.StatusConflict, "invalid input format"},
		{"method", httptest.NewRequest("PUT", "/", nil), http.StatusMethodNotAllowed, "method not allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, res := serve(h, tt.req)
			if w.Code != tt.status {
				t.Fatalf("expected %d got %d: %s", tt.status, w.Code, w.Body)
			}
			require.Contains(t, w.Body.String(), `"data":null`)
			require.NotEmpty(t, res.Errors)
			require.Contains(t, res.Errors[0].Message, tt.message)
		})
	}
}

func TestExecutionErrorPath(t *testing.T) {
	h := newTestHandler(t, map[string]resolver.Func{
		"Query.fail": func(ctx context.Context, p resolver.Params) (any, error) {
			return nil, errors.New("boom")
		},
	}, nil)

	_, res := serve(h, post(`{"query":"{ fail }"}`))
	require.Len(t, res.Errors, 1)
	require.Equal(t, []any{"fail"}, res.Errors[0].Path)
}

func TestUnsupportedContentType(t *testing.T) {
	h := newTestHandler(t, nil, nil)
	req := httptest.NewRequest("POST", "/", bytes.NewBufferString(`query=%7Bhello%7D`))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w, _ := serve(h, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415 got %d", w.Code)
	}
}

func TestCORSAndPreflight(t *testing.T) {
	h := newTestHandler(t, nil, nil, WithCORS("*"))

	// simple request
	req := post(`{"query":"{ hello }"}`)
	req.Header.Set("Origin", "http://example.com")
	w, _ := serve(h, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}

	// preflight
	pre := httptest.NewRequest("OPTIONS", "/", nil)
	pre.Header.Set("Origin", "http://example.com")
	pre.Header.Set("Access-Control-Request-Headers", "X-Test")
	pw := httptest.NewRecorder()
	h.ServeHTTP(pw, pre)
	if pw.Code != http.StatusNoContent {
		t.Fatalf("preflight status %d", pw.Code)
	}
	if pw.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("preflight missing CORS header")
	}
	if pw.Header().Get("Access-Control-Allow-Headers") != "X-Test" {
		t.Fatalf("preflight missing allow headers")
	}
}

func TestCORSOriginList(t *testing.T) {
	h := newTestHandler(t, nil, nil, WithCORS("http://a.example"))

	req := post(`{"query":"{ hello }"}`)
	req.Header.Set("Origin", "http://a.example")
	w, _ := serve(h, req)
	require.Equal(t, "http://a.example", w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "Origin", w.Header().Get("Vary"))

	req = post(`{"query":"{ hello }"}`)
	req.Header.Set("Origin", "http://b.example")
	w, _ = serve(h, req)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMaxBodyBytes(t *testing.T) {
	h := newTestHandler(t, nil, nil, WithMaxBodyBytes(10))

	w, _ := serve(h, post(`{"query":"1234567890"}`))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 got %d", w.Code)
	}
}

func TestPretty(t *testing.T) {
	h := newTestHandler(t, nil, nil, WithPretty())
	w, _ := serve(h, post(`{"query":"{ hello }"}`))
	require.Equal(t, "{\n  \"data\": {\n    \"hello\": \"world\"\n  }\n}\n", w.Body.String())
}

func TestRequestID(t *testing.T) {
	var capturedID string
	h := newTestHandler(t, map[string]resolver.Func{
		"Query.hello": func(ctx context.Context, p resolver.Params) (any, error) {
			capturedID, _ = reqid.FromContext(ctx)
			return "world", nil
		},
	}, nil)

	w, _ := serve(h, post(`{"query":"{ hello }"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if capturedID == "" {
		t.Fatalf("missing request id in context")
	}
	require.Equal(t, capturedID, w.Header().Get(reqid.Header))

	supplied := uuid.NewString()
	req := post(`{"query":"{ hello }"}`)
	req.Header.Set(reqid.Header, supplied)
	w, _ = serve(h, req)
	require.Equal(t, supplied, capturedID)
	require.Equal(t, supplied, w.Header().Get(reqid.Header))

	req = post(`{"query":"{ hello }"}`)
	req.Header.Set(reqid.Header, "not-a-uuid")
	w, _ = serve(h, req)
	require.NotEqual(t, "not-a-uuid", w.Header().Get(reqid.Header))
}

func TestHTTPEvents(t *testing.T) {
	bus := eventbus.New()
	var (
		started  int
		statuses []int
		ops      []string
	)
	eventbus.On(bus, func(_ context.Context, e events.HTTPStart) { started++ })
	eventbus.On(bus, func(_ context.Context, e events.HTTPFinish) { statuses = append(statuses, e.Status) })
	eventbus.On(bus, func(_ context.Context, e events.GraphQLFinish) { ops = append(ops, e.OperationType) })

	h := newTestHandler(t, nil, bus)
	serve(h, post(`{"query":"{ hello }"}`))
	serve(h, post(`[]`))
	serve(h, httptest.NewRequest("DELETE", "/", nil))

	require.Equal(t, 3, started)
	require.Equal(t, []int{http.StatusOK, http.StatusConflict, http.StatusMethodNotAllowed}, statuses)
	require.Equal(t, []string{"query"}, ops)
}
