package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	eventbus "github.com/hanpama/projectql/internal/eventbus"
	events "github.com/hanpama/projectql/internal/events"
	gateway "github.com/hanpama/projectql/internal/gateway"
	language "github.com/hanpama/projectql/internal/language"
	reqid "github.com/hanpama/projectql/internal/reqid"
)

// Handler is an http.Handler that serves a GraphQL endpoint.
// Requests that fail before or during execution are answered with 409 and
// a null data member.
type Handler struct {
	gw  *gateway.Gateway
	bus *eventbus.Bus
	opt Options
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

const (
	messageInvalidInput     = "invalid input format"
	messageBodyTooLarge     = "body too large"
	messageMethodNotAllowed = "method not allowed"
)

// New creates a handler serving gw. HTTP events go to the gateway's bus.
func New(gw *gateway.Gateway, opts ...Option) *Handler {
	op := Options{Timeout: 10 * time.Second}
	for _, f := range opts {
		f(&op)
	}
	return &Handler{gw: gw, bus: gw.Bus(), opt: op}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	ctx, rid := reqid.WithID(ctx, r.Header.Get(reqid.Header))
	w.Header().Set(reqid.Header, rid)

	status := http.StatusOK
	start := time.Now()
	eventbus.Emit(ctx, h.bus, events.HTTPStart{Request: r})
	defer func() {
		eventbus.Emit(ctx, h.bus, events.HTTPFinish{Request: r, Status: status, Duration: time.Since(start)})
	}()

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}

	if r.Method == http.MethodOptions {
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		status = http.StatusMethodNotAllowed
		w.Header().Set("Allow", "GET, POST, OPTIONS")
		writeJSON(w, status, errorResponse(messageMethodNotAllowed, nil), h.opt.Pretty)
		return
	}

	req, err := parseRequest(r, h.opt.MaxBodyBytes)
	if err != nil {
		status = requestStatus(err)
		writeJSON(w, status, errorResponse(err.Error(), nil), h.opt.Pretty)
		return
	}

	res, err := h.gw.Request(ctx, req)
	if err != nil {
		var reqErr *gateway.RequestError
		if !errors.As(err, &reqErr) {
			status = http.StatusInternalServerError
			writeJSON(w, status, errorResponse(err.Error(), nil), h.opt.Pretty)
			return
		}
		status = http.StatusConflict
		writeJSON(w, status, errorResponse(reqErr.Message, reqErr.Errors), h.opt.Pretty)
		return
	}
	writeJSON(w, status, res, h.opt.Pretty)
}

// ------------------ Request parsing ------------------

// httpError is a transport-level failure with its own status code.
type httpError struct {
	status  int
	message string
}

func (e *httpError) Error() string { return e.message }

func requestStatus(err error) int {
	var he *httpError
	if errors.As(err, &he) {
		return he.status
	}
	return http.StatusConflict
}

func parseRequest(r *http.Request, maxBody int64) (gateway.Request, error) {
	if r.Method == http.MethodGet {
		q := r.URL.Query()
		req := gateway.Request{Query: q.Get("query"), OperationName: q.Get("operationName")}
		if v := q.Get("variables"); v != "" {
			if err := json.Unmarshal([]byte(v), &req.Variables); err != nil {
				return gateway.Request{}, errors.New(messageInvalidInput)
			}
		}
		return req, nil
	}

	// POST
	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" && !strings.HasPrefix(ct, "application/json;") {
		return gateway.Request{}, &httpError{status: http.StatusUnsupportedMediaType, message: "unsupported Content-Type"}
	}
	defer r.Body.Close()
	reader := io.Reader(r.Body)
	if maxBody > 0 {
		reader = io.LimitReader(r.Body, maxBody+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return gateway.Request{}, &httpError{status: http.StatusBadRequest, message: "failed to read body"}
	}
	if maxBody > 0 && int64(len(body)) > maxBody {
		return gateway.Request{}, &httpError{status: http.StatusRequestEntityTooLarge, message: messageBodyTooLarge}
	}

	// Only a JSON object is a request; arrays, scalars and null are not.
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return gateway.Request{}, errors.New(messageInvalidInput)
	}
	var req gateway.Request
	if err := json.Unmarshal(body, &req); err != nil {
		return gateway.Request{}, errors.New(messageInvalidInput)
	}
	return req, nil
}

// ------------------ Response formatting ------------------

type errorResult struct {
	Data   any                `json:"data"`
	Errors language.ErrorList `json:"errors"`
}

// errorResponse lists errs, or a single error carrying message when errs is
// empty.
func errorResponse(message string, errs language.ErrorList) errorResult {
	if len(errs) == 0 {
		errs = language.ErrorList{{Message: message}}
	}
	return errorResult{Data: nil, Errors: errs}
}

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" || o == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}
	if contains(opts.AllowedOrigins, "*") {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
