// Package reqctx carries the ambient HTTP request state the audit engine
// consumes: method, URL, resolved actor, plus the request-scoped dedup set and
// before-snapshot cache shared between the before/after phases of one store
// operation. The host threads a *Request through context.Context for the
// duration of each inbound request.
package reqctx

import (
	"context"
	"net/http"
	"sync"

	"github.com/goliatone/go-oplog/pkg/types"
)

type contextKey struct{}

// Actor identifies the already-authenticated principal behind a request.
// Resolution of credentials happens upstream; the engine only consumes it.
type Actor struct {
	Email string
	Name  string
}

// Request holds per-request ambient state. Safe for concurrent use; lifecycle
// hooks for one request may run on different goroutines.
type Request struct {
	Method string
	URL    string
	Actor  *Actor

	mu      sync.Mutex
	seen    map[string]struct{}
	before  map[string]types.Snapshot
	headers map[string]string
}

// New constructs request state for the supplied method/URL/actor.
func New(method, url string, actor *Actor) *Request {
	return &Request{
		Method: method,
		URL:    url,
		Actor:  actor,
	}
}

// WithRequest attaches the request state to the context.
func WithRequest(ctx context.Context, req *Request) context.Context {
	if req == nil {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, req)
}

// FromContext returns the request state, if any.
func FromContext(ctx context.Context) (*Request, bool) {
	if ctx == nil {
		return nil, false
	}
	req, ok := ctx.Value(contextKey{}).(*Request)
	return req, ok
}

// Method reports the HTTP method of the ambient request, or "" outside one.
func Method(ctx context.Context) string {
	if req, ok := FromContext(ctx); ok {
		return req.Method
	}
	return ""
}

// URL reports the URL of the ambient request, or "" outside one.
func URL(ctx context.Context) string {
	if req, ok := FromContext(ctx); ok {
		return req.URL
	}
	return ""
}

// ActorFromContext returns the resolved actor, or nil for system-triggered
// operations running outside a request scope.
func ActorFromContext(ctx context.Context) *Actor {
	if req, ok := FromContext(ctx); ok {
		return req.Actor
	}
	return nil
}

// SetHeader records a request header for downstream consumers. Keys are
// canonicalized.
func (r *Request) SetHeader(key, value string) {
	if r == nil || key == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[http.CanonicalHeaderKey(key)] = value
}

// Header returns the recorded request header value, or "".
func (r *Request) Header(key string) string {
	if r == nil || key == "" {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.headers[http.CanonicalHeaderKey(key)]
}

// FirstSeen marks the key as observed and reports whether this was its first
// occurrence within the request.
func (r *Request) FirstSeen(key string) bool {
	if r == nil || key == "" {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen == nil {
		r.seen = make(map[string]struct{})
	}
	if _, ok := r.seen[key]; ok {
		return false
	}
	r.seen[key] = struct{}{}
	return true
}

// StashBefore caches the pre-operation snapshot captured by a before-phase
// hook so the matching after-phase hook can diff against it.
func (r *Request) StashBefore(key string, snap types.Snapshot) {
	if r == nil || key == "" || snap == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.before == nil {
		r.before = make(map[string]types.Snapshot)
	}
	r.before[key] = snap
}

// Before returns the cached pre-operation snapshot for the key, if present.
func (r *Request) Before(key string) (types.Snapshot, bool) {
	if r == nil || key == "" {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	snap, ok := r.before[key]
	return snap, ok
}
