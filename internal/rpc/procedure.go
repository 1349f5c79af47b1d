// Package rpc implements the typed procedure layer served under /api/trpc.
//
// A procedure is a named, typed handler registered on a Router as either a query
// (reachable by GET) or a mutation (reachable by POST). Every call runs through the
// same chain: router middleware (logging, rate limiting), input decoding and
// validation, the procedure's guards, then the handler itself.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/quillpress/quill-server/internal/auth"
	domainerrors "github.com/quillpress/quill-server/internal/errors"
	"github.com/quillpress/quill-server/internal/validation"
)

// Kind tells queries from mutations.
type Kind string

const (
	// KindQuery procedures read state and are called with GET.
	KindQuery Kind = "query"
	// KindMutation procedures change state and are called with POST.
	KindMutation Kind = "mutation"
)

// Method returns the HTTP method a procedure of this kind accepts.
func (k Kind) Method() string {
	if k == KindMutation {
		return http.MethodPost
	}
	return http.MethodGet
}

// Call is a single procedure invocation as it moves through the middleware chain.
type Call struct {
	Path     string
	Kind     Kind
	Raw      json.RawMessage
	Request  *http.Request
	Identity *auth.Identity

	// Input is the decoded and validated input, set by the validation stage.
	Input any
}

// UserID returns the caller's id, or 0 for anonymous calls.
func (c *Call) UserID() int64 {
	if c.Identity == nil {
		return 0
	}
	return c.Identity.UserID
}

// HandlerFunc executes a call and returns its result.
type HandlerFunc func(ctx context.Context, call *Call) (any, error)

// Middleware wraps a HandlerFunc to add cross-cutting behavior.
type Middleware func(next HandlerFunc) HandlerFunc

// ProcedureHandler is the typed body of a procedure.
type ProcedureHandler[I, O any] func(ctx context.Context, in I) (O, error)

// NoInput is the input type of procedures that take none.
type NoInput struct{}

// Procedure is a registered endpoint with its middleware chain already composed.
type Procedure struct {
	Path string
	Kind Kind
	run  HandlerFunc
}

// Router holds procedures by dotted path ("posts.getById").
type Router struct {
	mu         sync.RWMutex
	procedures map[string]*Procedure
	middleware []Middleware
	validator  *validation.Validator
}

// NewRouter creates a router whose procedures all run mw first, in order.
func NewRouter(v *validation.Validator, mw ...Middleware) *Router {
	if v == nil {
		v = validation.New()
	}
	return &Router{
		procedures: make(map[string]*Procedure),
		middleware: mw,
		validator:  v,
	}
}

// Lookup returns the procedure registered at path.
func (r *Router) Lookup(path string) (*Procedure, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.procedures[path]
	return p, ok
}

// Paths lists registered procedure paths in sorted order.
func (r *Router) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	paths := make([]string, 0, len(r.procedures))
	for p := range r.procedures {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (r *Router) add(p *Procedure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.procedures[p.Path]; dup {
		panic(fmt.Sprintf("rpc: procedure %q registered twice", p.Path))
	}
	r.procedures[p.Path] = p
}

// Query registers a read procedure.
func Query[I, O any](r *Router, path string, h ProcedureHandler[I, O], guards ...Middleware) {
	register(r, path, KindQuery, h, guards)
}

// Mutation registers a write procedure.
func Mutation[I, O any](r *Router, path string, h ProcedureHandler[I, O], guards ...Middleware) {
	register(r, path, KindMutation, h, guards)
}

func register[I, O any](r *Router, path string, kind Kind, h ProcedureHandler[I, O], guards []Middleware) {
	final := func(ctx context.Context, call *Call) (any, error) {
		in, ok := call.Input.(*I)
		if !ok {
			return nil, domainerrors.Internal("Internal server error")
		}
		return h(ctx, *in)
	}

	chain := make([]Middleware, 0, len(r.middleware)+1+len(guards))
	chain = append(chain, r.middleware...)
	chain = append(chain, decodeInput[I](r.validator))
	chain = append(chain, guards...)

	r.add(&Procedure{Path: path, Kind: kind, run: compose(final, chain)})
}

// compose wraps h so that chain[0] runs first.
func compose(h HandlerFunc, chain []Middleware) HandlerFunc {
	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}
	return h
}

// decodeInput is the validation stage: it decodes the raw input into a fresh I,
// normalizes and validates it, and stores it on the call.
func decodeInput[I any](v *validation.Validator) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *Call) (any, error) {
			in := new(I)
			if err := v.Decode(call.Raw, in); err != nil {
				return nil, err
			}
			call.Input = in
			return next(ctx, call)
		}
	}
}

// InputAs returns the decoded input of a call when it has type I.
func InputAs[I any](call *Call) (*I, bool) {
	in, ok := call.Input.(*I)
	return in, ok
}
