package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"runtime/debug"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/quillpress/quill-server/internal/auth"
	domainerrors "github.com/quillpress/quill-server/internal/errors"
)

// MaxBodySize bounds the request body of a call or batch.
const MaxBodySize = 1 << 20

var wire = jsoniter.ConfigCompatibleWithStandardLibrary

// Response is the envelope written for one call.
type Response struct {
	Result *Result     `json:"result,omitempty"`
	Error  *ErrorShape `json:"error,omitempty"`

	status int
}

// Result wraps successful output.
type Result struct {
	Data any `json:"data"`
}

// Handler serves procedures over HTTP. The last path segment names the procedure,
// or a comma separated list of procedures when the batch=1 query parameter is set.
type Handler struct {
	router    *Router
	authn     *Authenticator
	formatter *Formatter
	logger    *slog.Logger
}

// NewHandler creates the HTTP entry point for router. authn may be nil, in which
// case every call is anonymous.
func NewHandler(router *Router, authn *Authenticator, logger *slog.Logger) *Handler {
	return &Handler{
		router:    router,
		authn:     authn,
		formatter: NewFormatter(logger),
		logger:    logger,
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	batch := isBatch(r)

	paths := []string{path.Base(r.URL.Path)}
	if batch {
		paths = strings.Split(paths[0], ",")
	}

	var identity *auth.Identity
	if h.authn != nil {
		identity = h.authn.Identify(r)
	}

	inputs, inputErr := readInputs(w, r, batch, len(paths))

	responses := make([]Response, len(paths))
	for i, p := range paths {
		if inputErr != nil {
			responses[i] = h.failure(ctx, p, inputErr)
			continue
		}
		responses[i] = h.invoke(ctx, r, p, inputs[i], identity)
	}

	if !batch {
		h.write(w, responses[0].status, responses[0])
		return
	}

	status := responses[0].status
	for _, resp := range responses[1:] {
		if resp.status != status {
			status = http.StatusMultiStatus
			break
		}
	}
	h.write(w, status, responses)
}

func isBatch(r *http.Request) bool {
	v := r.URL.Query().Get("batch")
	ok, _ := strconv.ParseBool(v)
	return ok
}

// invoke runs one call. A panic inside the chain fails only this call.
func (h *Handler) invoke(ctx context.Context, r *http.Request, procPath string, raw json.RawMessage, identity *auth.Identity) (resp Response) {
	proc, ok := h.router.Lookup(procPath)
	if !ok {
		return h.failure(ctx, procPath, domainerrors.NotFoundf("No procedure found on path %q", procPath))
	}
	if r.Method != proc.Kind.Method() {
		return h.failure(ctx, procPath, domainerrors.MethodNotSupported(
			fmt.Sprintf("Unsupported %s method for %s procedure %q", r.Method, proc.Kind, procPath)))
	}

	call := &Call{
		Path:     proc.Path,
		Kind:     proc.Kind,
		Raw:      raw,
		Request:  r,
		Identity: identity,
	}
	callCtx := ctx
	if identity != nil {
		callCtx = auth.WithIdentity(ctx, identity)
	}

	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("panic: %v\n%s", rec, debug.Stack())
			resp = h.failure(ctx, procPath, err)
		}
	}()

	out, err := proc.run(callCtx, call)
	if err != nil {
		return h.failure(ctx, procPath, err)
	}
	return Response{Result: &Result{Data: out}, status: http.StatusOK}
}

func (h *Handler) failure(ctx context.Context, procPath string, err error) Response {
	shape := h.formatter.Format(ctx, procPath, err)
	return Response{Error: &shape, status: shape.Data.HTTPStatus}
}

// readInputs returns one raw input per call. GET requests carry input in the
// "input" query parameter; POST requests carry it in the body. Batched inputs are
// an object keyed by call index.
func readInputs(w http.ResponseWriter, r *http.Request, batch bool, n int) ([]json.RawMessage, error) {
	var raw []byte
	switch r.Method {
	case http.MethodGet:
		raw = []byte(r.URL.Query().Get("input"))
	case http.MethodPost:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, domainerrors.FormValidation("Request body too large")
			}
			return nil, domainerrors.BadRequest("Failed to read request body").WithCause(err)
		}
		raw = body
	}

	inputs := make([]json.RawMessage, n)
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return inputs, nil
	}
	if !batch {
		inputs[0] = raw
		return inputs, nil
	}

	var byIndex map[string]json.RawMessage
	if err := wire.Unmarshal(raw, &byIndex); err != nil {
		return nil, domainerrors.FormValidation("Invalid JSON input").WithCause(err)
	}
	for i := range inputs {
		inputs[i] = byIndex[strconv.Itoa(i)]
	}
	return inputs, nil
}

func (h *Handler) write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := wire.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode rpc response", "error", err)
	}
}
