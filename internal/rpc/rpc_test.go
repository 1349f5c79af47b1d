package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillpress/quill-server/internal/auth"
	"github.com/quillpress/quill-server/internal/domain"
	domainerrors "github.com/quillpress/quill-server/internal/errors"
	"github.com/quillpress/quill-server/internal/ratelimit"
	"github.com/quillpress/quill-server/internal/validation"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

type echoInput struct {
	Name string `json:"name" validate:"min=3"`
}

type ownedInput struct {
	ID validation.ID `json:"id" validate:"gt=0"`
}

type testServer struct {
	handler *Handler
	signer  auth.Signer
}

func newTestServer(t *testing.T, mw ...Middleware) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	signer, err := auth.NewJWTSigner(testKey, time.Hour)
	require.NoError(t, err)

	r := NewRouter(validation.New(), mw...)

	Query(r, "test.echo", func(_ context.Context, in echoInput) (string, error) {
		return "hello " + in.Name, nil
	})
	Query(r, "test.byID", func(_ context.Context, id validation.ID) (int64, error) {
		return id.Int64(), nil
	})
	Query(r, "test.whoami", func(ctx context.Context, _ NoInput) (int64, error) {
		ident, _ := auth.IdentityFrom(ctx)
		return ident.UserID, nil
	}, RequireAuth())
	Mutation(r, "test.write", func(_ context.Context, in echoInput) (map[string]string, error) {
		return map[string]string{"written": in.Name}, nil
	}, RequirePermission(domain.PermPostsCreate))
	Mutation(r, "test.adminOnly", func(_ context.Context, _ NoInput) (bool, error) {
		return true, nil
	}, RequireRole(string(domain.RoleAdmin)))
	Mutation(r, "test.owned", func(_ context.Context, in ownedInput) (int64, error) {
		return in.ID.Int64(), nil
	}, RequireAuth(), RequireOwner(OwnerOf(func(_ context.Context, in *ownedInput) (int64, error) {
		switch in.ID {
		case 1:
			return 10, nil
		case 2:
			return 0, nil
		default:
			return 0, domainerrors.NotFound("Post not found")
		}
	})))
	Query(r, "test.panic", func(_ context.Context, _ NoInput) (string, error) {
		panic("boom")
	})
	Query(r, "test.internal", func(_ context.Context, _ NoInput) (string, error) {
		return "", errors.New("pq: connection refused to 10.0.0.5")
	})

	return &testServer{
		handler: NewHandler(r, NewAuthenticator(signer, logger), logger),
		signer:  signer,
	}
}

func (s *testServer) token(t *testing.T, userID int64, role domain.Role) string {
	t.Helper()
	tok, err := s.signer.Sign(auth.IdentityFor(&domain.User{ID: userID, Email: "u@x.com", Role: role}))
	require.NoError(t, err)
	return tok
}

func (s *testServer) get(t *testing.T, procs, input string, batch bool, token string) *httptest.ResponseRecorder {
	t.Helper()
	q := url.Values{}
	if input != "" {
		q.Set("input", input)
	}
	if batch {
		q.Set("batch", "1")
	}
	req := httptest.NewRequest(http.MethodGet, "/api/trpc/"+procs+"?"+q.Encode(), nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) post(t *testing.T, procs, body string, batch bool, token string) *httptest.ResponseRecorder {
	t.Helper()
	target := "/api/trpc/" + procs
	if batch {
		target += "?batch=1"
	}
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Result *struct {
		Data json.RawMessage `json:"data"`
	} `json:"result"`
	Error *ErrorShape `json:"error"`
}

func decodeOne(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func decodeBatch(t *testing.T, rec *httptest.ResponseRecorder) []envelope {
	t.Helper()
	var envs []envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envs), rec.Body.String())
	return envs
}

func TestHandler_QueryOverGet(t *testing.T) {
	s := newTestServer(t)

	rec := s.get(t, "test.echo", `{"name":"quill"}`, false, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	env := decodeOne(t, rec)
	require.NotNil(t, env.Result)
	assert.JSONEq(t, `"hello quill"`, string(env.Result.Data))
}

func TestHandler_BareIDInput(t *testing.T) {
	s := newTestServer(t)

	env := decodeOne(t, s.get(t, "test.byID", `"42"`, false, ""))
	require.NotNil(t, env.Result)
	assert.JSONEq(t, `42`, string(env.Result.Data))

	rec := s.get(t, "test.byID", `"abc"`, false, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env = decodeOne(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, domainerrors.TypeValidation, env.Error.Data.Type)
	require.Len(t, env.Error.Data.ValidationErrors, 1)
	assert.Equal(t, "_form", env.Error.Data.ValidationErrors[0].Field)
}

func TestHandler_MethodMismatch(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, 1, domain.RoleAuthor)

	rec := s.get(t, "test.write", `{"name":"abc"}`, false, tok)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	env := decodeOne(t, rec)
	assert.Equal(t, domainerrors.TypeMethodNotSupported, env.Error.Data.Type)
	assert.Equal(t, -32005, env.Error.Code)

	rec = s.post(t, "test.echo", `{"name":"abc"}`, false, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandler_UnknownProcedure(t *testing.T) {
	s := newTestServer(t)

	rec := s.get(t, "test.missing", "", false, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	env := decodeOne(t, rec)
	assert.Equal(t, domainerrors.TypeNotFound, env.Error.Data.Type)
	assert.Equal(t, "test.missing", env.Error.Data.Path)
}

func TestHandler_InvalidJSON(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, 1, domain.RoleAuthor)

	rec := s.post(t, "test.write", `{"name":`, false, tok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeOne(t, rec)
	assert.Equal(t, domainerrors.TypeValidation, env.Error.Data.Type)
	assert.Equal(t, "_form", env.Error.Data.ValidationErrors[0].Field)
	assert.Equal(t, -32600, env.Error.Code)
}

func TestHandler_ValidationRunsBeforeAuth(t *testing.T) {
	s := newTestServer(t)

	rec := s.post(t, "test.write", `{"name":"ab"}`, false, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeOne(t, rec)
	assert.Equal(t, "name", env.Error.Data.ValidationErrors[0].Field)

	rec = s.post(t, "test.write", `{"name":"abc"}`, false, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	env = decodeOne(t, rec)
	assert.Equal(t, "You must be logged in to perform this action", env.Error.Message)
}

func TestHandler_Batch(t *testing.T) {
	s := newTestServer(t)

	rec := s.get(t, "test.echo,test.echo", `{"0":{"name":"one"},"1":{"name":"two"}}`, true, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	envs := decodeBatch(t, rec)
	require.Len(t, envs, 2)
	assert.JSONEq(t, `"hello one"`, string(envs[0].Result.Data))
	assert.JSONEq(t, `"hello two"`, string(envs[1].Result.Data))

	rec = s.get(t, "test.echo,test.missing,test.panic", `{"0":{"name":"one"}}`, true, "")
	assert.Equal(t, http.StatusMultiStatus, rec.Code)
	envs = decodeBatch(t, rec)
	require.Len(t, envs, 3)
	assert.NotNil(t, envs[0].Result)
	assert.Equal(t, domainerrors.TypeNotFound, envs[1].Error.Data.Type)
	assert.Equal(t, domainerrors.TypeInternal, envs[2].Error.Data.Type)

	rec = s.post(t, "test.write,test.write", `not json`, true, s.token(t, 1, domain.RoleAuthor))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, decodeBatch(t, rec), 2)
}

func TestHandler_PanicAndInternalErrorsAreMasked(t *testing.T) {
	s := newTestServer(t)

	rec := s.get(t, "test.panic", "", false, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decodeOne(t, rec)
	assert.Equal(t, "Internal server error", env.Error.Message)
	assert.Equal(t, -32603, env.Error.Code)

	rec = s.get(t, "test.internal", "", false, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
}

func TestGuards_Permission(t *testing.T) {
	s := newTestServer(t)

	rec := s.post(t, "test.write", `{"name":"abc"}`, false, s.token(t, 1, domain.RoleAuthor))
	assert.Equal(t, http.StatusOK, rec.Code)

	r := NewRouter(nil)
	Mutation(r, "test.manage", func(_ context.Context, _ NoInput) (bool, error) { return true, nil },
		RequirePermission(domain.PermCategoriesManage))
	h := NewHandler(r, NewAuthenticator(s.signer, slog.New(slog.NewTextHandler(io.Discard, nil))), slog.New(slog.NewTextHandler(io.Discard, nil)))

	req := httptest.NewRequest(http.MethodPost, "/api/trpc/test.manage", nil)
	req.Header.Set("Authorization", "bearer "+s.token(t, 1, domain.RoleAuthor))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	env := decodeOne(t, w)
	assert.Equal(t, domain.PermCategoriesManage, env.Error.Data.Details["requiredPermission"])
	assert.Len(t, env.Error.Data.Details["userPermissions"], 3)
}

func TestGuards_Role(t *testing.T) {
	s := newTestServer(t)

	rec := s.post(t, "test.adminOnly", "", false, s.token(t, 1, domain.RoleAuthor))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	env := decodeOne(t, rec)
	assert.Equal(t, "admin", env.Error.Data.Details["requiredRole"])
	assert.Equal(t, []any{"author"}, env.Error.Data.Details["userRoles"])

	rec = s.post(t, "test.adminOnly", "", false, s.token(t, 2, domain.RoleAdmin))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGuards_Owner(t *testing.T) {
	s := newTestServer(t)
	owner := s.token(t, 10, domain.RoleAuthor)
	stranger := s.token(t, 11, domain.RoleAuthor)
	admin := s.token(t, 99, domain.RoleAdmin)

	assert.Equal(t, http.StatusOK, s.post(t, "test.owned", `{"id":1}`, false, owner).Code)

	rec := s.post(t, "test.owned", `{"id":1}`, false, stranger)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	env := decodeOne(t, rec)
	assert.EqualValues(t, 10, env.Error.Data.Details["ownerId"])
	assert.EqualValues(t, 11, env.Error.Data.Details["requesterId"])

	rec = s.post(t, "test.owned", `{"id":2}`, false, owner)
	assert.Equal(t, http.StatusForbidden, rec.Code, "unowned resources are admin only")

	rec = s.post(t, "test.owned", `{"id":3}`, false, owner)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Post not found", decodeOne(t, rec).Error.Message)

	assert.Equal(t, http.StatusOK, s.post(t, "test.owned", `{"id":1}`, false, admin).Code)
	assert.Equal(t, http.StatusOK, s.post(t, "test.owned", `{"id":3}`, false, admin).Code, "admins skip the lookup")

	rec = s.post(t, "test.owned", `{"id":1}`, false, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticator(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, 7, domain.RoleAuthor)

	req := httptest.NewRequest(http.MethodGet, "/api/trpc/test.whoami", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: tok})
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `7`, string(decodeOne(t, rec).Result.Data))

	rec = s.get(t, "test.whoami", "", false, "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "rejected tokens fall back to anonymous")

	expired, err := auth.NewJWTSigner(testKey, -time.Minute)
	require.NoError(t, err)
	old, err := expired.Sign(auth.IdentityFor(&domain.User{ID: 7, Role: domain.RoleAuthor}))
	require.NoError(t, err)
	rec = s.get(t, "test.whoami", "", false, old)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(2, time.Minute)
	s := newTestServer(t, RateLimit(limiter, slog.New(slog.NewTextHandler(io.Discard, nil))))

	for range 2 {
		assert.Equal(t, http.StatusOK, s.get(t, "test.echo", `{"name":"abc"}`, false, "").Code)
	}

	rec := s.get(t, "test.echo", `{"name":"abc"}`, false, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	env := decodeOne(t, rec)
	assert.Equal(t, domainerrors.TypeTooManyRequests, env.Error.Data.Type)
	assert.EqualValues(t, 3, env.Error.Data.Details["currentRequests"])
	assert.EqualValues(t, 2, env.Error.Data.Details["maxRequests"])
	assert.Contains(t, env.Error.Data.Details, "retryAfterSeconds")
	assert.Contains(t, env.Error.Data.Details, "limitResetAt")

	rec = s.get(t, "test.echo", `{"name":"abc"}`, false, s.token(t, 5, domain.RoleAuthor))
	assert.Equal(t, http.StatusOK, rec.Code, "authenticated callers are keyed by user id")
}

type failingLimiter struct{}

func (failingLimiter) Hit(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("redis down")
}

func TestRateLimit_FailsOpen(t *testing.T) {
	s := newTestServer(t, RateLimit(failingLimiter{}, slog.New(slog.NewTextHandler(io.Discard, nil))))
	assert.Equal(t, http.StatusOK, s.get(t, "test.echo", `{"name":"abc"}`, false, "").Code)
}

func TestThrottle(t *testing.T) {
	r := NewRouter(nil)
	Mutation(r, "auth.login", func(_ context.Context, _ NoInput) (bool, error) { return true, nil },
		Throttle(ratelimit.New(0.001, 2)))
	h := NewHandler(r, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	call := func(remoteIP, forwardedFor string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/trpc/auth.login", nil)
		req.RemoteAddr = remoteIP + ":40000"
		req.Header.Set("X-Forwarded-For", forwardedFor)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("1.1.1.1", "10.0.0.1"))
	assert.Equal(t, http.StatusOK, call("1.1.1.1", "10.0.0.2"))
	assert.Equal(t, http.StatusTooManyRequests, call("1.1.1.1", "10.0.0.3"), "a rotated forwarding header is the same client")
	assert.Equal(t, http.StatusOK, call("2.2.2.2", "10.0.0.1"))
}

func TestRouter_DuplicatePanics(t *testing.T) {
	r := NewRouter(nil)
	Query(r, "a.b", func(_ context.Context, _ NoInput) (int, error) { return 1, nil })
	assert.Panics(t, func() {
		Query(r, "a.b", func(_ context.Context, _ NoInput) (int, error) { return 1, nil })
	})
	assert.Equal(t, []string{"a.b"}, r.Paths())
}
