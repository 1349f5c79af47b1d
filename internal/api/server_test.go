package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillpress/quill-server/internal/auth"
	"github.com/quillpress/quill-server/internal/domain"
	domainerrors "github.com/quillpress/quill-server/internal/errors"
	"github.com/quillpress/quill-server/internal/ratelimit"
	"github.com/quillpress/quill-server/internal/rpc"
	"github.com/quillpress/quill-server/internal/search"
	"github.com/quillpress/quill-server/internal/service"
	"github.com/quillpress/quill-server/internal/store/sqlite"
	"github.com/quillpress/quill-server/internal/store/sqlstore"
)

type testServer struct {
	*Server
	store  *sqlstore.Store
	signer auth.Signer
}

// envelope is one procedure response as seen by a client.
type envelope struct {
	Result *struct {
		Data json.RawMessage `json:"data"`
	} `json:"result"`
	Error *rpc.ErrorShape `json:"error"`
}

func setupTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	st, err := sqlite.Open(filepath.Join(t.TempDir(), "quill.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	index, err := search.NewSearchIndex(search.Options{Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	signer, err := auth.NewJWTSigner([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	require.NoError(t, err)
	hasher, err := auth.NewHasher(auth.HasherBcrypt, 4)
	require.NoError(t, err)

	services := &Services{
		Posts:      service.NewPostService(st, nil, index, logger),
		Categories: service.NewCategoryService(st, logger),
		Users:      service.NewUserService(st, logger),
		Auth:       service.NewAuthService(st, hasher, signer, true, logger),
	}
	opts.Search = index

	return &testServer{
		Server: NewServer(st, services, signer, opts, logger),
		store:  st,
		signer: signer,
	}
}

func (ts *testServer) call(t *testing.T, method, procedure string, input any, token string) (int, envelope) {
	t.Helper()

	target := RPCPrefix + "/" + procedure
	var body *bytes.Reader
	raw := []byte{}
	if input != nil {
		var err error
		raw, err = json.Marshal(input)
		require.NoError(t, err)
	}
	if method == http.MethodGet {
		if input != nil {
			target += "?input=" + url.QueryEscape(string(raw))
		}
		body = bytes.NewReader(nil)
	} else {
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func (ts *testServer) query(t *testing.T, procedure string, input any, token string) (int, envelope) {
	t.Helper()
	return ts.call(t, http.MethodGet, procedure, input, token)
}

func (ts *testServer) mutate(t *testing.T, procedure string, input any, token string) (int, envelope) {
	t.Helper()
	return ts.call(t, http.MethodPost, procedure, input, token)
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	require.Nil(t, env.Error, "unexpected error: %+v", env.Error)
	require.NotNil(t, env.Result)
	var out T
	require.NoError(t, json.Unmarshal(env.Result.Data, &out))
	return out
}

// signup registers an author through the API and returns the user and token.
func (ts *testServer) signup(t *testing.T, name, email string) (*domain.User, string) {
	t.Helper()
	status, env := ts.mutate(t, "auth.signup", map[string]string{
		"name": name, "email": email, "password": "secret1",
	}, "")
	require.Equal(t, http.StatusOK, status)
	res := decodeData[service.AuthResult](t, env)
	return res.User, res.Token
}

// admin inserts an administrator and signs a token for it.
func (ts *testServer) admin(t *testing.T) string {
	t.Helper()
	u, err := ts.store.CreateUser(context.Background(), &domain.NewUser{
		Name:     "Site Admin",
		Email:    "admin@blog.local",
		Role:     domain.RoleAdmin,
		IsActive: true,
	})
	require.NoError(t, err)
	token, err := ts.signer.Sign(auth.IdentityFor(u))
	require.NoError(t, err)
	return token
}

func (ts *testServer) category(t *testing.T, adminToken, name string) *domain.Category {
	t.Helper()
	status, env := ts.mutate(t, "categories.create", map[string]string{"name": name}, adminToken)
	require.Equal(t, http.StatusOK, status)
	return decodeData[*domain.Category](t, env)
}

func postPayload(title string, categoryIDs ...int64) map[string]any {
	return map[string]any{
		"title":       title,
		"content":     "Long enough body for a post.",
		"excerpt":     "Short excerpt",
		"categoryIds": categoryIDs,
	}
}

func TestServer_RegistersAllProcedures(t *testing.T) {
	ts := setupTestServer(t, Options{})

	assert.ElementsMatch(t, []string{
		"auth.login", "auth.signup",
		"categories.create", "categories.delete", "categories.getById", "categories.getBySlug",
		"categories.list", "categories.update",
		"posts.assignCategories", "posts.create", "posts.delete", "posts.filterByCategory",
		"posts.getById", "posts.getBySlug", "posts.list", "posts.listByAuthor", "posts.search",
		"posts.update",
		"users.createOrGetAuthor", "users.delete", "users.getByEmail", "users.getById",
		"users.list", "users.me", "users.update",
	}, ts.Procedures())
}

func TestScenario_SignupThenDuplicate(t *testing.T) {
	ts := setupTestServer(t, Options{})

	user, token := ts.signup(t, "Ann", "ann@x.com")
	assert.Positive(t, user.ID)
	assert.Equal(t, "Ann", user.Name)
	assert.NotEmpty(t, token)

	status, env := ts.mutate(t, "auth.signup", map[string]string{
		"name": "Ann Again", "email": "ann@x.com", "password": "secret1",
	}, "")
	assert.Equal(t, http.StatusConflict, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, domainerrors.TypeConflict, env.Error.Data.Type)
	assert.Equal(t, "Email already registered", env.Error.Message)
	assert.Equal(t, -32009, env.Error.Code)
}

func TestScenario_CategorySlugsStayUnique(t *testing.T) {
	ts := setupTestServer(t, Options{})
	admin := ts.admin(t)

	first := ts.category(t, admin, "Travel")
	second := ts.category(t, admin, "Travel")

	assert.Equal(t, "travel", first.Slug)
	assert.Equal(t, "travel-1", second.Slug)
}

func TestScenario_TitleTooShort(t *testing.T) {
	ts := setupTestServer(t, Options{})
	admin := ts.admin(t)
	_, token := ts.signup(t, "Ann", "ann@x.com")
	c := ts.category(t, admin, "Travel")

	status, env := ts.mutate(t, "posts.create", postPayload("Hi", c.ID), token)
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, domainerrors.TypeValidation, env.Error.Data.Type)
	require.NotEmpty(t, env.Error.Data.ValidationErrors)
	assert.Equal(t, "title", env.Error.Data.ValidationErrors[0].Field)

	status, env = ts.mutate(t, "posts.create", postPayload("Hii", c.ID), token)
	require.Equal(t, http.StatusOK, status)
	post := decodeData[*domain.Post](t, env)
	assert.Equal(t, "hii", post.Slug)
}

func TestScenario_UpdateReplacesCategories(t *testing.T) {
	ts := setupTestServer(t, Options{})
	admin := ts.admin(t)
	_, token := ts.signup(t, "Ann", "ann@x.com")
	c1 := ts.category(t, admin, "One")
	c2 := ts.category(t, admin, "Two")
	c3 := ts.category(t, admin, "Three")

	_, env := ts.mutate(t, "posts.create", postPayload("A journey", c1.ID, c2.ID), token)
	post := decodeData[*domain.Post](t, env)

	status, _ := ts.mutate(t, "posts.update", map[string]any{
		"id":          post.ID,
		"categoryIds": []int64{c3.ID},
	}, token)
	require.Equal(t, http.StatusOK, status)

	// Numeric strings are accepted for ids.
	_, env = ts.query(t, "posts.getById", strconv.FormatInt(post.ID, 10), "")
	got := decodeData[*domain.Post](t, env)
	require.Len(t, got.Categories, 1)
	assert.Equal(t, c3.ID, got.Categories[0].ID)
	assert.Equal(t, "a-journey", got.Slug)
}

func TestScenario_GetBySlugNotFound(t *testing.T) {
	ts := setupTestServer(t, Options{})

	status, env := ts.query(t, "posts.getBySlug", map[string]string{"slug": "missing"}, "")
	assert.Equal(t, http.StatusNotFound, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, domainerrors.TypeNotFound, env.Error.Data.Type)
	assert.Equal(t, "Post not found", env.Error.Message)
	assert.Equal(t, "posts.getBySlug", env.Error.Data.Path)
}

func TestScenario_OwnershipGuardedDelete(t *testing.T) {
	ts := setupTestServer(t, Options{})
	admin := ts.admin(t)
	owner, ownerToken := ts.signup(t, "Ann", "ann@x.com")
	_, otherToken := ts.signup(t, "Bob", "bob@x.com")
	c := ts.category(t, admin, "Travel")

	_, env := ts.mutate(t, "posts.create", postPayload("Owned post", c.ID), ownerToken)
	post := decodeData[*domain.Post](t, env)
	require.NotNil(t, post.AuthorID)
	assert.Equal(t, owner.ID, *post.AuthorID)

	status, env := ts.mutate(t, "posts.delete", post.ID, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, domainerrors.TypeUnauthorized, env.Error.Data.Type)

	status, env = ts.mutate(t, "posts.delete", post.ID, otherToken)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, domainerrors.TypeForbidden, env.Error.Data.Type)
	assert.EqualValues(t, owner.ID, env.Error.Data.Details["ownerId"])

	status, env = ts.mutate(t, "posts.delete", post.ID, ownerToken)
	require.Equal(t, http.StatusOK, status)
	deleted := decodeData[service.Deleted](t, env)
	assert.Equal(t, post.ID, deleted.ID)

	status, _ = ts.mutate(t, "posts.delete", post.ID, ownerToken)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestProcedures_AdminOverridesOwnership(t *testing.T) {
	ts := setupTestServer(t, Options{})
	admin := ts.admin(t)
	_, ownerToken := ts.signup(t, "Ann", "ann@x.com")
	c := ts.category(t, admin, "Travel")

	_, env := ts.mutate(t, "posts.create", postPayload("Moderated", c.ID), ownerToken)
	post := decodeData[*domain.Post](t, env)

	status, env := ts.mutate(t, "posts.update", map[string]any{"id": post.ID, "published": true}, admin)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, decodeData[*domain.Post](t, env).Published)
}

func TestProcedures_CategoryManagementNeedsGrants(t *testing.T) {
	ts := setupTestServer(t, Options{})
	admin := ts.admin(t)
	_, author := ts.signup(t, "Ann", "ann@x.com")
	c := ts.category(t, admin, "Travel")

	status, env := ts.mutate(t, "categories.create", map[string]string{"name": "Food"}, author)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, domain.PermCategoriesManage, env.Error.Data.Details["requiredPermission"])

	status, env = ts.mutate(t, "categories.delete", c.ID, author)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, string(domain.RoleAdmin), env.Error.Data.Details["requiredRole"])

	status, _ = ts.mutate(t, "categories.delete", c.ID, admin)
	assert.Equal(t, http.StatusOK, status)
}

func TestProcedures_UsersMeAndSelfUpdate(t *testing.T) {
	ts := setupTestServer(t, Options{})
	ann, annToken := ts.signup(t, "Ann", "ann@x.com")
	bob, _ := ts.signup(t, "Bob", "bob@x.com")

	status, env := ts.query(t, "users.me", nil, annToken)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, ann.ID, decodeData[*domain.User](t, env).ID)

	status, env = ts.mutate(t, "users.update", map[string]any{"id": ann.ID, "bio": "Writer"}, annToken)
	require.Equal(t, http.StatusOK, status)
	me := decodeData[*domain.User](t, env)
	require.NotNil(t, me.Bio)
	assert.Equal(t, "Writer", *me.Bio)

	status, _ = ts.mutate(t, "users.update", map[string]any{"id": bob.ID, "bio": "Hacked"}, annToken)
	assert.Equal(t, http.StatusForbidden, status)

	status, env = ts.query(t, "users.me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "You must be logged in to perform this action", env.Error.Message)
}

func TestProcedures_LoginRoundTrip(t *testing.T) {
	ts := setupTestServer(t, Options{})
	ts.signup(t, "Ann", "ann@x.com")

	status, env := ts.mutate(t, "auth.login", map[string]string{"email": "ANN@x.com", "password": "secret1"}, "")
	require.Equal(t, http.StatusOK, status)
	res := decodeData[service.AuthResult](t, env)
	assert.True(t, res.Success)

	status, env = ts.query(t, "users.me", nil, res.Token)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ann@x.com", decodeData[*domain.User](t, env).Email)

	status, env = ts.mutate(t, "auth.login", map[string]string{"email": "ann@x.com", "password": "wrong!"}, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid email or password", env.Error.Message)
}

func TestProcedures_LoginThrottle(t *testing.T) {
	ts := setupTestServer(t, Options{LoginLimiter: ratelimit.New(0.001, 2)})

	creds := map[string]string{"email": "nobody@x.com", "password": "whatever"}
	for range 2 {
		status, _ := ts.mutate(t, "auth.login", creds, "")
		assert.Equal(t, http.StatusUnauthorized, status)
	}

	status, env := ts.mutate(t, "auth.login", creds, "")
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, domainerrors.TypeTooManyRequests, env.Error.Data.Type)
}

func TestProcedures_RateLimitBudget(t *testing.T) {
	ts := setupTestServer(t, Options{Limiter: ratelimit.NewMemoryLimiter(2, time.Minute)})

	for range 2 {
		status, _ := ts.query(t, "categories.list", nil, "")
		assert.Equal(t, http.StatusOK, status)
	}

	status, env := ts.query(t, "categories.list", nil, "")
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "Rate limit exceeded", env.Error.Message)
	assert.EqualValues(t, 2, env.Error.Data.Details["maxRequests"])
}

func TestProcedures_RateLimitKeyIgnoresForwardingHeaders(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		wantThird  int
	}{
		{"direct clients cannot rotate their key", false, http.StatusTooManyRequests},
		{"trusted proxy supplies the client ip", true, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := setupTestServer(t, Options{
				Limiter:    ratelimit.NewMemoryLimiter(2, time.Minute),
				TrustProxy: tt.trustProxy,
			})

			codes := make([]int, 0, 3)
			for _, forwarded := range []string{"203.0.113.1", "203.0.113.2", "203.0.113.3"} {
				req := httptest.NewRequest(http.MethodGet, RPCPrefix+"/categories.list", nil)
				req.Header.Set("X-Forwarded-For", forwarded)
				rec := httptest.NewRecorder()
				ts.ServeHTTP(rec, req)
				codes = append(codes, rec.Code)
			}

			assert.Equal(t, []int{http.StatusOK, http.StatusOK, tt.wantThird}, codes)
		})
	}
}

func TestProcedures_SearchFindsCreatedPost(t *testing.T) {
	ts := setupTestServer(t, Options{})
	admin := ts.admin(t)
	_, token := ts.signup(t, "Ann", "ann@x.com")
	c := ts.category(t, admin, "Travel")

	payload := postPayload("Lisbon by tram", c.ID)
	payload["content"] = "Riding the yellow trams through Alfama."
	_, env := ts.mutate(t, "posts.create", payload, token)
	created := decodeData[*domain.Post](t, env)

	status, env := ts.query(t, "posts.search", map[string]any{"query": "trams"}, "")
	require.Equal(t, http.StatusOK, status)
	found := decodeData[[]*domain.Post](t, env)
	require.Len(t, found, 1)
	assert.Equal(t, created.ID, found[0].ID)
}

func TestProcedures_BatchMixedStatuses(t *testing.T) {
	ts := setupTestServer(t, Options{})

	input := url.QueryEscape(`{"0":null,"1":{"slug":"missing"}}`)
	req := httptest.NewRequest(http.MethodGet, RPCPrefix+"/categories.list,posts.getBySlug?batch=1&input="+input, nil)
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMultiStatus, rec.Code)
	var envs []envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envs))
	require.Len(t, envs, 2)
	assert.NotNil(t, envs[0].Result)
	require.NotNil(t, envs[1].Error)
	assert.Equal(t, "Post not found", envs[1].Error.Message)
}

func TestHealth(t *testing.T) {
	ts := setupTestServer(t, Options{})
	api := humatest.Wrap(t, ts.api)

	resp := api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, statusHealthy, body.Components["database"].Status)
	assert.Equal(t, statusHealthy, body.Components["search"].Status)
	assert.Equal(t, statusDegraded, body.Components["uploads"].Status)
	assert.Equal(t, statusDegraded, body.Status)
}

func TestUploads_RequireAuthentication(t *testing.T) {
	ts := setupTestServer(t, Options{})
	api := humatest.Wrap(t, ts.api)

	resp := api.Post("/api/v1/uploads", map[string]any{"kind": "avatar", "contentType": "image/png", "size": 1024})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	var body APIError
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, domainerrors.TypeUnauthorized, body.Type)
}

func TestUploads_NotConfigured(t *testing.T) {
	ts := setupTestServer(t, Options{})
	_, token := ts.signup(t, "Ann", "ann@x.com")
	api := humatest.Wrap(t, ts.api)

	resp := api.Post("/api/v1/uploads", "Authorization: Bearer "+token,
		map[string]any{"kind": "avatar", "contentType": "image/png", "size": 1024})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}

func TestNewAPIError(t *testing.T) {
	err := newAPIError(http.StatusNotFound, "missing", domainerrors.NotFound("Post not found"))
	assert.Equal(t, http.StatusNotFound, err.GetStatus())
	assert.Equal(t, "Post not found", err.Error())

	err = newAPIError(http.StatusInternalServerError, "db exploded")
	assert.Equal(t, "Internal server error", err.Error())

	err = newAPIError(http.StatusTooManyRequests, "slow down")
	assert.Equal(t, domainerrors.TypeTooManyRequests, err.(*APIError).Type)

	assert.Equal(t, "contentType", fieldName("body.contentType"))
	assert.Equal(t, domainerrors.FormField, fieldName("body"))
}
