// Package api provides the HTTP server for Quill: the typed procedure endpoint
// used by the web client plus a small REST surface for health checks and uploads.
package api

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/samber/lo"

	"github.com/quillpress/quill-server/internal/auth"
	"github.com/quillpress/quill-server/internal/ratelimit"
	"github.com/quillpress/quill-server/internal/rpc"
	"github.com/quillpress/quill-server/internal/search"
	"github.com/quillpress/quill-server/internal/storage"
	"github.com/quillpress/quill-server/internal/store"
	"github.com/quillpress/quill-server/internal/validation"
)

// RPCPrefix is where the procedure endpoint is mounted.
const RPCPrefix = "/api/trpc"

// Options holds the optional parts of the server. Nil fields disable the feature.
type Options struct {
	CORSOrigins []string
	// TrustProxy rewrites the remote address from X-Forwarded-For and X-Real-IP.
	// Leave it off unless a proxy in front of the server sets those headers,
	// otherwise clients can pick their own rate-limit key.
	TrustProxy bool

	// Limiter enforces the per-caller call budget on every procedure.
	Limiter ratelimit.Limiter
	// LoginLimiter throttles auth.login and auth.signup per client IP.
	LoginLimiter *ratelimit.KeyedRateLimiter

	Uploads *storage.Presigner
	Search  *search.SearchIndex
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	store      store.Store
	services   *Services
	authn      *rpc.Authenticator
	procedures *rpc.Router
	router     *chi.Mux
	api        huma.API
	opts       Options
	logger     *slog.Logger
}

// NewServer creates a new HTTP server with all routes and procedures configured.
func NewServer(st store.Store, services *Services, signer auth.Signer, opts Options, logger *slog.Logger) *Server {
	router := chi.NewRouter()

	s := &Server{
		store:    st,
		services: services,
		authn:    rpc.NewAuthenticator(signer, logger),
		router:   router,
		opts:     opts,
		logger:   logger,
	}

	s.setupMiddleware()

	humaConfig := huma.DefaultConfig("Quill API", "1.0.0")
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
		},
	}
	s.api = humachi.New(router, humaConfig)
	RegisterErrorHandler()

	s.registerHealthRoutes()
	s.registerUploadRoutes()

	s.procedures = rpc.NewRouter(validation.New(), s.procedureMiddleware()...)
	s.registerPostProcedures()
	s.registerCategoryProcedures()
	s.registerUserProcedures()
	s.registerAuthProcedures()

	router.Handle(RPCPrefix+"/*", rpc.NewHandler(s.procedures, s.authn, logger))

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Procedures returns the registered procedure paths.
func (s *Server) Procedures() []string {
	return s.procedures.Paths()
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	if s.opts.TrustProxy {
		s.router.Use(middleware.RealIP)
	}
	s.router.Use(middleware.Recoverer)

	origins := s.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: !lo.Contains(origins, "*"),
		MaxAge:           300,
	}))
}

// procedureMiddleware returns the chain every procedure runs through before validation.
func (s *Server) procedureMiddleware() []rpc.Middleware {
	mw := []rpc.Middleware{rpc.Logging(s.logger)}
	if s.opts.Limiter != nil {
		mw = append(mw, rpc.RateLimit(s.opts.Limiter, s.logger))
	}
	return mw
}

// loginGuards throttles credential procedures when a login limiter is configured.
func (s *Server) loginGuards() []rpc.Middleware {
	if s.opts.LoginLimiter == nil {
		return nil
	}
	return []rpc.Middleware{rpc.Throttle(s.opts.LoginLimiter)}
}
