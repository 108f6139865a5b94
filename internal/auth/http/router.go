package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/halcyonlabs/adminauth/internal/auth/cache"
	"github.com/halcyonlabs/adminauth/internal/auth/service"
	"github.com/halcyonlabs/adminauth/internal/auth/store"
	"github.com/halcyonlabs/adminauth/pkg/httpx"
	"github.com/halcyonlabs/adminauth/pkg/jwtx"
	"github.com/halcyonlabs/adminauth/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	signer       *jwtx.Signer
	verifier     *jwtx.Verifier
	issuer       string
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store store.Store
	cache *cache.Cache

	SecureCookies bool

	TokenService      *service.TokenService
	UserService       *service.UserService
	RoleService       *service.RoleService
	PermissionService *service.PermissionService
	OAuth2Service     *service.OAuth2Service
}

func NewRouter(
	signer *jwtx.Signer,
	verifier *jwtx.Verifier,
	issuer, buildVersion string,
	st store.Store,
	c *cache.Cache,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		signer:       signer,
		verifier:     verifier,
		issuer:       issuer,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		cache:        c,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) gate() *Gate {
	return &Gate{
		Verifier:  r.verifier,
		Blacklist: cache.NewBlacklist(r.cache),
		Users:     r.UserService,
		Roles:     r.RoleService,
	}
}

func (r *Router) ApplyRoutes() {
	gate := r.gate()

	r.registerAuth(gate)
	r.registerOAuth2(gate)
	r.registerUsers(gate)
	r.registerRoles(gate)
	r.registerPermissions(gate)
	r.registerWellKnown()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth(gate *Gate) {
	h := &AuthHandler{
		Users:         r.UserService,
		Tokens:        r.TokenService,
		Roles:         r.RoleService,
		SecureCookies: r.SecureCookies,
		RefreshTTL:    r.TokenService.RefreshTTL,
	}

	// Credential endpoints take strict limits keyed off the IP plus the
	// submitted identity to slow down distributed guessing.
	r.Mux.Handle("POST /api/v1/auth/signup",
		httpx.Chain(http.HandlerFunc(h.HandleSignup),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /api/v1/auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIPAndFormField(httpx.StrictLimit, "identifier"),
		),
	)

	// Refresh is unauthenticated by design (access token may be expired)
	// but still rate limited per IP.
	r.Mux.Handle("POST /api/v1/auth/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	r.Mux.Handle("POST /api/v1/auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			gate.Protect(),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("GET /api/v1/auth/me",
		httpx.Chain(http.HandlerFunc(h.HandleMe),
			gate.Protect(),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("PATCH /api/v1/auth/password",
		httpx.Chain(http.HandlerFunc(h.HandleUpdatePassword),
			gate.Protect(),
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)

	// Password reset and account setup are anonymous token flows.
	r.Mux.Handle("POST /api/v1/auth/forgot-password",
		httpx.Chain(http.HandlerFunc(h.HandleForgotPassword),
			httpx.RateLimitByIPAndFormField(httpx.StrictLimit, "email"),
		),
	)
	r.Mux.Handle("POST /api/v1/auth/reset-password",
		httpx.Chain(http.HandlerFunc(h.HandleResetPassword),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /api/v1/auth/setup",
		httpx.Chain(http.HandlerFunc(h.HandleSetup),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerOAuth2(gate *Gate) {
	authorizeHandler := &AuthorizeHandler{OAuth2: r.OAuth2Service}

	// GET /authorize - lenient rate limit (mostly just displays forms)
	r.Mux.Handle("GET /api/v1/oauth2/authorize",
		httpx.Chain(http.HandlerFunc(authorizeHandler.HandleGet),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	// POST /authorize - strict rate limit (authentication attempts)
	// Note: Rate limited by IP + identifier form field to prevent brute force
	r.Mux.Handle("POST /api/v1/oauth2/authorize",
		httpx.Chain(http.HandlerFunc(authorizeHandler.HandlePost),
			httpx.RateLimitByIPAndFormField(httpx.StrictLimit, "identifier"),
		),
	)

	// POST /token - strict rate limit by IP (covers all grant types)
	tokenHandler := &TokenHandler{OAuth2: r.OAuth2Service}
	r.Mux.Handle("POST /api/v1/oauth2/token",
		httpx.Chain(tokenHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /revoke - moderate rate limit
	revokeHandler := &RevokeHandler{OAuth2: r.OAuth2Service}
	r.Mux.Handle("POST /api/v1/oauth2/revoke",
		httpx.Chain(revokeHandler,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// GET /userinfo - requires a live access token
	userinfoHandler := &UserinfoHandler{OAuth2: r.OAuth2Service}
	r.Mux.Handle("GET /api/v1/oauth2/userinfo",
		httpx.Chain(userinfoHandler,
			gate.Protect(),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerUsers(gate *Gate) {
	h := &UsersHandler{Users: r.UserService}

	admin := func(fn http.HandlerFunc, profile httpx.RateLimitConfig) http.Handler {
		return httpx.Chain(fn,
			gate.Protect(),
			RestrictTo(service.RoleAdmin),
			httpx.RateLimitByUser(profile),
		)
	}

	r.Mux.Handle("GET /api/v1/users", admin(h.HandleList, httpx.LenientLimit))
	r.Mux.Handle("GET /api/v1/users/{id}", admin(h.HandleGet, httpx.LenientLimit))
	r.Mux.Handle("POST /api/v1/users", admin(h.HandleCreate, httpx.ModerateLimit))
	r.Mux.Handle("PATCH /api/v1/users/{id}", admin(h.HandleUpdate, httpx.ModerateLimit))
	r.Mux.Handle("DELETE /api/v1/users/{id}", admin(h.HandleDelete, httpx.ModerateLimit))
	r.Mux.Handle("POST /api/v1/users/{id}/setup-token", admin(h.HandleRegenerateSetup, httpx.ModerateLimit))
}

func (r *Router) registerRoles(gate *Gate) {
	h := &RolesHandler{Roles: r.RoleService}

	admin := func(fn http.HandlerFunc, profile httpx.RateLimitConfig) http.Handler {
		return httpx.Chain(fn,
			gate.Protect(),
			RestrictTo(service.RoleAdmin),
			httpx.RateLimitByUser(profile),
		)
	}

	r.Mux.Handle("GET /api/v1/roles", admin(h.HandleList, httpx.LenientLimit))
	r.Mux.Handle("GET /api/v1/roles/{id}", admin(h.HandleGet, httpx.LenientLimit))
	r.Mux.Handle("POST /api/v1/roles", admin(h.HandleCreate, httpx.ModerateLimit))
	r.Mux.Handle("PATCH /api/v1/roles/{id}", admin(h.HandleUpdate, httpx.ModerateLimit))
	r.Mux.Handle("DELETE /api/v1/roles/{id}", admin(h.HandleDelete, httpx.ModerateLimit))
	r.Mux.Handle("PUT /api/v1/roles/{id}/permissions/{permissionId}", admin(h.HandleAddPermission, httpx.ModerateLimit))
	r.Mux.Handle("DELETE /api/v1/roles/{id}/permissions/{permissionId}", admin(h.HandleRemovePermission, httpx.ModerateLimit))
}

func (r *Router) registerPermissions(gate *Gate) {
	h := &PermissionsHandler{Permissions: r.PermissionService}

	admin := func(fn http.HandlerFunc, profile httpx.RateLimitConfig) http.Handler {
		return httpx.Chain(fn,
			gate.Protect(),
			RestrictTo(service.RoleAdmin),
			httpx.RateLimitByUser(profile),
		)
	}

	r.Mux.Handle("GET /api/v1/permissions", admin(h.HandleList, httpx.LenientLimit))
	r.Mux.Handle("GET /api/v1/permissions/{id}", admin(h.HandleGet, httpx.LenientLimit))
	r.Mux.Handle("POST /api/v1/permissions", admin(h.HandleCreate, httpx.ModerateLimit))
	r.Mux.Handle("PATCH /api/v1/permissions/{id}", admin(h.HandleUpdate, httpx.ModerateLimit))
	r.Mux.Handle("DELETE /api/v1/permissions/{id}", admin(h.HandleDelete, httpx.ModerateLimit))
}

func (r *Router) registerWellKnown() {
	// Discovery metadata and keys are public endpoints with high limits.
	r.Mux.Handle("GET /.well-known/openid-configuration",
		httpx.Chain(DiscoveryHandler(r.issuer),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.signer),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.cache, r.signer),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
