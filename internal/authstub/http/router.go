package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/scamwatch/portal/internal/authstub/service"
	"github.com/scamwatch/portal/pkg/httpx"
	"github.com/scamwatch/portal/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	AuthService     *service.AuthService
	TokenService    *service.TokenService
	PasswordService *service.PasswordService
	ActivityService *service.ActivityService
}

func NewRouter(buildVersion string, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerPassword()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{
		AuthService:     r.AuthService,
		TokenService:    r.TokenService,
		ActivityService: r.ActivityService,
	}

	// Credential endpoints are limited by IP + submitted email so one noisy
	// client can't lock every developer out of the stub. The lenient profile
	// leaves room for the portal client's lockout tests, which need six
	// rapid attempts; the in-store lockout policy is the real gate.
	r.Mux.Handle("POST /auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIPAndJSONField(httpx.LenientLimit, "email"),
		),
	)
	r.Mux.Handle("POST /auth/signup",
		httpx.Chain(http.HandlerFunc(h.HandleSignup),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	// Session upkeep endpoints fire every minute per client
	r.Mux.Handle("POST /auth/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("POST /auth/validate",
		httpx.Chain(http.HandlerFunc(h.HandleValidate),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("POST /auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	r.Mux.Handle("GET /auth/profile",
		httpx.Chain(r.requireSession(http.HandlerFunc(h.HandleProfile)),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("POST /auth/activity",
		httpx.Chain(r.requireSession(http.HandlerFunc(h.HandleActivity)),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerPassword() {
	h := &PasswordHandler{PasswordService: r.PasswordService, ActivityService: r.ActivityService}

	r.Mux.Handle("POST /auth/reset-password",
		httpx.Chain(http.HandlerFunc(h.HandleRequestReset),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /auth/reset-password/confirm",
		httpx.Chain(http.HandlerFunc(h.HandleConfirmReset),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /auth/change-password",
		httpx.Chain(r.requireSession(http.HandlerFunc(h.HandleChange)),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
}

// requireSession verifies the access cookie and attaches the user ID to the
// request context. Missing or expired cookies get a 401 so the portal client
// knows to refresh and retry.
func (r *Router) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		cookie, err := req.Cookie(accessCookieName)
		if err != nil {
			httpx.WriteMessage(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		userID, err := r.TokenService.VerifyAccess(cookie.Value)
		if err != nil {
			httpx.WriteMessage(w, http.StatusUnauthorized, "Session expired")
			return
		}

		next.ServeHTTP(w, req.WithContext(httpx.WithUserID(req.Context(), userID)))
	})
}
