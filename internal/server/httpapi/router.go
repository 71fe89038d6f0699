package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the collaborators of the HTTP API.
type Deps struct {
	Auth         *services.AuthService
	Sessions     *services.SessionRegistry
	Issuer       *auth.TokenIssuer
	Store        Pinger
	Metrics      *metrics.Metrics
	Logger       logging.Logger
	CookieSecure bool
	RefreshTTL   time.Duration
}

type handlers struct {
	auth     *services.AuthService
	sessions *services.SessionRegistry
	store    Pinger
	cookies  cookieJar
	log      logging.Logger
}

// NewRouter wires the routes and middleware of the API.
func NewRouter(d Deps) http.Handler {
	log := d.Logger
	if log == nil {
		log = logging.Nop{}
	}
	log = log.With("module", "httpapi")

	h := &handlers{
		auth:     d.Auth,
		sessions: d.Sessions,
		store:    d.Store,
		cookies:  cookieJar{secure: d.CookieSecure, maxAge: d.RefreshTTL},
		log:      log,
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(recoverer(log))
	r.Use(accessLog(log))
	r.Use(countRequests(d.Metrics))

	r.Get("/healthz", h.healthz)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Post("/refresh", h.refresh)
		r.Post("/logout", h.logout)
		r.Post("/forgot-password", h.forgotPassword)
		r.Post("/reset-password", h.resetPassword)

		r.Group(func(r chi.Router) {
			r.Use(bearerAuth(d.Issuer))
			r.Post("/logout-all", h.logoutAll)
			r.Get("/sessions", h.listSessions)
			r.Post("/sessions/{id}/revoke", h.revokeSession)
		})
	})

	return r
}
