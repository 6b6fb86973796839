// Package api is the HTTP surface of the credential service: the token
// endpoint, the profile endpoints restored from the account service, and
// the health report.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.scenegrid.dev/internal/auth"
	"go.scenegrid.dev/internal/auth/jwt"
	"go.scenegrid.dev/internal/common/health"
	"go.scenegrid.dev/internal/config"
	"go.scenegrid.dev/internal/evaluator"
	"go.scenegrid.dev/internal/perms"
	"go.scenegrid.dev/internal/persist"
	"go.scenegrid.dev/internal/topics"
)

// IdentityResolver maps identity-provider tokens to local identities.
type IdentityResolver interface {
	FromIDToken(ctx context.Context, idToken string) (auth.Identity, error)
}

// SceneObjectDeleter removes a scene's persisted objects.
type SceneObjectDeleter interface {
	DeleteSceneObjects(ctx context.Context, scene string) error
}

// Handler carries the collaborators every endpoint needs.
type Handler struct {
	cfg      *config.Config
	store    perms.Store
	persist  *persist.Service
	objects  SceneObjectDeleter
	resolver IdentityResolver
	eval     *evaluator.Evaluator
	issuer   *jwt.Issuer
	checker  *health.Checker
}

// New creates the API handler.
func New(
	cfg *config.Config,
	store perms.Store,
	persistSvc *persist.Service,
	objects SceneObjectDeleter,
	resolver IdentityResolver,
	eval *evaluator.Evaluator,
	issuer *jwt.Issuer,
	checker *health.Checker,
) *Handler {
	return &Handler{
		cfg:      cfg,
		store:    store,
		persist:  persistSvc,
		objects:  objects,
		resolver: resolver,
		eval:     eval,
		issuer:   issuer,
		checker:  checker,
	}
}

// Routes builds the router. The unversioned /user tree speaks the v1 topic
// layout, /user/v2 speaks v2, and any other /user/v{n} prefix is answered
// with an upgrade notice before any grammar code runs.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.cfg.HTTP.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	limiter := newRateLimiter(h.cfg.HTTP.RateLimit, h.cfg.HTTP.RateLimitBurst)

	r.Route("/user", func(r chi.Router) {
		h.mountVersion(r, topics.V1, limiter)
		r.Route("/v2", func(r chi.Router) {
			h.mountVersion(r, topics.V2, limiter)
		})
		r.HandleFunc("/{version:v[0-9]+}", h.upgradeRequired)
		r.HandleFunc("/{version:v[0-9]+}/*", h.upgradeRequired)
	})

	r.Get("/health", h.checker.Handler)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (h *Handler) mountVersion(r chi.Router, version topics.Version, limiter *rateLimiter) {
	r.With(limiter.Middleware).Post("/mqtt_auth", h.mqttAuth(version))
	r.With(limiter.Middleware).Post("/device_token", h.deviceToken(version))

	r.Get("/user_state", h.userState)
	r.Post("/user_state", h.userState)
	r.Get("/my_namespaces", h.myNamespaces)
	r.Post("/my_namespaces", h.myNamespaces)
	r.Get("/my_scenes", h.myScenes)
	r.Post("/my_scenes", h.myScenes)

	r.HandleFunc("/scenes/{namespace}/{sceneid}", h.sceneDetail)
}

// upgradeRequired answers requests for topic layout versions this build
// does not speak.
func (h *Handler) upgradeRequired(w http.ResponseWriter, r *http.Request) {
	msg := fmt.Sprintf("User API %s token required.", topics.SupportedVersions[0])
	WriteError(w, http.StatusUpgradeRequired, msg)
}
