// Package httptransport is the HTTP surface over the vault: an admin plane
// guarded by a shared token and a data plane guarded by profile session
// tokens. Handlers stay thin; every decision belongs to the domain services.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"profilevault/internal/barrier"
	"profilevault/internal/isolation"
	"profilevault/internal/platform/middleware"
	"profilevault/internal/profile"
	"profilevault/internal/segregation"
	"profilevault/internal/sessiontoken"
	auditrecord "profilevault/pkg/platform/audit/store/record"
	"profilevault/pkg/platform/middleware/requesttime"
)

// Handler wires the HTTP endpoints to the domain services.
type Handler struct {
	profiles     *profile.Service
	segregator   *segregation.Segregator
	isolation    *isolation.Manager
	barriers     *barrier.Manager
	barrierStore *barrier.Store
	alerts       *auditrecord.Store
	sessions     *sessiontoken.Service
	sessionTTL   time.Duration
	logger       *slog.Logger
}

// Config carries the transport-level settings.
type Config struct {
	AdminToken string
	SessionTTL time.Duration
}

func NewHandler(
	profiles *profile.Service,
	segregator *segregation.Segregator,
	isolationMgr *isolation.Manager,
	barriers *barrier.Manager,
	barrierStore *barrier.Store,
	alerts *auditrecord.Store,
	sessions *sessiontoken.Service,
	sessionTTL time.Duration,
	logger *slog.Logger,
) *Handler {
	if sessionTTL <= 0 {
		sessionTTL = time.Hour
	}
	return &Handler{
		profiles:     profiles,
		segregator:   segregator,
		isolation:    isolationMgr,
		barriers:     barriers,
		barrierStore: barrierStore,
		alerts:       alerts,
		sessions:     sessions,
		sessionTTL:   sessionTTL,
		logger:       logger,
	}
}

// NewRouter mounts every endpoint with its middleware chain.
func NewRouter(h *Handler, cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Metadata)
	r.Use(middleware.Recovery(h.logger))
	r.Use(middleware.Logger(h.logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Session bootstrap: switching to or unlocking a profile issues the
	// token the data plane requires.
	r.Post("/profiles/{profileID}/switch", h.HandleSwitchProfile)
	r.Post("/profiles/{profileID}/unlock", h.HandleUnlockProfile)

	// Data plane: everything here acts as the session's profile.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(h.sessions, h.logger))
		r.Post("/profiles/{profileID}/lock", h.HandleLockProfile)
		r.Post("/data/{collection}", h.HandleIsolate)
		r.Get("/data/{collection}/{recordID}", h.HandleRetrieve)
		r.Delete("/data/{collection}/{recordID}", h.HandleRemove)
		r.Post("/shares", h.HandleGrantShare)
		r.Get("/shares", h.HandleListShares)
		r.Delete("/shares/{shareID}", h.HandleRevokeShare)
		r.Get("/shares/{shareID}/data", h.HandleRetrieveShared)
	})

	// Admin plane.
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.AdminToken(cfg.AdminToken))
		r.Post("/profiles", h.HandleCreateProfile)
		r.Get("/profiles", h.HandleListProfiles)
		r.Delete("/profiles/{profileID}", h.HandleDeleteProfile)
		r.Post("/profiles/{profileID}/rotate-keys", h.HandleRotateKeys)
		r.Post("/profiles/{profileID}/export", h.HandleExportProfile)
		r.Post("/profiles/import", h.HandleImportProfile)
		r.Get("/profiles/{profileID}/isolation-report", h.HandleIsolationReport)
		r.Get("/profiles/{profileID}/integrity", h.HandleIntegrityScore)
		r.Get("/profiles/{profileID}/barriers", h.HandleListBarriers)
		r.Get("/leakage-report", h.HandleLeakageReport)
		r.Get("/alerts", h.HandleListAlerts)
		r.Post("/barriers", h.HandleCreateBarrier)
		r.Post("/barriers/{barrierID}/reset", h.HandleResetBarrier)
		r.Get("/quarantine", h.HandleListQuarantine)
		r.Post("/quarantine/{itemID}/release", h.HandleReleaseQuarantine)
	})

	return r
}
