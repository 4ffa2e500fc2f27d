package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	id "profilevault/pkg/domain"
	"profilevault/pkg/platform/httputil"
	"profilevault/pkg/requestcontext"
)

// HandleIsolationReport handles GET /admin/profiles/{profileID}/isolation-report.
func (h *Handler) HandleIsolationReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profileID := id.ProfileID(chi.URLParam(r, "profileID"))

	report, err := h.segregator.VerifyIsolation(ctx, profileID)
	if err != nil {
		h.logger.ErrorContext(ctx, "isolation verification failed",
			"request_id", requestcontext.RequestID(ctx), "profile_id", profileID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

// HandleIntegrityScore handles GET /admin/profiles/{profileID}/integrity.
func (h *Handler) HandleIntegrityScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profileID := id.ProfileID(chi.URLParam(r, "profileID"))

	score, err := h.isolation.VerifyIntegrity(ctx, profileID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]float64{"integrity_score": score})
}

// HandleLeakageReport handles GET /admin/leakage-report. Global scan, not
// per-profile.
func (h *Handler) HandleLeakageReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.segregator.DetectLeakage(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

// HandleListAlerts handles GET /admin/alerts: high and critical security
// events mirrored to the violation alerts collection.
func (h *Handler) HandleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.alerts.ListAlerts(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, alerts)
}

// HandleCreateBarrier handles POST /admin/barriers: a custom barrier between
// a profile pair, e.g. a deny rule closing the share-read channel between two
// specific profiles.
func (h *Handler) HandleCreateBarrier(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[createBarrierRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	created, err := h.barriers.CreateBarrier(ctx, req.Params())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

// HandleResetBarrier handles POST /admin/barriers/{barrierID}/reset.
func (h *Handler) HandleResetBarrier(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	barrierID := id.BarrierID(chi.URLParam(r, "barrierID"))

	reset, err := h.barriers.Reset(ctx, barrierID)
	if err != nil {
		h.logger.ErrorContext(ctx, "barrier reset failed",
			"request_id", requestcontext.RequestID(ctx), "barrier_id", barrierID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, reset)
}

// HandleListBarriers handles GET /admin/profiles/{profileID}/barriers.
func (h *Handler) HandleListBarriers(w http.ResponseWriter, r *http.Request) {
	profileID := id.ProfileID(chi.URLParam(r, "profileID"))
	barriers, err := h.barrierStore.ForProfile(r.Context(), profileID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, barriers)
}

// HandleListQuarantine handles GET /admin/quarantine.
func (h *Handler) HandleListQuarantine(w http.ResponseWriter, r *http.Request) {
	items, err := h.barriers.ListQuarantine(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

// HandleReleaseQuarantine handles POST /admin/quarantine/{itemID}/release.
// Release is a manual review action; the note is mandatory and audited.
func (h *Handler) HandleReleaseQuarantine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[releaseQuarantineRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	released, err := h.barriers.ReleaseQuarantine(ctx, chi.URLParam(r, "itemID"), req.ReviewNote)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, released)
}
