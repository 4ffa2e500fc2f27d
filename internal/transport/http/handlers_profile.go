package httptransport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	id "profilevault/pkg/domain"
	dErrors "profilevault/pkg/domain-errors"
	"profilevault/pkg/platform/httputil"
	"profilevault/pkg/requestcontext"
)

type sessionResponse struct {
	Token     string    `json:"token"`
	ProfileID string    `json:"profile_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HandleCreateProfile handles POST /admin/profiles.
func (h *Handler) HandleCreateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[createProfileRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	level, err := req.ParsedLevel()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	created, err := h.profiles.Create(ctx, profileCreateParams(req, level))
	if err != nil {
		h.logger.ErrorContext(ctx, "profile creation failed",
			"request_id", requestID, "profile_id", req.ProfileID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

// HandleListProfiles handles GET /admin/profiles.
func (h *Handler) HandleListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.profiles.List(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profiles)
}

// HandleDeleteProfile handles DELETE /admin/profiles/{profileID}. The body
// must re-type the profile ID as confirmation.
func (h *Handler) HandleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	profileID := id.ProfileID(chi.URLParam(r, "profileID"))

	req, ok := httputil.DecodeAndPrepare[deleteProfileRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := h.profiles.Delete(ctx, profileID, req.Confirmation); err != nil {
		h.logger.ErrorContext(ctx, "profile deletion failed",
			"request_id", requestID, "profile_id", profileID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSwitchProfile handles POST /profiles/{profileID}/switch and issues a
// session token for the profile.
func (h *Handler) HandleSwitchProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profileID := id.ProfileID(chi.URLParam(r, "profileID"))

	switched, err := h.profiles.Switch(ctx, profileID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.writeSession(w, r, switched.ID, switched.SecurityLevel)
}

// HandleUnlockProfile handles POST /profiles/{profileID}/unlock. A correct
// passphrase clears the lock and issues a session token.
func (h *Handler) HandleUnlockProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	profileID := id.ProfileID(chi.URLParam(r, "profileID"))

	req, ok := httputil.DecodeAndPrepare[unlockRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	unlocked, err := h.profiles.Unlock(ctx, profileID, req.Passphrase)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.writeSession(w, r, unlocked.ID, unlocked.SecurityLevel)
}

// HandleLockProfile handles POST /profiles/{profileID}/lock. Only the
// profile's own session may lock it.
func (h *Handler) HandleLockProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profileID := id.ProfileID(chi.URLParam(r, "profileID"))
	if requestcontext.ProfileID(ctx) != profileID {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "session does not own this profile"))
		return
	}

	locked, err := h.profiles.Lock(ctx, profileID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, locked)
}

// HandleRotateKeys handles POST /admin/profiles/{profileID}/rotate-keys.
func (h *Handler) HandleRotateKeys(w http.ResponseWriter, r *http.Request) {
	profileID := id.ProfileID(chi.URLParam(r, "profileID"))
	rotated, err := h.profiles.RotateKeys(r.Context(), profileID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rotated)
}

// HandleExportProfile handles POST /admin/profiles/{profileID}/export.
func (h *Handler) HandleExportProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	profileID := id.ProfileID(chi.URLParam(r, "profileID"))

	req, ok := httputil.DecodeAndPrepare[exportRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	export, err := h.profiles.Export(ctx, profileID, req.Password)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, export)
}

// HandleImportProfile handles POST /admin/profiles/import.
func (h *Handler) HandleImportProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[importRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	imported, err := h.profiles.Import(ctx, req.Bundle, req.Password)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, imported)
}

func (h *Handler) writeSession(w http.ResponseWriter, r *http.Request, profileID id.ProfileID, level id.SecurityLevel) {
	ctx := r.Context()
	token, claims, err := h.sessions.Issue(ctx, profileID, level, h.sessionTTL)
	if err != nil {
		h.logger.ErrorContext(ctx, "session issue failed",
			"request_id", requestcontext.RequestID(ctx), "profile_id", profileID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sessionResponse{
		Token:     token,
		ProfileID: profileID.String(),
		ExpiresAt: claims.ExpiresAt.Time,
	})
}
