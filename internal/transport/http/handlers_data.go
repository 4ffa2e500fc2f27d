package httptransport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"profilevault/internal/barrier"
	"profilevault/internal/isolation"
	id "profilevault/pkg/domain"
	dErrors "profilevault/pkg/domain-errors"
	"profilevault/pkg/platform/httputil"
	"profilevault/pkg/requestcontext"
)

// HandleIsolate handles POST /data/{collection}. The acting profile comes
// from the session; policy and barriers are checked before anything is
// written.
func (h *Handler) HandleIsolate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	profileID := requestcontext.ProfileID(ctx)

	collection, err := id.ParseCollectionName(chi.URLParam(r, "collection"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[isolateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	sensitivity, err := id.ParseSensitivity(req.Sensitivity)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if _, err := h.isolation.EnforceSegregation(ctx, profileID, collection, isolation.OperationWrite); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.isolation.ScreenWrite(ctx, profileID, req.Data); err != nil {
		httputil.WriteError(w, err)
		return
	}

	item, err := h.segregator.Isolate(ctx, profileID, collection, req.Data, sensitivity)
	if err != nil {
		h.logger.ErrorContext(ctx, "isolate failed",
			"request_id", requestID, "profile_id", profileID,
			"collection", collection, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, item)
}

// HandleRetrieve handles GET /data/{collection}/{recordID}.
func (h *Handler) HandleRetrieve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profileID := requestcontext.ProfileID(ctx)

	collection, err := id.ParseCollectionName(chi.URLParam(r, "collection"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	recordID := chi.URLParam(r, "recordID")

	if _, err := h.isolation.EnforceSegregation(ctx, profileID, collection, isolation.OperationRead); err != nil {
		httputil.WriteError(w, err)
		return
	}

	var out json.RawMessage
	if err := h.segregator.Retrieve(ctx, profileID, collection, recordID, &out); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"record_id": recordID,
		"data":      out,
	})
}

// HandleRemove handles DELETE /data/{collection}/{recordID}.
func (h *Handler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profileID := requestcontext.ProfileID(ctx)

	collection, err := id.ParseCollectionName(chi.URLParam(r, "collection"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if _, err := h.isolation.EnforceSegregation(ctx, profileID, collection, isolation.OperationDelete); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.segregator.Remove(ctx, profileID, collection, chi.URLParam(r, "recordID")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGrantShare handles POST /shares.
func (h *Handler) HandleGrantShare(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	owner := requestcontext.ProfileID(ctx)

	req, ok := httputil.DecodeAndPrepare[grantShareRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	recipient, err := id.ParseProfileID(req.Recipient)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	collection, err := id.ParseCollectionName(req.Collection)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	share, err := h.segregator.GrantShare(ctx, owner, recipient, collection, req.RecordID, req.TTL())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	// The share is also a policy object: the recipient gets a scoped read
	// grant on the owner's policy, removed again on revocation.
	if err := h.isolation.GrantResourceAccess(ctx, owner, recipient, share.Resource(),
		[]isolation.Operation{isolation.OperationRead}, nil); err != nil {
		h.logger.ErrorContext(ctx, "share policy grant failed",
			"request_id", requestID, "share_id", share.ID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, share)
}

// HandleRevokeShare handles DELETE /shares/{shareID}.
func (h *Handler) HandleRevokeShare(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := requestcontext.ProfileID(ctx)

	share, err := h.segregator.ShareByID(ctx, chi.URLParam(r, "shareID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.segregator.RevokeShare(ctx, owner, share.ID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.isolation.RevokeResourceAccess(ctx, owner, share.Recipient, share.Resource()); err != nil {
		h.logger.ErrorContext(ctx, "share policy revocation failed",
			"request_id", requestcontext.RequestID(ctx), "share_id", share.ID, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListShares handles GET /shares: shares granted by the acting profile.
func (h *Handler) HandleListShares(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shares, err := h.segregator.ListShares(ctx, requestcontext.ProfileID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, shares)
}

// HandleRetrieveShared handles GET /shares/{shareID}/data: a recipient reads
// a record shared with them. The read crosses the profile boundary, so it
// runs the full gauntlet: barriers first, then the owner's policy, then the
// share itself inside the segregator.
func (h *Handler) HandleRetrieveShared(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recipient := requestcontext.ProfileID(ctx)
	if recipient.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "session required"))
		return
	}

	share, err := h.segregator.ShareByID(ctx, chi.URLParam(r, "shareID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	request := barrier.AccessRequest{
		Source:    recipient,
		Target:    share.Owner,
		Operation: barrier.OperationSharedRead,
		Resource:  share.Resource(),
	}
	decision, err := h.barriers.EnforceBarriers(ctx, request)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !decision.Allowed {
		assessment := h.barriers.DetectUnauthorizedAccess(ctx, request)
		if assessment.Detected {
			if _, qErr := h.barriers.Quarantine(ctx, request,
				append(decision.Evidence, assessment.Factors...), assessment.Score); qErr != nil {
				h.logger.ErrorContext(ctx, "quarantine failed",
					"request_id", requestcontext.RequestID(ctx), "share_id", share.ID, "error", qErr)
			}
		}
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "blocked by security barrier"))
		return
	}

	if !h.isolation.ValidateAccess(ctx, recipient, share.Owner, isolation.OperationRead, share.Resource()) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeCrossProfileAccess,
			"access policy does not permit reading this resource"))
		return
	}

	var out json.RawMessage
	if err := h.segregator.RetrieveShared(ctx, recipient, share.ID, &out); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"data": out})
}
