package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"profilevault/internal/barrier"
	"profilevault/internal/cryptoprov"
	"profilevault/internal/encryption"
	"profilevault/internal/isolation"
	"profilevault/internal/keys"
	"profilevault/internal/profile"
	"profilevault/internal/recordstore"
	"profilevault/internal/segregation"
	"profilevault/internal/sessiontoken"
	id "profilevault/pkg/domain"
	"profilevault/pkg/requestcontext"
	"profilevault/pkg/testutil"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	records := recordstore.NewInMemory()
	provider := cryptoprov.New()
	keySvc := keys.NewService(provider)
	encryptor := encryption.NewEncryptor(keySvc, provider)
	segregator := segregation.NewSegregator(records, encryptor, provider)
	isolationMgr := isolation.NewManager(records, provider)
	barrierStore := barrier.NewStore(records)
	barrierMgr := barrier.NewManager(barrierStore, records)
	profiles := profile.NewService(profile.NewStore(records), records, keySvc, provider,
		isolationMgr, barrierMgr)
	sessions := sessiontoken.NewService("test-signing-key", "test", "test")

	h := NewHandler(profiles, segregator, isolationMgr, barrierMgr, barrierStore,
		nil, sessions, time.Hour, slog.New(slog.DiscardHandler))

	_, err := profiles.Create(context.Background(), profile.CreateParams{
		ProfileID:     "alice",
		Username:      "alice",
		SecurityLevel: id.SensitivityConfidential,
	})
	require.NoError(t, err)
	return h
}

func withURLParams(req *http.Request, pairs ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i < len(pairs)-1; i += 2 {
		rctx.URLParams.Add(pairs[i], pairs[i+1])
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestHandleLockProfile_Ownership(t *testing.T) {
	h := newTestHandler(t)

	testutil.Given(t, "a session that does not own the profile", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodPost, "/profiles/alice/lock")
		req = withURLParams(req, "profileID", "alice")
		req = testutil.WithSession(req, "bob", "session-1")
		rec := httptest.NewRecorder()

		h.HandleLockProfile(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	testutil.Given(t, "the owning session", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodPost, "/profiles/alice/lock")
		req = withURLParams(req, "profileID", "alice")
		req = testutil.WithSession(req, "alice", "session-2")
		rec := httptest.NewRecorder()

		h.HandleLockProfile(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var locked profile.Profile
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &locked))
		assert.True(t, locked.Locked)
	})
}

func TestHandleIsolate_WritesToSessionNamespace(t *testing.T) {
	h := newTestHandler(t)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/data/transactions", map[string]any{
		"data":        map[string]int{"amount": 9},
		"sensitivity": "confidential",
	})
	req = withURLParams(req, "collection", "transactions")
	req = testutil.WithProfile(req, "alice")
	rec := httptest.NewRecorder()

	h.HandleIsolate(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var item segregation.IsolatedData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	assert.Equal(t, id.ProfileID("alice"), item.ProfileID)
	assert.True(t, item.Isolation.Encrypted)
}

func TestHandleRetrieveShared_QuarantinesHighRiskDeniedRead(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()

	_, err := h.profiles.Create(ctx, profile.CreateParams{
		ProfileID:     "bob",
		Username:      "bob",
		SecurityLevel: id.SensitivityConfidential,
	})
	require.NoError(t, err)

	grant := func(owner, recipient string) string {
		t.Helper()
		item, err := h.segregator.Isolate(ctx, id.ProfileID(owner), "transactions",
			map[string]int{"amount": 1}, id.SensitivityConfidential)
		require.NoError(t, err)
		req := testutil.NewJSONRequest(t, http.MethodPost, "/shares", map[string]any{
			"recipient": recipient, "collection": "transactions", "record_id": item.ID, "ttl_seconds": 3600,
		})
		req = testutil.WithProfile(req, id.ProfileID(owner))
		rec := httptest.NewRecorder()
		h.HandleGrantShare(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var share segregation.Share
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &share))
		return share.ID
	}

	// One successful shared read gives alice a behavioral signature the
	// attacker will mirror exactly.
	bobShare := grant("bob", "alice")
	req := testutil.NewRequest(t, http.MethodGet, "/shares/"+bobShare+"/data")
	req = withURLParams(req, "shareID", bobShare)
	req = testutil.WithProfile(req, "alice")
	rec := httptest.NewRecorder()
	h.HandleRetrieveShared(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	aliceShare := grant("alice", "bob")
	_, err = h.barriers.CreateBarrier(ctx, barrier.CreateBarrierParams{
		Source:   "bob",
		Target:   "alice",
		Type:     barrier.TypeAccessControl,
		Strength: barrier.StrengthHigh,
		Rules:    []barrier.Rule{{Action: barrier.ActionDeny, Operations: []string{barrier.OperationSharedRead}}},
	})
	require.NoError(t, err)

	threeAM := time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)
	req = testutil.NewRequest(t, http.MethodGet, "/shares/"+aliceShare+"/data")
	req = withURLParams(req, "shareID", aliceShare)
	req = testutil.WithProfile(req, "bob")
	req = req.WithContext(requestcontext.WithTime(req.Context(), threeAM))
	rec = httptest.NewRecorder()
	h.HandleRetrieveShared(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	// Off-hours timing (+20) plus a signature identical to the target (+40)
	// crosses the detection threshold, so the denied request is quarantined.
	items, err := h.barriers.ListQuarantine(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, id.ProfileID("bob"), items[0].Request.Source)
	assert.Equal(t, id.ProfileID("alice"), items[0].Request.Target)
	assert.Equal(t, 60, items[0].RiskScore)
}

func TestHandleIsolate_RefusesForeignPayload(t *testing.T) {
	h := newTestHandler(t)

	_, err := h.profiles.Create(context.Background(), profile.CreateParams{
		ProfileID:     "bob",
		Username:      "bob",
		SecurityLevel: id.SensitivityInternal,
	})
	require.NoError(t, err)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/data/transactions", map[string]any{
		"data":        map[string]string{"note": "pulled from alice_transactions"},
		"sensitivity": "internal",
	})
	req = withURLParams(req, "collection", "transactions")
	req = testutil.WithProfile(req, "bob")
	rec := httptest.NewRecorder()

	h.HandleIsolate(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "contamination_detected")
}

func TestHandleRetrieve_UnknownRecordIs404(t *testing.T) {
	h := newTestHandler(t)

	req := testutil.NewRequest(t, http.MethodGet, "/data/transactions/missing")
	req = withURLParams(req, "collection", "transactions", "recordID", "missing")
	req = testutil.WithProfile(req, "alice")
	rec := httptest.NewRecorder()

	h.HandleRetrieve(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
