package profile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"profilevault/internal/barrier"
	"profilevault/internal/cryptoprov"
	"profilevault/internal/isolation"
	"profilevault/internal/keys"
	"profilevault/internal/recordstore"
	id "profilevault/pkg/domain"
	dErrors "profilevault/pkg/domain-errors"
	audit "profilevault/pkg/platform/audit"
	auditmem "profilevault/pkg/platform/audit/store/memory"
	"profilevault/pkg/requestcontext"
)

func requestTimeContext(at time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), at)
}

type fixture struct {
	service    *Service
	records    *recordstore.InMemory
	isolation  *isolation.Manager
	barriers   *barrier.Manager
	auditStore *auditmem.InMemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	records := recordstore.NewInMemory()
	provider := cryptoprov.New()
	keySvc := keys.NewService(provider)
	auditStore := auditmem.NewInMemoryStore()
	publisher := audit.NewPublisher(auditStore)
	isolationMgr := isolation.NewManager(records, provider, isolation.WithAudit(publisher))
	barrierMgr := barrier.NewManager(barrier.NewStore(records), records, barrier.WithAudit(publisher))
	service := NewService(NewStore(records), records, keySvc, provider, isolationMgr, barrierMgr,
		WithAudit(publisher))
	return &fixture{
		service:    service,
		records:    records,
		isolation:  isolationMgr,
		barriers:   barrierMgr,
		auditStore: auditStore,
	}
}

func createProfile(t *testing.T, f *fixture, profileID string, level id.SecurityLevel) *Profile {
	t.Helper()
	profile, err := f.service.Create(context.Background(), CreateParams{
		ProfileID:     profileID,
		Username:      profileID + "-user",
		SecurityLevel: level,
		Passphrase:    "correct horse battery staple",
	})
	require.NoError(t, err)
	return profile
}

func hasEvent(events []audit.Event, action audit.Action) bool {
	for _, event := range events {
		if event.Action == action {
			return true
		}
	}
	return false
}

func TestCreate_InitializesPolicyAndBarriers(t *testing.T) {
	f := newFixture(t)
	profile := createProfile(t, f, "alice", id.SensitivityConfidential)

	assert.Equal(t, 2, profile.Encryption.Layers)
	assert.True(t, profile.Encryption.Required)
	assert.Equal(t, 1, profile.Version)
	assert.Len(t, profile.Collections, len(DefaultCollections))
	assert.Equal(t, "alice_transactions", profile.Collections["transactions"])

	_, ok := f.isolation.PolicyFor(id.ProfileID("alice"))
	assert.True(t, ok)

	decision, err := f.barriers.EnforceBarriers(context.Background(), barrier.AccessRequest{
		Source: id.ProfileID("mallory"), Target: id.ProfileID("alice"), Operation: "read",
	})
	require.NoError(t, err)
	assert.False(t, decision.Allowed, "default access-control barrier guards the new profile")

	events, err := f.auditStore.ListByProfile(context.Background(), id.ProfileID("alice"))
	require.NoError(t, err)
	assert.True(t, hasEvent(events, audit.ActionProfileCreated))
}

func TestCreate_RejectsDuplicateAndBadInput(t *testing.T) {
	f := newFixture(t)
	createProfile(t, f, "alice", id.SensitivityInternal)

	_, err := f.service.Create(context.Background(), CreateParams{
		ProfileID: "alice", Username: "again", SecurityLevel: id.SensitivityInternal,
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

	_, err = f.service.Create(context.Background(), CreateParams{
		ProfileID: "bad_slug", Username: "u", SecurityLevel: id.SensitivityInternal,
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = f.service.Create(context.Background(), CreateParams{
		ProfileID: "carol", Username: "", SecurityLevel: id.SensitivityInternal,
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestSwitch_UpdatesLastAccessed(t *testing.T) {
	f := newFixture(t)
	created := createProfile(t, f, "alice", id.SensitivityInternal)

	later := created.LastAccessed.Add(time.Hour)
	ctx := requestTimeContext(later)
	switched, err := f.service.Switch(ctx, id.ProfileID("alice"))
	require.NoError(t, err)
	assert.Equal(t, later, switched.LastAccessed)
	assert.Equal(t, created.Version, switched.Version, "switch is not a configuration mutation")
}

func TestSwitch_UnknownProfile(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Switch(context.Background(), id.ProfileID("ghost"))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestLockUnlock_Lifecycle(t *testing.T) {
	f := newFixture(t)
	createProfile(t, f, "alice", id.SensitivityInternal)
	ctx := context.Background()

	locked, err := f.service.Lock(ctx, id.ProfileID("alice"))
	require.NoError(t, err)
	assert.True(t, locked.Locked)

	_, err = f.service.Switch(ctx, id.ProfileID("alice"))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = f.service.Lock(ctx, id.ProfileID("alice"))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation), "double lock")

	_, err = f.service.Unlock(ctx, id.ProfileID("alice"), "wrong passphrase")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	events, err := f.auditStore.ListByProfile(ctx, id.ProfileID("alice"))
	require.NoError(t, err)
	assert.True(t, hasEvent(events, audit.ActionUnlockFailed))

	unlocked, err := f.service.Unlock(ctx, id.ProfileID("alice"), "correct horse battery staple")
	require.NoError(t, err)
	assert.False(t, unlocked.Locked)

	_, err = f.service.Switch(ctx, id.ProfileID("alice"))
	require.NoError(t, err)
}

func TestRotateKeys_StampsSchedule(t *testing.T) {
	f := newFixture(t)
	created := createProfile(t, f, "alice", id.SensitivitySecret)
	assert.Equal(t, 30*24*time.Hour, created.KeyRotation.Every)

	later := created.KeyRotation.LastRotated.Add(45 * 24 * time.Hour)
	assert.True(t, created.KeyRotation.Overdue(later))

	rotated, err := f.service.RotateKeys(requestTimeContext(later), id.ProfileID("alice"))
	require.NoError(t, err)
	assert.Equal(t, later, rotated.KeyRotation.LastRotated)
	assert.False(t, rotated.KeyRotation.Overdue(later))
	assert.Equal(t, created.Version+1, rotated.Version)

	events, err := f.auditStore.ListByProfile(context.Background(), id.ProfileID("alice"))
	require.NoError(t, err)
	assert.True(t, hasEvent(events, audit.ActionKeysRotated))
}

func TestRotateKeys_LockedProfileRefused(t *testing.T) {
	f := newFixture(t)
	createProfile(t, f, "alice", id.SensitivityInternal)
	_, err := f.service.Lock(context.Background(), id.ProfileID("alice"))
	require.NoError(t, err)

	_, err = f.service.RotateKeys(context.Background(), id.ProfileID("alice"))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestDelete_RequiresRetypedConfirmation(t *testing.T) {
	f := newFixture(t)
	createProfile(t, f, "alice", id.SensitivityInternal)

	err := f.service.Delete(context.Background(), id.ProfileID("alice"), "alicia")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = f.service.Get(context.Background(), id.ProfileID("alice"))
	require.NoError(t, err, "profile survives a failed confirmation")
}

func TestDelete_DropsCollectionsAndSnapshotsBackup(t *testing.T) {
	f := newFixture(t)
	createProfile(t, f, "alice", id.SensitivityInternal)
	ctx := context.Background()

	require.NoError(t, f.records.Set(ctx, "alice_transactions", "tx-1", []byte(`{"amount":100}`)))
	require.NoError(t, f.records.Set(ctx, "alice_settings", "theme", []byte(`{"dark":true}`)))

	require.NoError(t, f.service.Delete(ctx, id.ProfileID("alice"), "alice"))

	_, err := f.service.Get(ctx, id.ProfileID("alice"))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	collections, err := f.records.Collections(ctx, "alice_")
	require.NoError(t, err)
	assert.Empty(t, collections)

	backups, err := f.records.Query(ctx, recordstore.CollectionProfileBackups, nil)
	require.NoError(t, err)
	require.Len(t, backups, 1)

	_, ok := f.isolation.PolicyFor(id.ProfileID("alice"))
	assert.False(t, ok)

	events, err := f.auditStore.ListByProfile(ctx, id.ProfileID("alice"))
	require.NoError(t, err)
	assert.True(t, hasEvent(events, audit.ActionProfileDeleted))
}

func TestNewProfile_LevelDerivations(t *testing.T) {
	now := time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		level     id.SecurityLevel
		layers    int
		required  bool
		retention int
		every     time.Duration
	}{
		{id.SensitivityPublic, 1, false, 3 * 365, 90 * 24 * time.Hour},
		{id.SensitivityInternal, 1, false, 3 * 365, 90 * 24 * time.Hour},
		{id.SensitivityConfidential, 2, true, 3 * 365, 90 * 24 * time.Hour},
		{id.SensitivitySecret, 3, true, 7 * 365, 30 * 24 * time.Hour},
		{id.SensitivityTopSecret, 4, true, 7 * 365, 30 * 24 * time.Hour},
	}
	for _, tc := range cases {
		t.Run(tc.level.String(), func(t *testing.T) {
			profile, err := NewProfile(id.ProfileID("alice"), "alice", tc.level, now)
			require.NoError(t, err)
			assert.Equal(t, tc.layers, profile.Encryption.Layers)
			assert.Equal(t, tc.required, profile.Encryption.Required)
			assert.Equal(t, tc.retention, profile.Audit.Retention)
			assert.Equal(t, tc.every, profile.KeyRotation.Every)
		})
	}
}
