package isolation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"profilevault/internal/cryptoprov"
	"profilevault/internal/encryption"
	"profilevault/internal/keys"
	"profilevault/internal/recordstore"
	"profilevault/internal/segregation"
	id "profilevault/pkg/domain"
	dErrors "profilevault/pkg/domain-errors"
	"profilevault/pkg/requestcontext"
)

var defaultCollections = []id.CollectionName{"transactions", "research", "settings"}

type managerFixture struct {
	manager    *Manager
	segregator *segregation.Segregator
	records    *recordstore.InMemory
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	provider := cryptoprov.New()
	records := recordstore.NewInMemory()
	encryptor := encryption.NewEncryptor(keys.NewService(provider), provider)
	return &managerFixture{
		manager:    NewManager(records, provider),
		segregator: segregation.NewSegregator(records, encryptor, provider),
		records:    records,
	}
}

func TestValidateAccess_SelfAlwaysAllowed(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	// No policy registered at all: self-access still passes.
	assert.True(t, f.manager.ValidateAccess(ctx, id.ProfileID("alice"), id.ProfileID("alice"), OperationRead, "transactions"))
}

func TestValidateAccess_CrossProfileDeniedByDefault(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	f.manager.EnsureProfile(ctx, id.ProfileID("bob"), id.SensitivityInternal, defaultCollections)
	assert.False(t, f.manager.ValidateAccess(ctx, id.ProfileID("alice"), id.ProfileID("bob"), OperationRead, "transactions"))
}

func TestValidateAccess_OverrideWithConditions(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	bob := id.ProfileID("bob")

	f.manager.EnsureProfile(ctx, bob, id.SensitivityInternal, defaultCollections)
	require.NoError(t, f.manager.AllowCrossProfileAccess(ctx, bob, []AccessControl{{
		Resource:    "research",
		Permissions: []Operation{OperationRead},
		Conditions:  []Condition{{Kind: ConditionMFAVerified}},
	}}))

	// Condition not met: still denied.
	assert.False(t, f.manager.ValidateAccess(ctx, id.ProfileID("alice"), bob, OperationRead, "research"))

	mfaCtx := requestcontext.WithMFAVerified(ctx, true)
	assert.True(t, f.manager.ValidateAccess(mfaCtx, id.ProfileID("alice"), bob, OperationRead, "research"))

	// Permission covers read only.
	assert.False(t, f.manager.ValidateAccess(mfaCtx, id.ProfileID("alice"), bob, OperationWrite, "research"))
	// Resource mismatch.
	assert.False(t, f.manager.ValidateAccess(mfaCtx, id.ProfileID("alice"), bob, OperationRead, "transactions"))
}

func TestGrantResourceAccess_ScopedGrantAdmitsOnlyGrantee(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	alice := id.ProfileID("alice")
	bob := id.ProfileID("bob")

	f.manager.EnsureProfile(ctx, alice, id.SensitivityInternal, defaultCollections)
	require.NoError(t, f.manager.GrantResourceAccess(ctx, alice, bob,
		"transactions/rec-1", []Operation{OperationRead}, nil))

	// The scoped grant works without the profile-wide override.
	policy, ok := f.manager.PolicyFor(alice)
	require.True(t, ok)
	assert.False(t, policy.AllowCrossProfileAccess)
	assert.True(t, f.manager.ValidateAccess(ctx, bob, alice, OperationRead, "transactions/rec-1"))

	// Wrong grantee, wrong operation, wrong resource: all denied.
	assert.False(t, f.manager.ValidateAccess(ctx, id.ProfileID("carol"), alice, OperationRead, "transactions/rec-1"))
	assert.False(t, f.manager.ValidateAccess(ctx, bob, alice, OperationWrite, "transactions/rec-1"))
	assert.False(t, f.manager.ValidateAccess(ctx, bob, alice, OperationRead, "transactions/rec-2"))
}

func TestRevokeResourceAccess_RemovesTheGrant(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	alice := id.ProfileID("alice")
	bob := id.ProfileID("bob")

	f.manager.EnsureProfile(ctx, alice, id.SensitivityInternal, defaultCollections)
	require.NoError(t, f.manager.GrantResourceAccess(ctx, alice, bob,
		"research/rec-9", []Operation{OperationRead}, nil))
	require.True(t, f.manager.ValidateAccess(ctx, bob, alice, OperationRead, "research/rec-9"))

	require.NoError(t, f.manager.RevokeResourceAccess(ctx, alice, bob, "research/rec-9"))
	assert.False(t, f.manager.ValidateAccess(ctx, bob, alice, OperationRead, "research/rec-9"))

	// Revoking again is a no-op.
	require.NoError(t, f.manager.RevokeResourceAccess(ctx, alice, bob, "research/rec-9"))
}

func TestGrantResourceAccess_RequiresPolicy(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	err := f.manager.GrantResourceAccess(ctx, id.ProfileID("ghost"), id.ProfileID("bob"),
		"transactions/rec-1", []Operation{OperationRead}, nil)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestScreenWrite_RefusesForeignTraces(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	alice := id.ProfileID("alice")
	bob := id.ProfileID("bob")

	f.manager.EnsureProfile(ctx, alice, id.SensitivityInternal, defaultCollections)
	f.manager.EnsureProfile(ctx, bob, id.SensitivityInternal, defaultCollections)

	err := f.manager.ScreenWrite(ctx, bob, map[string]string{"note": "pulled from alice_transactions"})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeContamination))

	// A profile's own markings are not contamination.
	assert.NoError(t, f.manager.ScreenWrite(ctx, bob, map[string]string{"note": "bob_transactions backfill"}))
	assert.NoError(t, f.manager.ScreenWrite(ctx, bob, map[string]int{"amount": 100}))
}

func TestCondition_Evaluate(t *testing.T) {
	base := context.Background()
	at := func(hour int) context.Context {
		return requestcontext.WithTime(base, time.Date(2025, 5, 1, hour, 30, 0, 0, time.UTC))
	}

	tests := []struct {
		name      string
		condition Condition
		ctx       context.Context
		want      bool
	}{
		{"time window inside", Condition{Kind: ConditionTimeWindow, StartHour: 9, EndHour: 17}, at(12), true},
		{"time window outside", Condition{Kind: ConditionTimeWindow, StartHour: 9, EndHour: 17}, at(20), false},
		{"time window wraps midnight", Condition{Kind: ConditionTimeWindow, StartHour: 22, EndHour: 6}, at(3), true},
		{"time window wraps midnight miss", Condition{Kind: ConditionTimeWindow, StartHour: 22, EndHour: 6}, at(12), false},
		{"ip whitelisted", Condition{Kind: ConditionIPWhitelist, AllowedIPs: []string{"10.0.0.1"}}, requestcontext.WithClientMetadata(base, "10.0.0.1", ""), true},
		{"ip not whitelisted", Condition{Kind: ConditionIPWhitelist, AllowedIPs: []string{"10.0.0.1"}}, requestcontext.WithClientMetadata(base, "10.0.0.2", ""), false},
		{"ip missing", Condition{Kind: ConditionIPWhitelist, AllowedIPs: []string{"10.0.0.1"}}, base, false},
		{"device trusted", Condition{Kind: ConditionDeviceTrust}, requestcontext.WithDeviceTrusted(base, true), true},
		{"device untrusted", Condition{Kind: ConditionDeviceTrust}, base, false},
		{"mfa verified", Condition{Kind: ConditionMFAVerified}, requestcontext.WithMFAVerified(base, true), true},
		{"mfa missing", Condition{Kind: ConditionMFAVerified}, base, false},
		{"unknown kind", Condition{Kind: ConditionKind("biometric")}, base, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.condition.Evaluate(tc.ctx))
		})
	}
}

func TestEnforceSegregation_MapsToNamespacedCollection(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	alice := id.ProfileID("alice")

	f.manager.EnsureProfile(ctx, alice, id.SensitivityInternal, defaultCollections)

	namespaced, err := f.manager.EnforceSegregation(ctx, alice, id.CollectionName("transactions"), OperationRead)
	require.NoError(t, err)
	assert.Equal(t, "alice_transactions", namespaced)
}

func TestEnforceSegregation_RejectsUnlistedCollection(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	alice := id.ProfileID("alice")

	f.manager.EnsureProfile(ctx, alice, id.SensitivityInternal, defaultCollections)

	_, err := f.manager.EnforceSegregation(ctx, alice, id.CollectionName("blocks"), OperationWrite)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodePolicyDenied))
}

func TestEnforceSegregation_HighLevelWriteRequiresMFA(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	alice := id.ProfileID("alice")

	f.manager.EnsureProfile(ctx, alice, id.SensitivitySecret, defaultCollections)

	_, err := f.manager.EnforceSegregation(ctx, alice, id.CollectionName("transactions"), OperationWrite)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodePolicyDenied))

	mfaCtx := requestcontext.WithMFAVerified(ctx, true)
	_, err = f.manager.EnforceSegregation(mfaCtx, alice, id.CollectionName("transactions"), OperationWrite)
	require.NoError(t, err)

	// Reads stay unrestricted.
	_, err = f.manager.EnforceSegregation(ctx, alice, id.CollectionName("transactions"), OperationRead)
	require.NoError(t, err)
}

type taggedPayload struct {
	Owner id.ProfileID `json:"owner"`
	Note  string       `json:"note"`
}

func (p taggedPayload) OwnerProfile() id.ProfileID { return p.Owner }

func TestPreventContamination_StructuralOwnerTag(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	err := f.manager.PreventContamination(ctx, id.ProfileID("alice"), id.ProfileID("bob"),
		taggedPayload{Owner: id.ProfileID("alice"), Note: "ledger"})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeContamination))
}

func TestPreventContamination_SubstringHeuristic(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	err := f.manager.PreventContamination(ctx, id.ProfileID("alice"), id.ProfileID("bob"),
		map[string]string{"note": "copied from alice_transactions"})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeContamination))
}

func TestPreventContamination_CleanPayloadPasses(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	err := f.manager.PreventContamination(ctx, id.ProfileID("alice"), id.ProfileID("bob"),
		map[string]int{"amount": 100})
	assert.NoError(t, err)
}

func TestPreventContamination_SelfMoveAllowed(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	err := f.manager.PreventContamination(ctx, id.ProfileID("alice"), id.ProfileID("alice"),
		taggedPayload{Owner: id.ProfileID("alice")})
	assert.NoError(t, err)
}

func TestVerifyIntegrity_CleanProfileScoresFull(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	alice := id.ProfileID("alice")

	f.manager.EnsureProfile(ctx, alice, id.SensitivityConfidential, defaultCollections)
	_, err := f.segregator.Isolate(ctx, alice, id.CollectionName("transactions"),
		map[string]int{"amount": 100}, id.SensitivityConfidential)
	require.NoError(t, err)

	score, err := f.manager.VerifyIntegrity(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 100.0, score)

	boundary, ok := f.manager.BoundaryFor(alice)
	require.True(t, ok)
	assert.Equal(t, 100.0, boundary.IsolationScore)
	assert.False(t, boundary.VerifiedAt.IsZero())
	assert.Equal(t, 1, boundary.Collections["alice_transactions"].Items)
	assert.Equal(t, 1, boundary.Collections["alice_transactions"].Encrypted)
}

func TestVerifyIntegrity_EncryptionComplianceFailsOnPlaintext(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	alice := id.ProfileID("alice")

	f.manager.EnsureProfile(ctx, alice, id.SensitivityConfidential, defaultCollections)
	_, err := f.segregator.Isolate(ctx, alice, id.CollectionName("settings"),
		map[string]string{"theme": "dark"}, id.SensitivityInternal)
	require.NoError(t, err)

	// One collection check passes, the policy check passes, the encryption
	// compliance check fails: 2 of 3.
	score, err := f.manager.VerifyIntegrity(ctx, alice)
	require.NoError(t, err)
	assert.InDelta(t, 100.0*2.0/3.0, score, 0.01)
}

func TestBoundary_AccessLogCapsAtHundred(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()
	alice := id.ProfileID("alice")

	f.manager.EnsureProfile(ctx, alice, id.SensitivityInternal, defaultCollections)
	for i := 0; i < 150; i++ {
		f.manager.ValidateAccess(ctx, alice, alice, OperationRead, fmt.Sprintf("resource-%d", i))
	}

	boundary, ok := f.manager.BoundaryFor(alice)
	require.True(t, ok)
	log := boundary.AccessLog()
	require.Len(t, log, 100)
	assert.Equal(t, "resource-50", log[0].Resource)
	assert.Equal(t, "resource-149", log[99].Resource)
}

func TestBuildPolicy_LevelDerivations(t *testing.T) {
	now := time.Now()

	internal := BuildPolicy(id.ProfileID("a"), id.SensitivityInternal, defaultCollections, now)
	assert.False(t, internal.AllowCrossProfileAccess)
	assert.False(t, internal.EncryptionRequired)
	assert.Equal(t, 3*365, internal.DataRetentionDays)

	secret := BuildPolicy(id.ProfileID("a"), id.SensitivitySecret, defaultCollections, now)
	assert.True(t, secret.EncryptionRequired)
	assert.Equal(t, 7*365, secret.DataRetentionDays)
	rule, ok := secret.ruleFor(OperationWrite, id.CollectionName("transactions"))
	require.True(t, ok)
	assert.Contains(t, rule.Restrictions, RestrictionMFA)

	topSecret := BuildPolicy(id.ProfileID("a"), id.SensitivityTopSecret, defaultCollections, now)
	rule, ok = topSecret.ruleFor(OperationDelete, id.CollectionName("transactions"))
	require.True(t, ok)
	assert.Contains(t, rule.Restrictions, RestrictionTrustedDevice)
}
