package segregation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "profilevault/pkg/domain"
	dErrors "profilevault/pkg/domain-errors"
	"profilevault/pkg/requestcontext"
)

func TestGrantShare_GivenLiveShare_WhenRecipientRetrieves_ThenDataReturned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := id.ProfileID("alice")
	bob := id.ProfileID("bob")

	item, err := f.segregator.Isolate(ctx, alice, id.CollectionName("research"),
		map[string]string{"topic": "fusion"}, id.SensitivitySecret)
	require.NoError(t, err)

	share, err := f.segregator.GrantShare(ctx, alice, bob, id.CollectionName("research"), item.ID, time.Hour)
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, f.segregator.RetrieveShared(ctx, bob, share.ID, &got))
	assert.Equal(t, "fusion", got["topic"])
}

func TestRetrieveShared_DeniesNonRecipient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := id.ProfileID("alice")

	item, err := f.segregator.Isolate(ctx, alice, id.CollectionName("research"),
		map[string]string{"topic": "fusion"}, id.SensitivityConfidential)
	require.NoError(t, err)
	share, err := f.segregator.GrantShare(ctx, alice, id.ProfileID("bob"), id.CollectionName("research"), item.ID, time.Hour)
	require.NoError(t, err)

	var got map[string]string
	err = f.segregator.RetrieveShared(ctx, id.ProfileID("mallory"), share.ID, &got)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeCrossProfileAccess))
}

func TestRetrieveShared_DeniesAfterRevocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := id.ProfileID("alice")
	bob := id.ProfileID("bob")

	item, err := f.segregator.Isolate(ctx, alice, id.CollectionName("research"),
		map[string]string{"topic": "fusion"}, id.SensitivityConfidential)
	require.NoError(t, err)
	share, err := f.segregator.GrantShare(ctx, alice, bob, id.CollectionName("research"), item.ID, time.Hour)
	require.NoError(t, err)

	require.NoError(t, f.segregator.RevokeShare(ctx, alice, share.ID))

	var got map[string]string
	err = f.segregator.RetrieveShared(ctx, bob, share.ID, &got)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestRetrieveShared_DeniesAfterExpiry(t *testing.T) {
	f := newFixture(t)
	alice := id.ProfileID("alice")
	bob := id.ProfileID("bob")

	grantTime := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	grantCtx := requestcontext.WithTime(context.Background(), grantTime)

	item, err := f.segregator.Isolate(grantCtx, alice, id.CollectionName("research"),
		map[string]string{"topic": "fusion"}, id.SensitivityConfidential)
	require.NoError(t, err)
	share, err := f.segregator.GrantShare(grantCtx, alice, bob, id.CollectionName("research"), item.ID, time.Minute)
	require.NoError(t, err)

	laterCtx := requestcontext.WithTime(context.Background(), grantTime.Add(time.Hour))
	var got map[string]string
	err = f.segregator.RetrieveShared(laterCtx, bob, share.ID, &got)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestRevokeShare_OnlyOwnerMayRevoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := id.ProfileID("alice")

	item, err := f.segregator.Isolate(ctx, alice, id.CollectionName("research"),
		map[string]string{"topic": "fusion"}, id.SensitivityConfidential)
	require.NoError(t, err)
	share, err := f.segregator.GrantShare(ctx, alice, id.ProfileID("bob"), id.CollectionName("research"), item.ID, time.Hour)
	require.NoError(t, err)

	err = f.segregator.RevokeShare(ctx, id.ProfileID("mallory"), share.ID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeCrossProfileAccess))
}

func TestGrantShare_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := id.ProfileID("alice")

	_, err := f.segregator.GrantShare(ctx, alice, alice, id.CollectionName("research"), "some-id", time.Hour)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = f.segregator.GrantShare(ctx, alice, id.ProfileID("bob"), id.CollectionName("research"), "missing", time.Hour)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	item, err := f.segregator.Isolate(ctx, alice, id.CollectionName("research"),
		map[string]string{"topic": "fusion"}, id.SensitivityConfidential)
	require.NoError(t, err)
	_, err = f.segregator.GrantShare(ctx, alice, id.ProfileID("bob"), id.CollectionName("research"), item.ID, 0)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestListShares_ReturnsOwnersShares(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := id.ProfileID("alice")

	item, err := f.segregator.Isolate(ctx, alice, id.CollectionName("research"),
		map[string]string{"topic": "fusion"}, id.SensitivityConfidential)
	require.NoError(t, err)
	_, err = f.segregator.GrantShare(ctx, alice, id.ProfileID("bob"), id.CollectionName("research"), item.ID, time.Hour)
	require.NoError(t, err)
	_, err = f.segregator.GrantShare(ctx, alice, id.ProfileID("carol"), id.CollectionName("research"), item.ID, time.Hour)
	require.NoError(t, err)

	shares, err := f.segregator.ListShares(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, shares, 2)

	others, err := f.segregator.ListShares(ctx, id.ProfileID("bob"))
	require.NoError(t, err)
	assert.Empty(t, others)
}
