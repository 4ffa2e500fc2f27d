package barrier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"profilevault/internal/recordstore"
	id "profilevault/pkg/domain"
	"profilevault/pkg/platform/sentinel"
	"profilevault/pkg/requestcontext"
)

func seedBarrier(t *testing.T, store *Store, source, target id.ProfileID) *SecurityBarrier {
	t.Helper()
	barrier := &SecurityBarrier{
		ID:       id.NewBarrierID(),
		Source:   source,
		Target:   target,
		Type:     TypeAccessControl,
		Strength: StrengthStandard,
		Rules:    []Rule{{Action: ActionDeny, Description: "deny all"}},
		Status:   StatusActive,
		Created:  requestcontext.Now(context.Background()).UTC(),
	}
	require.NoError(t, store.Save(context.Background(), barrier))
	return barrier
}

func TestStore_GetUnknownBarrier(t *testing.T) {
	store := NewStore(recordstore.NewInMemory())
	_, err := store.Get(context.Background(), id.NewBarrierID())
	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))
}

func TestStore_SaveGetRoundTrip(t *testing.T) {
	store := NewStore(recordstore.NewInMemory())
	saved := seedBarrier(t, store, id.WildcardProfile, id.ProfileID("alice"))

	got, err := store.Get(context.Background(), saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, got.ID)
	assert.Equal(t, StatusActive, got.Status)
	require.Len(t, got.Rules, 1)
}

func TestStore_ForProfileMatchesWildcardAndDirect(t *testing.T) {
	store := NewStore(recordstore.NewInMemory())
	ctx := context.Background()

	wildcard := seedBarrier(t, store, id.WildcardProfile, id.ProfileID("alice"))
	direct := seedBarrier(t, store, id.ProfileID("bob"), id.ProfileID("alice"))
	seedBarrier(t, store, id.WildcardProfile, id.ProfileID("carol"))

	barriers, err := store.ForProfile(ctx, id.ProfileID("alice"))
	require.NoError(t, err)
	require.Len(t, barriers, 2)
	ids := []id.BarrierID{barriers[0].ID, barriers[1].ID}
	assert.Contains(t, ids, wildcard.ID)
	assert.Contains(t, ids, direct.ID)
}

func TestStore_ExecutePersistsMutation(t *testing.T) {
	store := NewStore(recordstore.NewInMemory())
	ctx := context.Background()
	saved := seedBarrier(t, store, id.WildcardProfile, id.ProfileID("alice"))

	_, err := store.Execute(ctx, saved.ID, func(b *SecurityBarrier) error {
		b.Status = StatusInactive
		return nil
	})
	require.NoError(t, err)

	got, err := store.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInactive, got.Status)
}

func TestStore_ExecuteMutateErrorLeavesBarrierUntouched(t *testing.T) {
	store := NewStore(recordstore.NewInMemory())
	ctx := context.Background()
	saved := seedBarrier(t, store, id.WildcardProfile, id.ProfileID("alice"))

	_, err := store.Execute(ctx, saved.ID, func(b *SecurityBarrier) error {
		b.Status = StatusInactive
		return errors.New("validation failed")
	})
	require.Error(t, err)

	got, err := store.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)
}

func TestStore_DeleteRemovesBarrier(t *testing.T) {
	store := NewStore(recordstore.NewInMemory())
	ctx := context.Background()
	saved := seedBarrier(t, store, id.WildcardProfile, id.ProfileID("alice"))

	require.NoError(t, store.Delete(ctx, saved.ID))
	_, err := store.Get(ctx, saved.ID)
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))
}

func TestSecurityBarrier_Matches(t *testing.T) {
	barrier := &SecurityBarrier{Source: id.WildcardProfile, Target: id.ProfileID("alice")}
	assert.True(t, barrier.Matches(id.ProfileID("bob"), id.ProfileID("alice")))
	assert.False(t, barrier.Matches(id.ProfileID("bob"), id.ProfileID("carol")))

	pinned := &SecurityBarrier{Source: id.ProfileID("bob"), Target: id.ProfileID("alice")}
	assert.True(t, pinned.Matches(id.ProfileID("bob"), id.ProfileID("alice")))
	assert.False(t, pinned.Matches(id.ProfileID("carol"), id.ProfileID("alice")))
}
