package keys

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"profilevault/internal/cryptoprov"
	dErrors "profilevault/pkg/domain-errors"
)

func newService() *Service {
	return NewService(cryptoprov.New())
}

func TestDerive(t *testing.T) {
	t.Run("first derivation creates the seed", func(t *testing.T) {
		s := newService()
		key, err := s.Derive("alice", PurposeTransactions)
		require.NoError(t, err)
		assert.True(t, key.Created, "first derivation must be observable as key creation")
		assert.Len(t, key.Bytes, cryptoprov.KeySize)
	})

	t.Run("second derivation hits the cache and is not a creation", func(t *testing.T) {
		s := newService()
		first, err := s.Derive("alice", PurposeTransactions)
		require.NoError(t, err)
		second, err := s.Derive("alice", PurposeTransactions)
		require.NoError(t, err)

		assert.False(t, second.Created)
		assert.Equal(t, first.Bytes, second.Bytes)
	})

	t.Run("purposes yield distinct keys", func(t *testing.T) {
		s := newService()
		tx, err := s.Derive("alice", PurposeTransactions)
		require.NoError(t, err)
		research, err := s.Derive("alice", PurposeResearch)
		require.NoError(t, err)
		assert.NotEqual(t, tx.Bytes, research.Bytes)
	})

	t.Run("profiles yield distinct keys for the same purpose", func(t *testing.T) {
		s := newService()
		alice, err := s.Derive("alice", PurposeMaster)
		require.NoError(t, err)
		bob, err := s.Derive("bob", PurposeMaster)
		require.NoError(t, err)
		assert.NotEqual(t, alice.Bytes, bob.Bytes)
	})

	t.Run("rejects unknown purpose", func(t *testing.T) {
		s := newService()
		_, err := s.Derive("alice", Purpose("exfiltration"))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeKeyDerivation))
	})

	t.Run("rejects empty profile id", func(t *testing.T) {
		s := newService()
		_, err := s.Derive("", PurposeMaster)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestDeriveConcurrent(t *testing.T) {
	s := newService()

	const goroutines = 16
	results := make([][]byte, goroutines)
	var wg sync.WaitGroup
	for i := range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key, err := s.Derive("alice", PurposeSync)
			if assert.NoError(t, err) {
				results[i] = key.Bytes
			}
		}()
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		assert.Equal(t, results[0], results[i], "concurrent derivations must agree")
	}
}

func TestRotate(t *testing.T) {
	s := newService()

	before, err := s.Derive("alice", PurposeTransactions)
	require.NoError(t, err)

	require.NoError(t, s.Rotate("alice"))

	after, err := s.Derive("alice", PurposeTransactions)
	require.NoError(t, err)
	assert.NotEqual(t, before.Bytes, after.Bytes, "rotation must change key material")
	assert.False(t, after.Created, "rotation pre-derives the full key set")

	// Other profiles are untouched.
	bobBefore, err := s.Derive("bob", PurposeTransactions)
	require.NoError(t, err)
	require.NoError(t, s.Rotate("alice"))
	bobAfter, err := s.Derive("bob", PurposeTransactions)
	require.NoError(t, err)
	assert.Equal(t, bobBefore.Bytes, bobAfter.Bytes)
}

func TestEvict(t *testing.T) {
	s := newService()

	before, err := s.Derive("alice", PurposeMaster)
	require.NoError(t, err)

	s.Evict("alice")

	after, err := s.Derive("alice", PurposeMaster)
	require.NoError(t, err)
	assert.True(t, after.Created, "eviction drops the seed, so re-derivation mints a new one")
	assert.NotEqual(t, before.Bytes, after.Bytes)
}
