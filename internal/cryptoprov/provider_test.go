package cryptoprov

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Both providers must satisfy the same observable contract; the vault never
// knows which one it got.
func providers() map[string]Provider {
	return map[string]Provider{
		"aes-gcm":           &aesProvider{},
		"chacha20-poly1305": &chachaProvider{},
	}
}

func TestAEADRoundTrip(t *testing.T) {
	for name, p := range providers() {
		t.Run(name, func(t *testing.T) {
			key, err := p.RandomBytes(KeySize)
			require.NoError(t, err)
			nonce, err := p.RandomBytes(p.NonceSize())
			require.NoError(t, err)

			plaintext := []byte("the profile seed never leaves memory")
			ciphertext, err := p.AEADEncrypt(key, nonce, plaintext)
			require.NoError(t, err)
			assert.NotEqual(t, plaintext, ciphertext)

			decrypted, err := p.AEADDecrypt(key, nonce, ciphertext)
			require.NoError(t, err)
			assert.Equal(t, plaintext, decrypted)
		})
	}
}

func TestAEADTamperFails(t *testing.T) {
	for name, p := range providers() {
		t.Run(name, func(t *testing.T) {
			key, _ := p.RandomBytes(KeySize)
			nonce, _ := p.RandomBytes(p.NonceSize())
			ciphertext, err := p.AEADEncrypt(key, nonce, []byte("payload"))
			require.NoError(t, err)

			ciphertext[0] ^= 0xff
			_, err = p.AEADDecrypt(key, nonce, ciphertext)
			require.Error(t, err)
		})
	}
}

func TestAEADWrongKeyFails(t *testing.T) {
	for name, p := range providers() {
		t.Run(name, func(t *testing.T) {
			key, _ := p.RandomBytes(KeySize)
			otherKey, _ := p.RandomBytes(KeySize)
			nonce, _ := p.RandomBytes(p.NonceSize())
			ciphertext, err := p.AEADEncrypt(key, nonce, []byte("payload"))
			require.NoError(t, err)

			_, err = p.AEADDecrypt(otherKey, nonce, ciphertext)
			require.Error(t, err)
		})
	}
}

func TestRejectsShortKey(t *testing.T) {
	for name, p := range providers() {
		t.Run(name, func(t *testing.T) {
			nonce, _ := p.RandomBytes(p.NonceSize())
			_, err := p.AEADEncrypt([]byte("short"), nonce, []byte("payload"))
			require.Error(t, err)
		})
	}
}

func TestDeriveKeyIsDeterministic(t *testing.T) {
	p := New()
	a := p.DeriveKey([]byte("seed"), []byte("salt"), 1000)
	b := p.DeriveKey([]byte("seed"), []byte("salt"), 1000)
	c := p.DeriveKey([]byte("seed"), []byte("other-salt"), 1000)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, KeySize)
}

func TestKeyedDigest(t *testing.T) {
	p := New()
	key := []byte("0123456789abcdef0123456789abcdef")
	digest := p.KeyedDigest(key, []byte("data"))

	assert.True(t, VerifyKeyedDigest(p, key, []byte("data"), digest))
	assert.False(t, VerifyKeyedDigest(p, key, []byte("tampered"), digest))
	assert.False(t, VerifyKeyedDigest(p, []byte("ffffffffffffffffffffffffffffffff"), []byte("data"), digest))
}

func TestRandomBytesAreUnique(t *testing.T) {
	p := New()
	a, err := p.RandomBytes(32)
	require.NoError(t, err)
	b, err := p.RandomBytes(32)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 32)
}
