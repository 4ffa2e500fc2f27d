// Package cryptoprov wraps the cryptographic primitives the isolation
// subsystem depends on behind one small contract.
//
// The primary provider uses AES-256-GCM; when AES hardware acceleration is
// unavailable the constructor transparently degrades to a ChaCha20-Poly1305
// software provider of equivalent API shape. Callers never branch on which
// one they got.
package cryptoprov

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	dErrors "profilevault/pkg/domain-errors"
)

// KeySize is the symmetric key size used throughout: 256 bits.
const KeySize = 32

// Provider is the crypto-primitive contract.
type Provider interface {
	// RandomBytes returns n bytes from a CSPRNG.
	RandomBytes(n int) ([]byte, error)
	// Digest returns an unkeyed SHA-256 digest.
	Digest(data []byte) []byte
	// KeyedDigest returns an HMAC-SHA256 over data.
	KeyedDigest(key, data []byte) []byte
	// DeriveKey stretches a password/seed with PBKDF2-SHA256.
	DeriveKey(password, salt []byte, iterations int) []byte
	// NonceSize reports the AEAD nonce length for this provider.
	NonceSize() int
	// AEADEncrypt seals plaintext with the given key and nonce.
	AEADEncrypt(key, nonce, plaintext []byte) ([]byte, error)
	// AEADDecrypt opens ciphertext; authentication failure is an error.
	AEADDecrypt(key, nonce, ciphertext []byte) ([]byte, error)
}

// New picks the strongest provider available on this platform.
func New() Provider {
	if hasAESHardware() {
		return &aesProvider{}
	}
	return &chachaProvider{}
}

// base carries the primitives both providers share.
type base struct{}

func (base) RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("could not read random bytes: %w", err)
	}
	return buf, nil
}

func (base) Digest(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

func (base) KeyedDigest(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func (base) DeriveKey(password, salt []byte, iterations int) []byte {
	return pbkdf2.Key(password, salt, iterations, KeySize, sha256.New)
}

// VerifyKeyedDigest compares a keyed digest in constant time.
func VerifyKeyedDigest(p Provider, key, data, expected []byte) bool {
	return hmac.Equal(p.KeyedDigest(key, data), expected)
}

func invalidKey(n int) error {
	return dErrors.Newf(dErrors.CodeKeyDerivation, "key must be %d bytes, got %d", KeySize, n)
}
