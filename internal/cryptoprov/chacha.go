package cryptoprov

import (
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// chachaProvider is the software fallback: ChaCha20-Poly1305 stays fast and
// constant-time without AES hardware support.
type chachaProvider struct {
	base
}

func (p *chachaProvider) NonceSize() int { return chacha20poly1305.NonceSize }

func (p *chachaProvider) AEADEncrypt(key, nonce, plaintext []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, invalidKey(len(key))
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("chacha20poly1305: %w", err)
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("chacha20poly1305: nonce must be %d bytes, got %d", aead.NonceSize(), len(nonce))
	}
	return aead.Seal(nil, nonce, plaintext, nil), nil
}

func (p *chachaProvider) AEADDecrypt(key, nonce, ciphertext []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, invalidKey(len(key))
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("chacha20poly1305: %w", err)
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("chacha20poly1305: nonce must be %d bytes, got %d", aead.NonceSize(), len(nonce))
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("chacha20poly1305 open: %w", err)
	}
	return plaintext, nil
}
