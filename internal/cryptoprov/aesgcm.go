package cryptoprov

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"runtime"

	"golang.org/x/sys/cpu"
)

// aesProvider is the platform-native implementation: AES-256-GCM.
type aesProvider struct {
	base
}

func (p *aesProvider) NonceSize() int { return 12 }

func (p *aesProvider) aead(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, invalidKey(len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

func (p *aesProvider) AEADEncrypt(key, nonce, plaintext []byte) ([]byte, error) {
	aead, err := p.aead(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("aes-gcm: nonce must be %d bytes, got %d", aead.NonceSize(), len(nonce))
	}
	return aead.Seal(nil, nonce, plaintext, nil), nil
}

func (p *aesProvider) AEADDecrypt(key, nonce, ciphertext []byte) ([]byte, error) {
	aead, err := p.aead(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("aes-gcm: nonce must be %d bytes, got %d", aead.NonceSize(), len(nonce))
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("aes-gcm open: %w", err)
	}
	return plaintext, nil
}

// hasAESHardware reports whether this CPU accelerates AES. Without
// acceleration AES-GCM in pure software is both slower and harder to keep
// constant-time, so the ChaCha20 provider is the better choice there.
func hasAESHardware() bool {
	switch runtime.GOARCH {
	case "amd64":
		return cpu.X86.HasAES && cpu.X86.HasPCLMULQDQ
	case "arm64":
		return cpu.ARM64.HasAES && cpu.ARM64.HasPMULL
	default:
		return false
	}
}
