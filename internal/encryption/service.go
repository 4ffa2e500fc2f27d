// Package encryption implements sensitivity-tiered layered encryption.
//
// A payload is serialized once and then wrapped in one to four AEAD passes,
// each with its own derived key and fresh nonce. The envelope binds ciphertext
// to its owning profile with a keyed digest that is verified before any
// decryption is attempted.
package encryption

import (
	"encoding/json"
	"log/slog"
	"time"

	"profilevault/internal/cryptoprov"
	"profilevault/internal/keys"
	"profilevault/internal/platform/metrics"
	id "profilevault/pkg/domain"
	dErrors "profilevault/pkg/domain-errors"
)

// Envelope is the wire form of an encrypted payload. Layers lists the passes
// actually applied, in application order.
type Envelope struct {
	ProfileID   id.ProfileID   `json:"profile_id"`
	Ciphertext  []byte         `json:"ciphertext"`
	Layers      []Layer        `json:"layers"`
	Sensitivity id.Sensitivity `json:"sensitivity"`
	Digest      []byte         `json:"digest"`
}

// Encryptor wraps and unwraps payloads for exactly one profile at a time.
type Encryptor struct {
	keys     *keys.Service
	provider cryptoprov.Provider
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures the Encryptor.
type Option func(*Encryptor)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Encryptor) { e.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Encryptor) { e.metrics = m }
}

func NewEncryptor(keySvc *keys.Service, provider cryptoprov.Provider, opts ...Option) *Encryptor {
	e := &Encryptor{
		keys:     keySvc,
		provider: provider,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EncryptForProfile serializes data and applies the layer list selected by
// sensitivity. Each pass prepends its nonce to the ciphertext it produced, so
// the outermost bytes always start with the outermost layer's nonce.
func (e *Encryptor) EncryptForProfile(profileID id.ProfileID, data any, sensitivity id.Sensitivity) (*Envelope, error) {
	if profileID.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "profile id is required")
	}
	if !sensitivity.Valid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid sensitivity")
	}
	start := time.Now()

	current, err := json.Marshal(data)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "could not serialize payload")
	}

	layers := LayersFor(sensitivity)
	for _, layer := range layers {
		current, err = e.applyLayer(profileID, layer, current)
		if err != nil {
			return nil, err
		}
	}

	digest, err := e.envelopeDigest(profileID, current)
	if err != nil {
		return nil, err
	}

	e.metrics.ObserveCryptoOp("encrypt", time.Since(start).Seconds())
	return &Envelope{
		ProfileID:   profileID,
		Ciphertext:  current,
		Layers:      layers,
		Sensitivity: sensitivity,
		Digest:      digest,
	}, nil
}

// DecryptForProfile verifies ownership and integrity, then peels layers in the
// exact reverse of the recorded application order and decodes into out.
//
// The profile check exists specifically so one profile's key material is never
// tried against another profile's ciphertext.
func (e *Encryptor) DecryptForProfile(profileID id.ProfileID, envelope *Envelope, out any) error {
	if envelope == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "envelope is required")
	}
	if envelope.ProfileID != profileID {
		e.logger.Warn("cross-profile decrypt refused",
			"requester", profileID,
			"owner", envelope.ProfileID,
		)
		return dErrors.Newf(dErrors.CodeCrossProfileAccess,
			"envelope belongs to profile %q", envelope.ProfileID)
	}
	start := time.Now()

	integrityKey, err := e.keys.Derive(profileID, keys.PurposeIntegrity)
	if err != nil {
		return err
	}
	if !cryptoprov.VerifyKeyedDigest(e.provider, integrityKey.Bytes, digestInput(profileID, envelope.Ciphertext), envelope.Digest) {
		return dErrors.New(dErrors.CodeIntegrityViolation, "envelope digest mismatch")
	}

	current := envelope.Ciphertext
	for i := len(envelope.Layers) - 1; i >= 0; i-- {
		current, err = e.peelLayer(profileID, envelope.Layers[i], current)
		if err != nil {
			return err
		}
	}

	if err := json.Unmarshal(current, out); err != nil {
		return dErrors.Wrap(err, dErrors.CodeIntegrityViolation, "decrypted payload is not valid JSON")
	}
	e.metrics.ObserveCryptoOp("decrypt", time.Since(start).Seconds())
	return nil
}

func (e *Encryptor) applyLayer(profileID id.ProfileID, layer Layer, plaintext []byte) ([]byte, error) {
	purpose, ok := layerPurposes[layer]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown encryption layer %q", layer)
	}
	key, err := e.keys.Derive(profileID, purpose)
	if err != nil {
		return nil, err
	}
	nonce, err := e.provider.RandomBytes(e.provider.NonceSize())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeKeyDerivation, "could not generate nonce")
	}
	ciphertext, err := e.provider.AEADEncrypt(key.Bytes, nonce, plaintext)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "layer encryption failed")
	}
	return append(nonce, ciphertext...), nil
}

func (e *Encryptor) peelLayer(profileID id.ProfileID, layer Layer, data []byte) ([]byte, error) {
	purpose, ok := layerPurposes[layer]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeIntegrityViolation, "envelope records unknown layer %q", layer)
	}
	nonceSize := e.provider.NonceSize()
	if len(data) < nonceSize {
		return nil, dErrors.New(dErrors.CodeIntegrityViolation, "ciphertext shorter than nonce")
	}
	key, err := e.keys.Derive(profileID, purpose)
	if err != nil {
		return nil, err
	}
	plaintext, err := e.provider.AEADDecrypt(key.Bytes, data[:nonceSize], data[nonceSize:])
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeIntegrityViolation, "layer decryption failed")
	}
	return plaintext, nil
}

// envelopeDigest computes the keyed digest binding ciphertext to its owner.
func (e *Encryptor) envelopeDigest(profileID id.ProfileID, ciphertext []byte) ([]byte, error) {
	integrityKey, err := e.keys.Derive(profileID, keys.PurposeIntegrity)
	if err != nil {
		return nil, err
	}
	return e.provider.KeyedDigest(integrityKey.Bytes, digestInput(profileID, ciphertext)), nil
}

func digestInput(profileID id.ProfileID, ciphertext []byte) []byte {
	input := make([]byte, 0, len(ciphertext)+len(profileID)+1)
	input = append(input, ciphertext...)
	input = append(input, 0)
	input = append(input, profileID...)
	return input
}
