// Package sessiontoken issues and validates profile session tokens. A token
// is minted when a caller switches to or unlocks a profile and scopes every
// subsequent data-plane request to that profile.
package sessiontoken

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "profilevault/pkg/domain"
	dErrors "profilevault/pkg/domain-errors"
	"profilevault/pkg/requestcontext"
)

// Claims are the profile session claims carried in a token.
type Claims struct {
	ProfileID     string `json:"profile_id"`
	SecurityLevel string `json:"security_level"`
	jwt.RegisteredClaims
}

// Service signs and verifies session tokens with a shared HMAC key.
type Service struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewService(signingKey, issuer, audience string) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

// Issue mints a session token for the profile. The session ID doubles as the
// JTI so sessions are individually traceable in the audit trail.
func (s *Service) Issue(ctx context.Context, profileID id.ProfileID, level id.SecurityLevel, ttl time.Duration) (string, *Claims, error) {
	if profileID.IsZero() {
		return "", nil, dErrors.New(dErrors.CodeInvalidInput, "profile id is required")
	}
	if ttl <= 0 {
		return "", nil, dErrors.New(dErrors.CodeInvalidInput, "token ttl must be positive")
	}

	now := requestcontext.Now(ctx).UTC()
	claims := &Claims{
		ProfileID:     profileID.String(),
		SecurityLevel: level.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Validate parses and verifies a token, returning its claims.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithAudience(s.audience))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "session has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid session token")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid session token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid session claims")
	}
	return claims, nil
}

// ExtractProfileID validates the token and returns its profile ID.
func (s *Service) ExtractProfileID(tokenString string) (id.ProfileID, error) {
	claims, err := s.Validate(tokenString)
	if err != nil {
		return "", err
	}
	return id.ParseProfileID(claims.ProfileID)
}
