package sessiontoken

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "profilevault/pkg/domain"
	dErrors "profilevault/pkg/domain-errors"
)

var tokenService = NewService(
	"test-signing-key",
	"test-issuer",
	"test-audience",
)

func TestIssueAndValidate(t *testing.T) {
	token, claims, err := tokenService.Issue(context.Background(), id.ProfileID("alice"), id.SensitivitySecret, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.NotEmpty(t, claims.ID)

	parsed, err := tokenService.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", parsed.ProfileID)
	assert.Equal(t, "secret", parsed.SecurityLevel)
	assert.Equal(t, claims.ID, parsed.ID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), parsed.ExpiresAt.Time, time.Minute)
}

func TestValidate_InvalidToken(t *testing.T) {
	_, err := tokenService.Validate("not-a-token")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestValidate_ExpiredToken(t *testing.T) {
	token, _, err := tokenService.Issue(context.Background(), id.ProfileID("alice"), id.SensitivityInternal, time.Nanosecond)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, err = tokenService.Validate(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.Contains(t, err.Error(), "expired")
}

func TestValidate_WrongKey(t *testing.T) {
	other := NewService("another-key", "test-issuer", "test-audience")
	token, _, err := other.Issue(context.Background(), id.ProfileID("alice"), id.SensitivityInternal, time.Hour)
	require.NoError(t, err)

	_, err = tokenService.Validate(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestValidate_WrongAudience(t *testing.T) {
	other := NewService("test-signing-key", "test-issuer", "someone-else")
	token, _, err := other.Issue(context.Background(), id.ProfileID("alice"), id.SensitivityInternal, time.Hour)
	require.NoError(t, err)

	_, err = tokenService.Validate(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestExtractProfileID(t *testing.T) {
	token, _, err := tokenService.Issue(context.Background(), id.ProfileID("alice"), id.SensitivityInternal, time.Hour)
	require.NoError(t, err)

	profileID, err := tokenService.ExtractProfileID(token)
	require.NoError(t, err)
	assert.Equal(t, id.ProfileID("alice"), profileID)
}

func TestIssue_Validation(t *testing.T) {
	_, _, err := tokenService.Issue(context.Background(), "", id.SensitivityInternal, time.Hour)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, _, err = tokenService.Issue(context.Background(), id.ProfileID("alice"), id.SensitivityInternal, 0)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
