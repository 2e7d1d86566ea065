package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "vidgate/pkg/domain"
)

func TestCodec_RoundTrip(t *testing.T) {
	codec, err := NewCodec("test-signing-key")
	require.NoError(t, err)

	identityID := id.NewIdentityID()
	expiresAt := time.Now().Add(24 * time.Hour)

	tokenString, jti, err := codec.Issue(identityID, 7, 100, expiresAt)
	require.NoError(t, err)
	require.NotEmpty(t, tokenString)
	require.NotEmpty(t, jti)

	claims, err := codec.Verify(tokenString)
	require.NoError(t, err)

	parsedID, err := claims.IdentityID()
	require.NoError(t, err)
	assert.Equal(t, identityID, parsedID)
	assert.Equal(t, jti, claims.ID)
	assert.Equal(t, int64(7), claims.QuotaUsed)
	assert.Equal(t, int64(100), claims.QuotaLimit)
	assert.False(t, claims.Expired(time.Now()))
}

func TestCodec_ExpiredTokenStillVerifies(t *testing.T) {
	// A lapsed expiry must not be a verification failure: the session
	// manager uses authentic-but-expired tokens for implicit renewal.
	codec, err := NewCodec("test-signing-key")
	require.NoError(t, err)

	tokenString, _, err := codec.Issue(id.NewIdentityID(), 0, 100, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	claims, err := codec.Verify(tokenString)
	require.NoError(t, err)
	assert.True(t, claims.Expired(time.Now()))
}

func TestCodec_RejectsTamperedToken(t *testing.T) {
	codec, err := NewCodec("test-signing-key")
	require.NoError(t, err)

	other, err := NewCodec("different-key")
	require.NoError(t, err)

	tokenString, _, err := other.Issue(id.NewIdentityID(), 0, 100, time.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = codec.Verify(tokenString)
	assert.Error(t, err)
}

func TestCodec_RejectsGarbage(t *testing.T) {
	codec, err := NewCodec("test-signing-key")
	require.NoError(t, err)

	for _, raw := range []string{"", "not-a-token", "a.b.c"} {
		_, err := codec.Verify(raw)
		assert.Error(t, err, "input %q", raw)
	}
}

func TestNewCodec_RequiresKey(t *testing.T) {
	_, err := NewCodec("")
	assert.Error(t, err)
}
