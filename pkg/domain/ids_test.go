package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "vidgate/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs".
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseIdentityID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseIdentityID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseIdentityID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseIdentityID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, IdentityID(validUUID), id)
	})
}

// TestTypeDistinction verifies the compiler enforces type safety.
// This is a compile-time check - if this compiles, the invariant holds.
func TestTypeDistinction(t *testing.T) {
	identityID := IdentityID(uuid.New())
	sessionID := SessionID(uuid.New())

	// These would fail to compile if types were interchangeable:
	// var _ IdentityID = sessionID   // compile error
	// var _ SessionID = identityID   // compile error

	// Verify they're distinct at runtime too
	assert.NotEqual(t, uuid.UUID(identityID), uuid.UUID(sessionID))
}

func TestRoundTrip(t *testing.T) {
	id := NewSessionID()
	parsed, err := ParseSessionID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func FuzzParseIdentityID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseIdentityID(input)
		if err != nil {
			return
		}
		// Valid IDs must round-trip unchanged.
		roundTrip, err2 := ParseIdentityID(id.String())
		if err2 != nil {
			t.Errorf("valid ID failed round-trip: %v", err2)
		}
		if roundTrip != id {
			t.Error("round-trip changed ID value")
		}
	})
}
