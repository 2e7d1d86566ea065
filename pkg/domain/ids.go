// Package domain defines typed identifiers shared across services.
//
// Each ID is a distinct type over uuid.UUID so the compiler rejects
// cross-assignment between identity and session identifiers. Parse
// functions enforce the invariant that IDs are valid, non-nil UUIDs at
// trust boundaries.
package domain

import (
	"github.com/google/uuid"

	dErrors "vidgate/pkg/domain-errors"
)

// IdentityID identifies an anonymous principal.
type IdentityID uuid.UUID

// SessionID identifies the live binding between an identity and a token.
type SessionID uuid.UUID

// NewIdentityID generates a fresh identity ID.
func NewIdentityID() IdentityID {
	return IdentityID(uuid.New())
}

// NewSessionID generates a fresh session ID.
func NewSessionID() SessionID {
	return SessionID(uuid.New())
}

func (i IdentityID) String() string { return uuid.UUID(i).String() }
func (s SessionID) String() string  { return uuid.UUID(s).String() }

func (i IdentityID) IsNil() bool { return uuid.UUID(i) == uuid.Nil }
func (s SessionID) IsNil() bool  { return uuid.UUID(s) == uuid.Nil }

// MarshalText renders IDs as canonical UUID strings in JSON and other
// text encodings.
func (i IdentityID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }
func (s SessionID) MarshalText() ([]byte, error)  { return []byte(s.String()), nil }

func (i *IdentityID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*i = IdentityID(u)
	return nil
}

func (s *SessionID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*s = SessionID(u)
	return nil
}

// ParseIdentityID parses and validates an identity ID string.
func ParseIdentityID(raw string) (IdentityID, error) {
	u, err := parseUUID(raw)
	if err != nil {
		return IdentityID{}, err
	}
	return IdentityID(u), nil
}

// ParseSessionID parses and validates a session ID string.
func ParseSessionID(raw string) (SessionID, error) {
	u, err := parseUUID(raw)
	if err != nil {
		return SessionID{}, err
	}
	return SessionID(u), nil
}

func parseUUID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be empty")
	}
	u, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "id is not a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil UUID")
	}
	return u, nil
}
