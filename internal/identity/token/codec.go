// Package token signs and verifies the compact claims carried by
// anonymous identity tokens. It has no storage dependency: revocation and
// identity lookups are the session manager's concern.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "vidgate/pkg/domain"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Claims is the signed payload: identity id (sub), a jti for revocation
// tracking, and a quota snapshot frozen at issuance.
type Claims struct {
	QuotaUsed  int64 `json:"quota_used"`
	QuotaLimit int64 `json:"quota_limit"`
	jwt.RegisteredClaims
}

// IdentityID parses the subject claim.
func (c *Claims) IdentityID() (id.IdentityID, error) {
	return id.ParseIdentityID(c.Subject)
}

// Expired reports whether the signed expiry has passed. Expiry is checked
// here rather than during parsing because a lapsed-but-authentic token is
// the trigger for implicit renewal, not a verification failure.
func (c *Claims) Expired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return true
	}
	return now.After(c.ExpiresAt.Time)
}

// Codec signs and verifies identity tokens with a symmetric key (HS256).
type Codec struct {
	signingKey []byte
}

func NewCodec(signingKey string) (*Codec, error) {
	if signingKey == "" {
		return nil, fmt.Errorf("signing key is required")
	}
	return &Codec{signingKey: []byte(signingKey)}, nil
}

// Issue signs a token for the identity whose expiry mirrors the
// identity's own. Returns the compact token and its jti.
func (c *Codec) Issue(identityID id.IdentityID, quotaUsed, quotaLimit int64, expiresAt time.Time) (string, string, error) {
	jti := uuid.New().String()
	claims := Claims{
		QuotaUsed:  quotaUsed,
		QuotaLimit: quotaLimit,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identityID.String(),
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(NowTimeFunc()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.signingKey)
	if err != nil {
		return "", "", fmt.Errorf("sign token: %w", err)
	}
	return signed, jti, nil
}

// Verify checks the signature and returns the claims. Claims validation
// (exp) is deliberately skipped: the session manager decides whether a
// lapsed expiry means "anonymous" or "auto-renew".
func (c *Codec) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return c.signingKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("token missing required claims")
	}
	return claims, nil
}
