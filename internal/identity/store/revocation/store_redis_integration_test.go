//go:build integration

package revocation_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"vidgate/internal/identity/models"
	revocationstore "vidgate/internal/identity/store/revocation"
	id "vidgate/pkg/domain"
	"vidgate/pkg/testutil/containers"
)

type RevocationRedisSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *revocationstore.RedisStore
}

func TestRevocationRedisSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RevocationRedisSuite))
}

func (s *RevocationRedisSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = revocationstore.NewRedisStore(s.redis.Client)
}

func (s *RevocationRedisSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RevocationRedisSuite) TestRevokeAndCheck() {
	ctx := context.Background()
	jti := uuid.NewString()

	revoked, err := s.store.IsRevoked(ctx, jti)
	s.Require().NoError(err)
	s.False(revoked)

	s.Require().NoError(s.store.Revoke(ctx, models.RevokedToken{
		JTI:        jti,
		IdentityID: id.NewIdentityID(),
		Reason:     models.RevocationReasonLogout,
		RevokedAt:  time.Now(),
		ExpiresAt:  time.Now().Add(time.Hour),
	}))

	revoked, err = s.store.IsRevoked(ctx, jti)
	s.Require().NoError(err)
	s.True(revoked)
}

func (s *RevocationRedisSuite) TestAlreadyExpiredNotRecorded() {
	ctx := context.Background()
	jti := uuid.NewString()

	s.Require().NoError(s.store.Revoke(ctx, models.RevokedToken{
		JTI:        jti,
		IdentityID: id.NewIdentityID(),
		Reason:     models.RevocationReasonExpired,
		RevokedAt:  time.Now(),
		ExpiresAt:  time.Now().Add(-time.Minute),
	}))

	revoked, err := s.store.IsRevoked(ctx, jti)
	s.Require().NoError(err)
	s.False(revoked, "a dead token needs no ledger entry")
}

func (s *RevocationRedisSuite) TestEmptyJTI() {
	ctx := context.Background()
	s.Require().NoError(s.store.Revoke(ctx, models.RevokedToken{JTI: ""}))

	revoked, err := s.store.IsRevoked(ctx, "")
	s.Require().NoError(err)
	s.False(revoked)
}

func (s *RevocationRedisSuite) TestTTLEviction() {
	ctx := context.Background()
	jti := uuid.NewString()

	s.Require().NoError(s.store.Revoke(ctx, models.RevokedToken{
		JTI:        jti,
		IdentityID: id.NewIdentityID(),
		Reason:     models.RevocationReasonLogout,
		RevokedAt:  time.Now(),
		ExpiresAt:  time.Now().Add(100 * time.Millisecond),
	}))

	time.Sleep(150 * time.Millisecond)

	revoked, err := s.store.IsRevoked(ctx, jti)
	s.Require().NoError(err)
	s.False(revoked, "redis reclaims the entry with the token's own lifetime")
}
