package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"vidgate/internal/identity/models"
	id "vidgate/pkg/domain"
	"vidgate/pkg/platform/sentinel"
)

const (
	sessionKeyPrefix  = "session:"
	identityIdxPrefix = "session:identity:"
	fpIdxPrefix       = "session:fp:"

	// expiryGrace mirrors the identity store: keys outlive the logical
	// expiry slightly so sweeps and renewal races stay observable.
	expiryGrace = 25 * time.Hour
)

// RedisStore persists sessions as JSON values with secondary index sets
// per identity and per fingerprint. Index members are lazily validated
// against the primary record, so a stale index entry is never
// authoritative.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func sessionKey(sessionID id.SessionID) string {
	return sessionKeyPrefix + sessionID.String()
}

func (s *RedisStore) Save(ctx context.Context, session *models.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	deadline := session.ExpiresAt.Add(expiryGrace)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKey(session.ID), payload, time.Until(deadline))
	pipe.SAdd(ctx, identityIdxPrefix+session.IdentityID.String(), session.ID.String())
	pipe.ExpireAt(ctx, identityIdxPrefix+session.IdentityID.String(), deadline)
	if session.Fingerprint != "" {
		pipe.SAdd(ctx, fpIdxPrefix+session.Fingerprint, session.ID.String())
		pipe.ExpireAt(ctx, fpIdxPrefix+session.Fingerprint, deadline)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *RedisStore) FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	var session models.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}

func (s *RedisStore) FindActiveByIdentity(ctx context.Context, identityID id.IdentityID) (*models.Session, error) {
	sessions, err := s.ListByIdentity(ctx, identityID)
	if err != nil {
		return nil, err
	}
	for _, session := range sessions {
		if session.Status == models.SessionStatusActive {
			return session, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *RedisStore) ListByIdentity(ctx context.Context, identityID id.IdentityID) ([]*models.Session, error) {
	members, err := s.client.SMembers(ctx, identityIdxPrefix+identityID.String()).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	sessions := make([]*models.Session, 0, len(members))
	for _, member := range members {
		sessionID, err := id.ParseSessionID(member)
		if err != nil {
			continue
		}
		session, err := s.FindByID(ctx, sessionID)
		if errors.Is(err, sentinel.ErrNotFound) {
			// Stale index entry; drop it.
			s.client.SRem(ctx, identityIdxPrefix+identityID.String(), member)
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func (s *RedisStore) CountActiveByFingerprint(ctx context.Context, fingerprint string, now time.Time) (int, error) {
	if fingerprint == "" {
		return 0, nil
	}
	members, err := s.client.SMembers(ctx, fpIdxPrefix+fingerprint).Result()
	if err != nil {
		return 0, fmt.Errorf("count sessions by fingerprint: %w", err)
	}
	count := 0
	for _, member := range members {
		sessionID, err := id.ParseSessionID(member)
		if err != nil {
			continue
		}
		session, err := s.FindByID(ctx, sessionID)
		if errors.Is(err, sentinel.ErrNotFound) {
			s.client.SRem(ctx, fpIdxPrefix+fingerprint, member)
			continue
		}
		if err != nil {
			return 0, err
		}
		if session.Active(now) {
			count++
		}
	}
	return count, nil
}

func (s *RedisStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	removed := 0
	iter := s.client.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			// Index sets share the prefix; skip non-string keys.
			continue
		}
		var session models.Session
		if err := json.Unmarshal(raw, &session); err != nil {
			continue
		}
		if now.After(session.ExpiresAt) {
			if err := s.client.Del(ctx, key).Err(); err != nil {
				return removed, fmt.Errorf("sweep sessions: %w", err)
			}
			removed++
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("sweep sessions: %w", err)
	}
	return removed, nil
}
