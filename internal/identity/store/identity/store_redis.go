package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"vidgate/internal/identity/models"
	"vidgate/internal/identity/store"
	id "vidgate/pkg/domain"
	"vidgate/pkg/platform/sentinel"
)

const (
	identityKeyPrefix = "identity:"
	usageKeySuffix    = ":usage"

	// expiryGrace keeps the key alive past the identity's logical expiry
	// so the auto-renewal path can still observe the lapsed record.
	expiryGrace = 25 * time.Hour
)

// RedisStore persists identities as hashes keyed by id, with the bounded
// usage history in a companion list. Key TTLs give native reclamation;
// DeleteExpired remains the backstop for logically expired records whose
// keys have not aged out yet.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func identityKey(identityID id.IdentityID) string {
	return identityKeyPrefix + identityID.String()
}

func (s *RedisStore) Save(ctx context.Context, identity *models.Identity) error {
	key := identityKey(identity.ID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"label", identity.Label,
		"created_at", identity.CreatedAt.Unix(),
		"expires_at", identity.ExpiresAt.Unix(),
	)
	pipe.ExpireAt(ctx, key, identity.ExpiresAt.Add(expiryGrace))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	return nil
}

func (s *RedisStore) FindByID(ctx context.Context, identityID id.IdentityID) (*models.Identity, error) {
	fields, err := s.client.HGetAll(ctx, identityKey(identityID)).Result()
	if err != nil {
		return nil, fmt.Errorf("find identity: %w", err)
	}
	if len(fields) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return identityFromFields(identityID, fields)
}

func (s *RedisStore) ExtendExpiry(ctx context.Context, identityID id.IdentityID, expiresAt time.Time) error {
	key := identityKey(identityID)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("extend identity expiry: %w", err)
	}
	if exists == 0 {
		return sentinel.ErrNotFound
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, "expires_at", expiresAt.Unix())
	pipe.ExpireAt(ctx, key, expiresAt.Add(expiryGrace))
	pipe.ExpireAt(ctx, key+usageKeySuffix, expiresAt.Add(expiryGrace))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("extend identity expiry: %w", err)
	}
	return nil
}

func (s *RedisStore) AppendUsage(ctx context.Context, identityID id.IdentityID, entry models.UsageEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal usage entry: %w", err)
	}
	key := identityKey(identityID) + usageKeySuffix
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, int64(store.UsageLogCap-1))
	pipe.Expire(ctx, key, expiryGrace)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append usage entry: %w", err)
	}
	return nil
}

func (s *RedisStore) ListUsage(ctx context.Context, identityID id.IdentityID, limit int) ([]models.UsageEntry, error) {
	if limit <= 0 || limit > store.UsageLogCap {
		limit = store.UsageLogCap
	}
	key := identityKey(identityID) + usageKeySuffix
	raw, err := s.client.LRange(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list usage entries: %w", err)
	}
	entries := make([]models.UsageEntry, 0, len(raw))
	for _, item := range raw {
		var entry models.UsageEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			continue // skip corrupt entries rather than failing the read
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *RedisStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	removed := 0
	iter := s.client.Scan(ctx, 0, identityKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if strings.HasSuffix(key, usageKeySuffix) {
			continue
		}
		raw, err := s.client.HGet(ctx, key, "expires_at").Result()
		if errors.Is(err, redis.Nil) {
			continue // concurrently deleted key
		}
		if err != nil {
			return removed, fmt.Errorf("sweep identities: %w", err)
		}
		expiresAt, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		if now.Unix() > expiresAt {
			if err := s.client.Del(ctx, key, key+usageKeySuffix).Err(); err != nil {
				return removed, fmt.Errorf("sweep identities: %w", err)
			}
			removed++
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("sweep identities: %w", err)
	}
	return removed, nil
}

func identityFromFields(identityID id.IdentityID, fields map[string]string) (*models.Identity, error) {
	createdAt, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse identity created_at: %w", err)
	}
	expiresAt, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse identity expires_at: %w", err)
	}
	return &models.Identity{
		ID:        identityID,
		Label:     fields["label"],
		CreatedAt: time.Unix(createdAt, 0),
		ExpiresAt: time.Unix(expiresAt, 0),
	}, nil
}
