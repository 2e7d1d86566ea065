package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"vidgate/internal/quota"
	id "vidgate/pkg/domain"
	"vidgate/pkg/platform/sentinel"
)

const quotaKeyPrefix = "quota:"

// consumeScript is the conditional increment: usage grows by cost only if
// the result stays within the limit at the moment of the write. Running
// as a single Lua script makes the check and the increment one atomic
// operation, which is what keeps N concurrent consumers at min(N, limit).
var consumeScript = redis.NewScript(`
local used = tonumber(redis.call('HGET', KEYS[1], 'used') or '-1')
local limit = tonumber(redis.call('HGET', KEYS[1], 'limit') or '0')
local resets = tonumber(redis.call('HGET', KEYS[1], 'resets_at') or '0')
if used < 0 then
    return {-1, 0, 0, 0}
end
local cost = tonumber(ARGV[1])
if used + cost > limit then
    return {used, limit, resets, 0}
end
used = redis.call('HINCRBY', KEYS[1], 'used', cost)
return {used, limit, resets, 1}
`)

// resetIfExpiredScript zeroes usage only when the stored reset time has
// passed, so concurrent auto-renewals observe exactly one reset per
// expiry crossing.
var resetIfExpiredScript = redis.NewScript(`
local resets = tonumber(redis.call('HGET', KEYS[1], 'resets_at') or '0')
if resets == 0 then
    return -1
end
if resets >= tonumber(ARGV[1]) then
    return 0
end
redis.call('HSET', KEYS[1], 'used', 0, 'resets_at', ARGV[2])
redis.call('EXPIREAT', KEYS[1], ARGV[3])
return 1
`)

// RedisStore persists quota windows as hashes keyed by identity id. Key
// TTLs are set to the reset time plus retentionGrace.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func quotaKey(identityID id.IdentityID) string {
	return quotaKeyPrefix + identityID.String()
}

func (s *RedisStore) Get(ctx context.Context, identityID id.IdentityID) (*quota.Quota, error) {
	fields, err := s.client.HGetAll(ctx, quotaKey(identityID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get quota: %w", err)
	}
	if len(fields) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return quotaFromFields(identityID, fields)
}

func (s *RedisStore) Init(ctx context.Context, identityID id.IdentityID, limit int64, resetsAt time.Time) error {
	key := quotaKey(identityID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"used", 0,
		"limit", limit,
		"resets_at", resetsAt.Unix(),
	)
	pipe.ExpireAt(ctx, key, resetsAt.Add(retentionGrace))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("init quota: %w", err)
	}
	return nil
}

func (s *RedisStore) Consume(ctx context.Context, identityID id.IdentityID, cost int64) (*quota.Quota, bool, error) {
	res, err := consumeScript.Run(ctx, s.client, []string{quotaKey(identityID)}, cost).Int64Slice()
	if err != nil {
		return nil, false, fmt.Errorf("consume quota: %w", err)
	}
	if len(res) != 4 {
		return nil, false, fmt.Errorf("consume quota: unexpected script result %v", res)
	}
	if res[0] < 0 {
		// Fail closed: no record means no budget.
		return &quota.Quota{IdentityID: identityID}, false, nil
	}
	q := &quota.Quota{
		IdentityID: identityID,
		Used:       res[0],
		Limit:      res[1],
		ResetsAt:   time.Unix(res[2], 0),
	}
	return q, res[3] == 1, nil
}

func (s *RedisStore) ResetIfExpired(ctx context.Context, identityID id.IdentityID, now, newResetsAt time.Time) (bool, error) {
	res, err := resetIfExpiredScript.Run(ctx, s.client, []string{quotaKey(identityID)},
		now.Unix(), newResetsAt.Unix(), newResetsAt.Add(retentionGrace).Unix()).Int64()
	if err != nil {
		return false, fmt.Errorf("reset quota: %w", err)
	}
	if res < 0 {
		return false, sentinel.ErrNotFound
	}
	return res == 1, nil
}

func (s *RedisStore) Reset(ctx context.Context, identityID id.IdentityID, newResetsAt time.Time) error {
	key := quotaKey(identityID)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("reset quota: %w", err)
	}
	if exists == 0 {
		return sentinel.ErrNotFound
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, "used", 0, "resets_at", newResetsAt.Unix())
	pipe.ExpireAt(ctx, key, newResetsAt.Add(retentionGrace))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("reset quota: %w", err)
	}
	return nil
}

// DeleteExpired is mostly a no-op: key TTLs reclaim lapsed windows. The
// scan remains as a backstop for records whose TTL was lost.
func (s *RedisStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	removed := 0
	iter := s.client.Scan(ctx, 0, quotaKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := s.client.HGet(ctx, key, "resets_at").Result()
		if err != nil {
			continue
		}
		resetsAt, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		if now.Unix()-resetsAt > int64(retentionGrace.Seconds()) {
			if err := s.client.Del(ctx, key).Err(); err != nil {
				return removed, fmt.Errorf("sweep quotas: %w", err)
			}
			removed++
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("sweep quotas: %w", err)
	}
	return removed, nil
}

func quotaFromFields(identityID id.IdentityID, fields map[string]string) (*quota.Quota, error) {
	used, err := strconv.ParseInt(fields["used"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse quota used: %w", err)
	}
	limit, err := strconv.ParseInt(fields["limit"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse quota limit: %w", err)
	}
	resetsAt, err := strconv.ParseInt(fields["resets_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse quota resets_at: %w", err)
	}
	return &quota.Quota{
		IdentityID: identityID,
		Used:       used,
		Limit:      limit,
		ResetsAt:   time.Unix(resetsAt, 0),
	}, nil
}
