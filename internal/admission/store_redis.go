package admission

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/HanTheDev/llm-fusion-gateway/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	callerKeyPrefix = "admission:caller:"
	blacklistKey    = "admission:blacklist"
)

// casScript swaps the profile only if the stored version matches ARGV[1].
// An empty ARGV[2] deletes the key.
var casScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'version')
if not cur then cur = '0' end
if cur ~= ARGV[1] then return 0 end
if ARGV[2] == '' then
  redis.call('DEL', KEYS[1])
  return 1
end
redis.call('HSET', KEYS[1], 'version', tostring(tonumber(ARGV[1]) + 1), 'profile', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// RedisStore shares admission state between gateway instances.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to redisURL. Profiles expire after ttl without writes.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	return NewRedisStoreWithClient(redis.NewClient(opt), ttl), nil
}

func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultConfig().IdleTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func callerKey(id string) string { return callerKeyPrefix + id }

func (s *RedisStore) Get(ctx context.Context, callerID string) (*models.CallerProfile, uint64, error) {
	vals, err := s.client.HMGet(ctx, callerKey(callerID), "version", "profile").Result()
	if err != nil {
		return nil, 0, err
	}
	rawVersion, ok1 := vals[0].(string)
	rawProfile, ok2 := vals[1].(string)
	if !ok1 || !ok2 {
		return nil, 0, nil
	}

	version, err := strconv.ParseUint(rawVersion, 10, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("caller %s: bad version: %w", callerID, err)
	}
	var p models.CallerProfile
	if err := json.Unmarshal([]byte(rawProfile), &p); err != nil {
		return nil, 0, fmt.Errorf("caller %s: bad profile: %w", callerID, err)
	}
	return &p, version, nil
}

func (s *RedisStore) Put(ctx context.Context, p *models.CallerProfile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}

	key := callerKey(p.CallerID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, "version", 1)
		pipe.HSet(ctx, key, "profile", data)
		pipe.PExpire(ctx, key, s.ttl)
		return nil
	})
	return err
}

func (s *RedisStore) CompareAndSwap(ctx context.Context, callerID string, version uint64, p *models.CallerProfile) (bool, error) {
	var data []byte
	if p != nil {
		var err error
		if data, err = json.Marshal(p); err != nil {
			return false, err
		}
	}

	res, err := casScript.Run(ctx, s.client, []string{callerKey(callerID)},
		strconv.FormatUint(version, 10), string(data), s.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (s *RedisStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, callerKeyPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), callerKeyPrefix))
	}
	return keys, iter.Err()
}

func (s *RedisStore) IsBlacklisted(ctx context.Context, ip string) (bool, error) {
	return s.client.SIsMember(ctx, blacklistKey, ip).Result()
}

func (s *RedisStore) Blacklist(ctx context.Context, ip string) error {
	return s.client.SAdd(ctx, blacklistKey, ip).Err()
}

func (s *RedisStore) Unblacklist(ctx context.Context, ip string) error {
	return s.client.SRem(ctx, blacklistKey, ip).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
