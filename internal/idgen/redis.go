package idgen

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

var nextIDScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  redis.call("SET", KEYS[1], ARGV[1])
end
return redis.call("INCR", KEYS[1])
`)

// RedisProvider allocates ids with INCR so several processes can share one sequence.
type RedisProvider struct {
	client  redis.UniversalClient
	prefix  string
	startID int64
}

func NewRedisProvider(client redis.UniversalClient, prefix string, startID int64) *RedisProvider {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "trading"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")
	if startID < 0 {
		startID = DefaultStartID
	}

	return &RedisProvider{
		client:  client,
		prefix:  trimmedPrefix,
		startID: startID,
	}
}

func (p *RedisProvider) NextID(ctx context.Context, scope string) (int64, error) {
	key, err := normalizeScope(scope)
	if err != nil {
		return 0, err
	}

	id, err := nextIDScript.Run(ctx, p.client, []string{p.key(key)}, p.startID).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate %s id: %w", key, err)
	}
	return id, nil
}

func (p *RedisProvider) key(scope string) string {
	return fmt.Sprintf("%s:ids:%s", p.prefix, scope)
}
