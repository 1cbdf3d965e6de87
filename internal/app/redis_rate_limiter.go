package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript keeps one sorted-set member per attempt scored by its
// timestamp in milliseconds. It returns the attempts inside the window,
// including this one, and the milliseconds until the oldest of them expires.
var slidingWindowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
redis.call("ZADD", KEYS[1], now, ARGV[3])
redis.call("PEXPIRE", KEYS[1], window)
local attempts = redis.call("ZCARD", KEYS[1])
local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
local wait = window
if oldest[2] then
  wait = tonumber(oldest[2]) + window - now
end
return {attempts, wait}
`)

const minRateWindow = time.Second

// RedisPurchaseRateLimiter counts purchase attempts per user over a sliding
// window shared by every API replica.
type RedisPurchaseRateLimiter struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisPurchaseRateLimiter(client redis.UniversalClient, prefix string) *RedisPurchaseRateLimiter {
	base := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if base == "" {
		base = "trading"
	}
	return &RedisPurchaseRateLimiter{
		client: client,
		prefix: base + ":rate_limit",
		now:    time.Now,
	}
}

// ConsumeRateLimit records one attempt and reports how many attempts fall in the
// current window and how long until the oldest one leaves it.
func (r *RedisPurchaseRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	if r == nil || r.client == nil || limit <= 0 || window <= 0 {
		return 0, 0, nil
	}
	key, ok := r.key(scope, subject)
	if !ok {
		return 0, 0, nil
	}
	if window < minRateWindow {
		window = minRateWindow
	}

	nowMs := r.now().UnixMilli()
	raw, err := slidingWindowScript.Run(ctx, r.client, []string{key}, nowMs, window.Milliseconds(), attemptMember(nowMs)).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("purchase rate limit script failed: %w", err)
	}
	return parseWindowResult(raw, window)
}

func (r *RedisPurchaseRateLimiter) key(scope, subject string) (string, bool) {
	scope = strings.TrimSpace(scope)
	subject = strings.TrimSpace(subject)
	if scope == "" || subject == "" {
		return "", false
	}
	return r.prefix + ":" + scope + ":" + subject, true
}

// attemptMember is unique so concurrent attempts in the same millisecond all count.
func attemptMember(nowMs int64) string {
	return fmt.Sprintf("%d-%s", nowMs, uuid.NewString())
}

// parseWindowResult converts the script reply into (attempts, retry-after seconds).
func parseWindowResult(raw interface{}, window time.Duration) (int, int, error) {
	reply, ok := raw.([]interface{})
	if !ok || len(reply) != 2 {
		return 0, 0, fmt.Errorf("unexpected rate limit reply %T", raw)
	}
	attempts, ok := reply[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected rate limit attempt count %T", reply[0])
	}
	waitMs, ok := reply[1].(int64)
	if !ok {
		return int(attempts), 0, fmt.Errorf("unexpected rate limit wait %T", reply[1])
	}

	wait := time.Duration(waitMs) * time.Millisecond
	if wait <= 0 || wait > window {
		wait = window
	}
	// Round up to whole seconds for the Retry-After header.
	seconds := int((wait + time.Second - 1) / time.Second)
	return int(attempts), seconds, nil
}
