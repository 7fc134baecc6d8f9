package httpmiddleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"campustrack/internal/apperr"
	"campustrack/internal/logging"
	"campustrack/internal/metrics"
	"campustrack/internal/respond"
)

var errRateLimited = apperr.New(http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests, please try again later")

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
	Capacity() int
}

// MemoryLimiter is an in-process token bucket per key.
type MemoryLimiter struct {
	capacity int
	rate     int
	mu       sync.Mutex
	state    map[string]*bucket
	now      func() time.Time
}

type bucket struct {
	tokens int
	last   time.Time
}

// NewMemoryLimiter creates a limiter with capacity tokens refilled at
// perMinute tokens per minute.
func NewMemoryLimiter(capacity, perMinute int) *MemoryLimiter {
	if capacity <= 0 {
		capacity = perMinute
	}
	return &MemoryLimiter{
		capacity: capacity,
		rate:     perMinute,
		state:    make(map[string]*bucket),
		now:      time.Now,
	}
}

func (l *MemoryLimiter) Capacity() int { return l.capacity }

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.state[key]
	now := l.now()
	if !ok {
		b = &bucket{tokens: l.capacity - 1, last: now}
		l.state[key] = b
		return Decision{Allowed: true, Remaining: b.tokens}, nil
	}
	elapsed := now.Sub(b.last).Minutes()
	refill := int(elapsed * float64(l.rate))
	if refill > 0 {
		b.tokens += refill
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.last = now
	}
	if b.tokens <= 0 {
		retry := time.Minute
		if l.rate > 0 {
			retry = time.Duration(float64(time.Minute)/float64(l.rate)) - now.Sub(b.last)
		}
		if retry < 0 {
			retry = 0
		}
		return Decision{RetryAfter: retry}, nil
	}
	b.tokens--
	return Decision{Allowed: true, Remaining: b.tokens}, nil
}

var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local interval_ms = tonumber(ARGV[3])
local ttl_seconds = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if tokens == nil or last_refill == nil then
	tokens = capacity
	last_refill = now_ms
end

if interval_ms > 0 then
	local elapsed = math.max(0, now_ms - last_refill)
	local intervals = math.floor(elapsed / interval_ms)
	if intervals > 0 then
		tokens = math.min(capacity, tokens + intervals)
		last_refill = last_refill + (intervals * interval_ms)
	end
end

local allowed = 0
local retry_after_ms = 0
if tokens > 0 then
	allowed = 1
	tokens = tokens - 1
else
	retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
redis.call('EXPIRE', key, ttl_seconds)

return { allowed, tokens, retry_after_ms }
`)

// RedisLimiter shares one token bucket per key across API instances.
type RedisLimiter struct {
	rdb       redis.Scripter
	capacity  int
	perMinute int
	prefix    string
}

func NewRedisLimiter(rdb redis.Scripter, capacity, perMinute int) *RedisLimiter {
	if capacity <= 0 {
		capacity = perMinute
	}
	return &RedisLimiter{rdb: rdb, capacity: capacity, perMinute: perMinute, prefix: "campustrack:ratelimit"}
}

func (l *RedisLimiter) Capacity() int { return l.capacity }

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	interval := int64(60000)
	if l.perMinute > 0 {
		interval = 60000 / int64(l.perMinute)
	}
	vals, err := tokenBucketScript.Run(ctx, l.rdb, []string{l.prefix + ":" + key},
		time.Now().UnixMilli(), l.capacity, interval, 120).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(vals) != 3 {
		return Decision{}, fmt.Errorf("rate limit script: unexpected result %v", vals)
	}
	return Decision{
		Allowed:    vals[0] == 1,
		Remaining:  int(vals[1]),
		RetryAfter: time.Duration(vals[2]) * time.Millisecond,
	}, nil
}

// RateLimit enforces l per client IP. Limiter errors let the request
// through.
func RateLimit(l Limiter, log *slog.Logger) gin.HandlerFunc {
	log = logging.OrDefault(log)
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		d, err := l.Allow(c.Request.Context(), ip)
		if err != nil {
			log.WarnContext(c.Request.Context(), "rate limiter unavailable", "err", err)
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(l.Capacity()))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			metrics.RateLimited.Inc()
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
			respond.Abort(c, errRateLimited)
			return
		}
		c.Next()
	}
}
