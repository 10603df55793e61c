package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule 一条按调用方计数的滑动窗口规则
type Rule struct {
	Prefix string
	Limit  int
	Window time.Duration
}

var (
	ShortenRule  = Rule{Prefix: "shorten", Limit: 10, Window: time.Minute}
	RedirectRule = Rule{Prefix: "redirect", Limit: 100, Window: time.Minute}
	UploadRule   = Rule{Prefix: "upload", Limit: 10, Window: time.Minute}
	LoginRule    = Rule{Prefix: "admin-login", Limit: 5, Window: time.Minute}
)

// Key rl:{prefix}:{subject}
func (r Rule) Key(subject string) string {
	return "rl:" + r.Prefix + ":" + subject
}

// ZSET 成员是一次请求，score 是毫秒时间戳。
// 超限的请求不留在窗口里，返回最早一条滑出窗口还要等多久。
var slidingWindow = redis.NewScript(`
local now, window, limit = tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", KEYS[1], 0, now - window)
redis.call("ZADD", KEYS[1], now, ARGV[4])
redis.call("PEXPIRE", KEYS[1], window)
if redis.call("ZCARD", KEYS[1]) <= limit then
  return {1, 0}
end
redis.call("ZREM", KEYS[1], ARGV[4])
local head = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
if head[2] == nil then
  return {0, window}
end
return {0, math.max(0, tonumber(head[2]) + window - now)}
`)

type Limiter struct {
	client redis.Scripter
	seq    atomic.Uint64
	now    func() time.Time
}

func NewLimiter(client redis.Scripter) *Limiter {
	return &Limiter{client: client, now: time.Now}
}

// Allow 超限时 retryAfter 是建议的等待时间
func (l *Limiter) Allow(ctx context.Context, rule Rule, subject string) (allowed bool, retryAfter time.Duration, err error) {
	now := l.now()
	// 同一毫秒内可能有多次请求，member 加序号保证唯一
	member := strconv.FormatInt(now.UnixNano(), 36) + "." + strconv.FormatUint(l.seq.Add(1), 36)

	res, err := slidingWindow.Run(ctx, l.client, []string{rule.Key(subject)},
		now.UnixMilli(), rule.Window.Milliseconds(), rule.Limit, member).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("ratelimit %s: %w", rule.Prefix, err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("ratelimit %s: unexpected script result %v", rule.Prefix, res)
	}
	return res[0] == 1, time.Duration(res[1]) * time.Millisecond, nil
}
