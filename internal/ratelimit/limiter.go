// Package ratelimit implements a fixed-window attempt counter on
// Redis, keyed by (client identity, endpoint scope). Counters are
// created lazily on the first recorded attempt and expire with the
// window's key TTL, so no background sweeping is needed. Redis
// evaluates expiry before reads, which gives the required ordering:
// a request at a window boundary always observes a consistent,
// non-negative count.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable is returned when the backing store cannot be
// reached. Callers decide between fail-open and fail-closed using
// the policy for the endpoint.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// Policy configures one endpoint scope: at most Limit recorded
// attempts per Window. FailOpen selects the behavior when the store
// is down; security-critical scopes (login, refresh, reset) keep it
// false so outages reject rather than admit unlimited attempts.
type Policy struct {
	Limit    int
	Window   time.Duration
	FailOpen bool
}

// KeyStrategy selects what identifies a client for throttling
// purposes. Keying only by IP lets one hostile network exhaust a
// shared NAT's budget; keying only by account lets anyone lock an
// account out remotely. The combined default bounds both.
type KeyStrategy int

const (
	KeyByIPAccount KeyStrategy = iota
	KeyByIP
	KeyByAccount
)

// Key builds the client identity portion of a counter key.
func (s KeyStrategy) Key(ip, account string) string {
	if ip == "" {
		ip = "unknown"
	}
	if account == "" {
		account = "anon"
	}
	switch s {
	case KeyByIP:
		return "ip:" + ip
	case KeyByAccount:
		return "acct:" + strings.ToLower(account)
	default:
		return "ip:" + ip + ":acct:" + strings.ToLower(account)
	}
}

// allowScript reads the current count and remaining window without
// incrementing. A missing (or lazily expired) key reads as zero.
var allowScript = redis.NewScript(`
	local count = redis.call('GET', KEYS[1])
	if not count then
		return {0, -1}
	end
	return {tonumber(count), redis.call('PTTL', KEYS[1])}
`)

// recordScript increments the counter and starts the window on first
// use. The INCR+PEXPIRE pair runs as one script so two concurrent
// first attempts cannot leave an unexpiring counter behind.
var recordScript = redis.NewScript(`
	local count = redis.call('INCR', KEYS[1])
	if count == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return count
`)

// Limiter is a fixed-window counter store shared by all endpoint
// scopes. The zero limit in a Policy disables throttling for that
// scope.
type Limiter struct {
	rdb    *redis.Client
	prefix string
}

func New(rdb *redis.Client, prefix string) *Limiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &Limiter{rdb: rdb, prefix: prefix}
}

func (l *Limiter) counterKey(scope, key string) string {
	return fmt.Sprintf("%s:%s:%s", l.prefix, scope, key)
}

// Allow reports whether another attempt is currently permitted for
// the key. It never increments. The returned duration is how long
// the caller should wait when denied (zero when allowed).
func (l *Limiter) Allow(ctx context.Context, scope, key string, p Policy) (bool, time.Duration, error) {
	if p.Limit <= 0 {
		return true, 0, nil
	}
	if l.rdb == nil {
		return false, 0, ErrStoreUnavailable
	}
	vals, err := allowScript.Run(ctx, l.rdb, []string{l.counterKey(scope, key)}).Int64Slice()
	if err != nil || len(vals) != 2 {
		return false, 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	count, pttl := vals[0], vals[1]
	if count < int64(p.Limit) {
		return true, 0, nil
	}
	retry := p.Window
	if pttl > 0 {
		retry = time.Duration(pttl) * time.Millisecond
	}
	return false, retry, nil
}

// Record counts one attempt against the key, initializing the window
// on first use.
func (l *Limiter) Record(ctx context.Context, scope, key string, p Policy) error {
	if p.Limit <= 0 {
		return nil
	}
	if l.rdb == nil {
		return ErrStoreUnavailable
	}
	err := recordScript.Run(ctx, l.rdb, []string{l.counterKey(scope, key)}, p.Window.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
