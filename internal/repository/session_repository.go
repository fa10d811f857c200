package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agrifin/auth-service/internal/model"
)

const (
	sessionKeyPrefix   = "session:"
	userSessionsPrefix = "user_sessions:"
)

// SessionRepo holds refresh sessions in Redis. Each session is a
// hash keyed by session id whose TTL mirrors the refresh expiry, and
// a per-user set indexes active session ids for bulk revocation.
//
// Rotation is a single Lua script: the stored hash is compared and
// swapped in one atomic step, so two concurrent rotations on the same
// session see at most one winner, and replay of a superseded token
// deletes the whole session before the caller learns anything.
type SessionRepo struct{ rdb *redis.Client }

func NewSessionRepo(rdb *redis.Client) *SessionRepo { return &SessionRepo{rdb: rdb} }

func sessionKey(id string) string       { return sessionKeyPrefix + id }
func userSessionsKey(uid uint64) string { return fmt.Sprintf("%s%d", userSessionsPrefix, uid) }

// rotateScript performs the conditional rotation. Result codes:
// {-1} missing, {-2} expired (deleted), {-3} replay (deleted),
// {1, user_id} rotated. The expiry check runs before the hash
// comparison so a stale-but-present record never rotates.
var rotateScript = redis.NewScript(`
	local hash = redis.call('HGET', KEYS[1], 'token_hash')
	if not hash then
		return {-1}
	end
	local uid = redis.call('HGET', KEYS[1], 'user_id')
	local idx = ARGV[4] .. uid
	local exp = tonumber(redis.call('HGET', KEYS[1], 'expires_at'))
	local now = tonumber(ARGV[1])
	if exp and exp <= now then
		redis.call('DEL', KEYS[1])
		redis.call('SREM', idx, ARGV[5])
		return {-2}
	end
	if hash ~= ARGV[2] then
		redis.call('DEL', KEYS[1])
		redis.call('SREM', idx, ARGV[5])
		return {-3}
	end
	redis.call('HSET', KEYS[1], 'token_hash', ARGV[3], 'expires_at', ARGV[6])
	redis.call('EXPIREAT', KEYS[1], ARGV[6])
	redis.call('EXPIREAT', idx, ARGV[6])
	return {1, tonumber(uid)}
`)

// invalidateScript removes a session and its index entry together.
var invalidateScript = redis.NewScript(`
	local uid = redis.call('HGET', KEYS[1], 'user_id')
	if not uid then
		return 0
	end
	redis.call('DEL', KEYS[1])
	redis.call('SREM', ARGV[1] .. uid, ARGV[2])
	return 1
`)

// Create stores a new session record and indexes it for its user.
func (r *SessionRepo) Create(ctx context.Context, id string, userID uint64, tokenHash string, exp time.Time) error {
	now := time.Now().UTC()
	key := sessionKey(id)
	idx := userSessionsKey(userID)
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"user_id", userID,
		"token_hash", tokenHash,
		"expires_at", exp.Unix(),
		"created_at", now.Unix())
	pipe.ExpireAt(ctx, key, exp)
	pipe.SAdd(ctx, idx, id)
	pipe.ExpireAt(ctx, idx, exp)
	_, err := pipe.Exec(ctx)
	return err
}

// Rotate swaps the stored token hash for a session in one atomic
// compare-and-swap. On hash mismatch the session is destroyed and
// ErrReplayDetected returned; expired and missing sessions map to
// their own sentinels. Returns the owning user id on success.
func (r *SessionRepo) Rotate(ctx context.Context, id, presentedHash, newHash string, newExp time.Time) (uint64, error) {
	vals, err := rotateScript.Run(ctx, r.rdb, []string{sessionKey(id)},
		time.Now().UTC().Unix(),
		presentedHash,
		newHash,
		userSessionsPrefix,
		id,
		newExp.Unix(),
	).Int64Slice()
	if err != nil {
		return 0, err
	}
	if len(vals) == 0 {
		return 0, ErrSessionNotFound
	}
	switch vals[0] {
	case 1:
		return uint64(vals[1]), nil
	case -2:
		return 0, ErrSessionExpired
	case -3:
		return 0, ErrReplayDetected
	default:
		return 0, ErrSessionNotFound
	}
}

// Find loads a session for inspection. Expiry is checked against the
// stored timestamp, not only the key TTL.
func (r *SessionRepo) Find(ctx context.Context, id string) (model.Session, error) {
	m, err := r.rdb.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return model.Session{}, err
	}
	if len(m) == 0 {
		return model.Session{}, ErrSessionNotFound
	}
	s := model.Session{ID: id, TokenHash: m["token_hash"]}
	if v, err := strconv.ParseUint(m["user_id"], 10, 64); err == nil {
		s.UserID = v
	}
	if v, err := strconv.ParseInt(m["expires_at"], 10, 64); err == nil {
		s.ExpiresAt = time.Unix(v, 0).UTC()
	}
	if v, err := strconv.ParseInt(m["created_at"], 10, 64); err == nil {
		s.CreatedAt = time.Unix(v, 0).UTC()
	}
	if !s.ExpiresAt.IsZero() && !time.Now().UTC().Before(s.ExpiresAt) {
		return model.Session{}, ErrSessionExpired
	}
	return s, nil
}

// Invalidate removes a session. Missing sessions are not an error;
// logout is idempotent.
func (r *SessionRepo) Invalidate(ctx context.Context, id string) error {
	return invalidateScript.Run(ctx, r.rdb, []string{sessionKey(id)},
		userSessionsPrefix, id).Err()
}

// InvalidateAllForUser destroys every active session of a user. Used
// by logout-all and after a password reset.
func (r *SessionRepo) InvalidateAllForUser(ctx context.Context, userID uint64) error {
	idx := userSessionsKey(userID)
	ids, err := r.rdb.SMembers(ctx, idx).Result()
	if err != nil {
		return err
	}
	pipe := r.rdb.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, sessionKey(id))
	}
	pipe.Del(ctx, idx)
	_, err = pipe.Exec(ctx)
	return err
}
