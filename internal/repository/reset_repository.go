package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const resetKeyPrefix = "pwreset:"

// ResetRepo stores single-use password-reset tokens in Redis. Only
// the SHA-256 hash of the secret part is persisted; the raw token is
// delivered to the user out of band by the notification service.
type ResetRepo struct{ rdb *redis.Client }

func NewResetRepo(rdb *redis.Client) *ResetRepo { return &ResetRepo{rdb: rdb} }

func resetKey(id string) string { return resetKeyPrefix + id }

// consumeScript validates and deletes a reset token in one step so a
// token can never be redeemed twice, even by concurrent requests.
var consumeScript = redis.NewScript(`
	local hash = redis.call('HGET', KEYS[1], 'token_hash')
	if not hash or hash ~= ARGV[1] then
		return {-1}
	end
	local uid = redis.call('HGET', KEYS[1], 'user_id')
	redis.call('DEL', KEYS[1])
	return {1, tonumber(uid)}
`)

// Create stores a reset record under the caller-chosen id. The ttl
// bounds how long the emailed token remains redeemable.
func (r *ResetRepo) Create(ctx context.Context, id string, userID uint64, tokenHash string, ttl time.Duration) error {
	key := resetKey(id)
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, key, "user_id", userID, "token_hash", tokenHash)
	pipe.PExpire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Consume redeems a reset token exactly once, returning the owning
// user id. Unknown, expired, mismatched and already-used tokens are
// indistinguishable to the caller (ErrResetTokenInvalid).
func (r *ResetRepo) Consume(ctx context.Context, id, tokenHash string) (uint64, error) {
	vals, err := consumeScript.Run(ctx, r.rdb, []string{resetKey(id)}, tokenHash).Int64Slice()
	if err != nil {
		return 0, err
	}
	if len(vals) < 1 || vals[0] != 1 {
		return 0, ErrResetTokenInvalid
	}
	return uint64(vals[1]), nil
}
