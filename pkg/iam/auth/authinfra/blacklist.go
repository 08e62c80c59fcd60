package authinfra

import (
	"context"
	"fmt"
	"time"

	"github.com/Abraxas-365/aegis/pkg/errx"
	"github.com/Abraxas-365/aegis/pkg/iam/auth"
	"github.com/redis/go-redis/v9"
)

const blacklistKeyPrefix = "blacklist:"

// RedisBlacklist implements auth.Blacklist over Redis. Each entry's TTL is
// the time remaining until the revoked token's own expiry, so the set is
// bounded by the tokens revoked in the last access-token lifetime and needs
// no sweeping.
type RedisBlacklist struct {
	rdb *redis.Client
}

// NewRedisBlacklist creates the gate.
func NewRedisBlacklist(rdb *redis.Client) auth.Blacklist {
	return &RedisBlacklist{rdb: rdb}
}

func blacklistKey(jti string) string { return fmt.Sprintf("%s%s", blacklistKeyPrefix, jti) }

func (b *RedisBlacklist) Add(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		// Already past its natural expiry; nothing to revoke.
		return nil
	}
	if err := b.rdb.Set(ctx, blacklistKey(jti), 1, ttl).Err(); err != nil {
		return errx.Wrap(err, "failed to blacklist token", errx.TypeInternal).WithDetail("jti", jti)
	}
	return nil
}

func (b *RedisBlacklist) Contains(ctx context.Context, jti string) (bool, error) {
	n, err := b.rdb.Exists(ctx, blacklistKey(jti)).Result()
	if err != nil {
		return false, errx.Wrap(err, "failed to check token blacklist", errx.TypeInternal)
	}
	return n > 0, nil
}

var _ auth.Blacklist = (*RedisBlacklist)(nil)
