package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ovaphlow/pitchfork/service-identity-go/internal/audit/entity"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisRetention caps each account's audit list.
const DefaultRedisRetention = 500

// RedisLogRepo keeps a capped, newest-first list per account. Entries
// without an account go to a shared list.
type RedisLogRepo struct {
	rdb       redis.UniversalClient
	prefix    string
	retention int64
	now       func() time.Time
}

func NewRedisLogRepo(rdb redis.UniversalClient, prefix string) *RedisLogRepo {
	if prefix == "" {
		prefix = "identity"
	}
	return &RedisLogRepo{rdb: rdb, prefix: prefix, retention: DefaultRedisRetention, now: time.Now}
}

func (r *RedisLogRepo) key(accountID string) string {
	if accountID == "" {
		return r.prefix + ":audit:_"
	}
	return r.prefix + ":audit:" + accountID
}

func (r *RedisLogRepo) Add(ctx context.Context, e entity.Entry) error {
	stamp(&e, r.now)
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	var accountID string
	if e.AccountID != nil {
		accountID = *e.AccountID
	}
	k := r.key(accountID)
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, k, data)
		p.LTrim(ctx, k, 0, r.retention-1)
		return nil
	})
	return err
}

func (r *RedisLogRepo) ListByAccount(ctx context.Context, accountID string, limit int) ([]entity.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	raw, err := r.rdb.LRange(ctx, r.key(accountID), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]entity.Entry, 0, len(raw))
	for _, s := range raw {
		var e entity.Entry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			return nil, fmt.Errorf("decode audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}
