package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ovaphlow/pitchfork/service-identity-go/internal/account/entity"
	"github.com/redis/go-redis/v9"
)

// RedisAccountRepo keeps accounts as JSON documents with secondary keys for
// email and username lookup. It needs no schema.
type RedisAccountRepo struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisAccountRepo(rdb redis.UniversalClient, prefix string) *RedisAccountRepo {
	if prefix == "" {
		prefix = "identity"
	}
	return &RedisAccountRepo{rdb: rdb, prefix: prefix, now: time.Now}
}

// record mirrors entity.Account including the fields the entity hides from
// JSON responses.
type record struct {
	ID                      string             `json:"id"`
	Email                   string             `json:"email"`
	Username                string             `json:"username"`
	PasswordHash            string             `json:"password_hash"`
	EmailConfirmed          bool               `json:"email_confirmed"`
	Role                    entity.Role        `json:"role"`
	FailedAttemptCount      int                `json:"failed_attempt_count"`
	LockoutEnabled          bool               `json:"lockout_enabled"`
	LockoutUntil            *time.Time         `json:"lockout_until,omitempty"`
	RefreshTokenFingerprint *string            `json:"refresh_token_fingerprint,omitempty"`
	RefreshTokenExpiry      *time.Time         `json:"refresh_token_expiry,omitempty"`
	ConfirmationCode        *string            `json:"confirmation_code,omitempty"`
	ExternalIdentityIDs     entity.ExternalIDs `json:"external_ids,omitempty"`
	CreatedAt               time.Time          `json:"created_at"`
	UpdatedAt               time.Time          `json:"updated_at"`
}

func toRecord(a *entity.Account) record {
	return record{
		ID:                      a.ID,
		Email:                   a.Email,
		Username:                a.Username,
		PasswordHash:            a.PasswordHash,
		EmailConfirmed:          a.EmailConfirmed,
		Role:                    a.Role,
		FailedAttemptCount:      a.FailedAttemptCount,
		LockoutEnabled:          a.LockoutEnabled,
		LockoutUntil:            a.LockoutUntil,
		RefreshTokenFingerprint: a.RefreshTokenFingerprint,
		RefreshTokenExpiry:      a.RefreshTokenExpiry,
		ConfirmationCode:        a.ConfirmationCode,
		ExternalIdentityIDs:     a.ExternalIdentityIDs,
		CreatedAt:               a.CreatedAt,
		UpdatedAt:               a.UpdatedAt,
	}
}

func (r record) account() *entity.Account {
	return &entity.Account{
		ID:                      r.ID,
		Email:                   r.Email,
		Username:                r.Username,
		PasswordHash:            r.PasswordHash,
		EmailConfirmed:          r.EmailConfirmed,
		Role:                    r.Role,
		FailedAttemptCount:      r.FailedAttemptCount,
		LockoutEnabled:          r.LockoutEnabled,
		LockoutUntil:            r.LockoutUntil,
		RefreshTokenFingerprint: r.RefreshTokenFingerprint,
		RefreshTokenExpiry:      r.RefreshTokenExpiry,
		ConfirmationCode:        r.ConfirmationCode,
		ExternalIdentityIDs:     r.ExternalIdentityIDs,
		CreatedAt:               r.CreatedAt,
		UpdatedAt:               r.UpdatedAt,
	}
}

func (r *RedisAccountRepo) accountKey(id string) string {
	return r.prefix + ":account:" + id
}

func (r *RedisAccountRepo) emailKey(email string) string {
	return r.prefix + ":account:email:" + entity.NormalizeEmail(email)
}

func (r *RedisAccountRepo) usernameKey(username string) string {
	return r.prefix + ":account:username:" + strings.ToLower(strings.TrimSpace(username))
}

// FindByID returns nil, nil when the key is absent.
func (r *RedisAccountRepo) FindByID(ctx context.Context, id string) (*entity.Account, error) {
	raw, err := r.rdb.Get(ctx, r.accountKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode account %s: %w", id, err)
	}
	return rec.account(), nil
}

func (r *RedisAccountRepo) FindByEmail(ctx context.Context, email string) (*entity.Account, error) {
	id, err := r.rdb.Get(ctx, r.emailKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return r.FindByID(ctx, id)
}

// createScript writes the document and both index keys in one step, or
// nothing when either index key is taken.
var createScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[2]) == 1 or redis.call("EXISTS", KEYS[3]) == 1 then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1])
redis.call("SET", KEYS[2], ARGV[2])
redis.call("SET", KEYS[3], ARGV[2])
return 1
`)

// Create stores the document together with its email and username index
// keys. Two concurrent sign-ups cannot both win, and a failed call leaves
// no index key behind.
func (r *RedisAccountRepo) Create(ctx context.Context, a *entity.Account) error {
	now := r.now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	a.Email = entity.NormalizeEmail(a.Email)

	raw, err := json.Marshal(toRecord(a))
	if err != nil {
		return fmt.Errorf("encode account %s: %w", a.ID, err)
	}
	keys := []string{r.accountKey(a.ID), r.emailKey(a.Email), r.usernameKey(a.Username)}
	created, err := createScript.Run(ctx, r.rdb, keys, raw, a.ID).Int()
	if err != nil {
		return err
	}
	if created == 0 {
		return ErrDuplicate
	}
	return nil
}

// Update overwrites the document. Last writer wins.
func (r *RedisAccountRepo) Update(ctx context.Context, a *entity.Account) error {
	a.UpdatedAt = r.now().UTC()
	return r.put(ctx, a)
}

func (r *RedisAccountRepo) put(ctx context.Context, a *entity.Account) error {
	raw, err := json.Marshal(toRecord(a))
	if err != nil {
		return fmt.Errorf("encode account %s: %w", a.ID, err)
	}
	return r.rdb.Set(ctx, r.accountKey(a.ID), raw, 0).Err()
}
