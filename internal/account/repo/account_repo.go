package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/account/entity"
)

// ErrDuplicate is returned by Create when the email or username is taken.
var ErrDuplicate = errors.New("account already exists")

const uniqueViolation = "23505"

const selectAccount = `SELECT id, email, username, password_hash, email_confirmed, role,
		failed_attempt_count, lockout_enabled, lockout_until,
		refresh_token_fingerprint, refresh_token_expiry, confirmation_code,
		external_ids, created_at, updated_at
	FROM accounts`

// AccountRepo provides data access for the accounts table using sqlx.
type AccountRepo struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewAccountRepo(db *sqlx.DB) *AccountRepo {
	return &AccountRepo{db: db, now: time.Now}
}

// FindByID returns nil, nil when no row matches.
func (r *AccountRepo) FindByID(ctx context.Context, id string) (*entity.Account, error) {
	return r.get(ctx, selectAccount+` WHERE id=$1`, id)
}

// FindByEmail matches case-insensitively (citext column).
func (r *AccountRepo) FindByEmail(ctx context.Context, email string) (*entity.Account, error) {
	return r.get(ctx, selectAccount+` WHERE email=$1`, entity.NormalizeEmail(email))
}

func (r *AccountRepo) get(ctx context.Context, q string, arg any) (*entity.Account, error) {
	var row entity.Account
	if err := r.db.GetContext(ctx, &row, q, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// Create inserts a new account row. The id is assigned by the caller.
func (r *AccountRepo) Create(ctx context.Context, a *entity.Account) error {
	now := r.now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	a.Email = entity.NormalizeEmail(a.Email)

	const q = `INSERT INTO accounts (id, email, username, password_hash, email_confirmed, role,
			failed_attempt_count, lockout_enabled, lockout_until,
			refresh_token_fingerprint, refresh_token_expiry, confirmation_code,
			external_ids, created_at, updated_at)
		VALUES (:id, :email, :username, :password_hash, :email_confirmed, :role,
			:failed_attempt_count, :lockout_enabled, :lockout_until,
			:refresh_token_fingerprint, :refresh_token_expiry, :confirmation_code,
			:external_ids, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, q, a); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// Update writes every mutable field. Last writer wins; updating a row that
// no longer exists is not an error.
func (r *AccountRepo) Update(ctx context.Context, a *entity.Account) error {
	a.UpdatedAt = r.now().UTC()

	const q = `UPDATE accounts SET
			password_hash=:password_hash,
			email_confirmed=:email_confirmed,
			role=:role,
			failed_attempt_count=:failed_attempt_count,
			lockout_enabled=:lockout_enabled,
			lockout_until=:lockout_until,
			refresh_token_fingerprint=:refresh_token_fingerprint,
			refresh_token_expiry=:refresh_token_expiry,
			confirmation_code=:confirmation_code,
			external_ids=:external_ids,
			updated_at=:updated_at
		WHERE id=:id`
	_, err := r.db.NamedExecContext(ctx, q, a)
	return err
}
