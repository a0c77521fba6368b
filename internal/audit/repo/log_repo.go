package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/audit/entity"
)

// LogRepo appends to and reads the auth_logs table.
type LogRepo struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewLogRepo(db *sqlx.DB) *LogRepo {
	return &LogRepo{db: db, now: time.Now}
}

// Add assigns the id and timestamp when they are unset.
func (r *LogRepo) Add(ctx context.Context, e entity.Entry) error {
	stamp(&e, r.now)
	const q = `INSERT INTO auth_logs (id, account_id, message, inner_message, type, created_at)
		VALUES (:id, :account_id, :message, :inner_message, :type, :created_at)`
	_, err := r.db.NamedExecContext(ctx, q, e)
	return err
}

// ListByAccount returns the newest entries first.
func (r *LogRepo) ListByAccount(ctx context.Context, accountID string, limit int) ([]entity.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []entity.Entry
	const q = `SELECT id, account_id, message, inner_message, type, created_at
		FROM auth_logs WHERE account_id=$1 ORDER BY created_at DESC LIMIT $2`
	if err := r.db.SelectContext(ctx, &out, q, accountID, limit); err != nil {
		return nil, err
	}
	return out, nil
}

func stamp(e *entity.Entry, now func() time.Time) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now().UTC()
	}
}
