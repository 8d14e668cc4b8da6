package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-tasks-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-tasks-go/pkg/database"
)

// ErrDuplicateEmail is returned when a write hits the unique email index.
var ErrDuplicateEmail = errors.New("email already exists")

// UserRepo provides data access for users table using sqlx.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// EnsureTable creates the users table if not exists (idempotent).
// The DDL sticks to types both postgres and sqlite accept; timestamps are unix millis.
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	return database.ExecAll(ctx, r.db,
		`CREATE TABLE IF NOT EXISTS users (
  id BIGINT PRIMARY KEY,
  name TEXT NOT NULL,
  email TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)`,
	)
}

type userRow struct {
	ID           int64  `db:"id"`
	Name         string `db:"name"`
	Email        string `db:"email"`
	PasswordHash string `db:"password_hash"`
	CreatedAt    int64  `db:"created_at"`
	UpdatedAt    int64  `db:"updated_at"`
}

func (row userRow) toEntity() *entity.User {
	return &entity.User{
		ID:           row.ID,
		Name:         row.Name,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		CreatedAt:    fromMillis(row.CreatedAt),
		UpdatedAt:    fromMillis(row.UpdatedAt),
	}
}

const selectUser = `SELECT id, name, email, password_hash, created_at, updated_at FROM users`

// Create inserts a new user row. The caller assigns the ID.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) error {
	q := r.db.Rebind(`INSERT INTO users (id, name, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, q, u.ID, u.Name, u.Email, u.PasswordHash, toMillis(u.CreatedAt), toMillis(u.UpdatedAt))
	if database.IsUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

// GetByEmail returns a user matched by email or sql.ErrNoRows.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	var row userRow
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(selectUser+` WHERE email = ?`), email); err != nil {
		return nil, err
	}
	return row.toEntity(), nil
}

// GetByID fetches a full user row or sql.ErrNoRows.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	var row userRow
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(selectUser+` WHERE id = ?`), id); err != nil {
		return nil, err
	}
	return row.toEntity(), nil
}

// EmailTakenByOther reports whether email belongs to a user other than id.
func (r *UserRepo) EmailTakenByOther(ctx context.Context, email string, id int64) (bool, error) {
	var n int
	q := r.db.Rebind(`SELECT COUNT(*) FROM users WHERE email = ? AND id <> ?`)
	if err := r.db.GetContext(ctx, &n, q, email, id); err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateProfile sets name and email. Returns the number of rows touched.
func (r *UserRepo) UpdateProfile(ctx context.Context, id int64, name, email string, at time.Time) (int64, error) {
	q := r.db.Rebind(`UPDATE users SET name = ?, email = ?, updated_at = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, q, name, email, toMillis(at), id)
	if database.IsUniqueViolation(err) {
		return 0, ErrDuplicateEmail
	}
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UpdatePassword replaces the stored hash.
func (r *UserRepo) UpdatePassword(ctx context.Context, id int64, hash string, at time.Time) (int64, error) {
	q := r.db.Rebind(`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, q, hash, toMillis(at), id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }
