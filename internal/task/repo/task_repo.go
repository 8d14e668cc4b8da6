package repo

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-tasks-go/internal/task/entity"
	"github.com/ovaphlow/pitchfork/service-tasks-go/pkg/database"
)

// TaskRepo is the tasks repository. Every read and write is keyed by owner as well as id.
type TaskRepo struct {
	db *sqlx.DB
}

func NewTaskRepo(db *sqlx.DB) *TaskRepo {
	return &TaskRepo{db: db}
}

// EnsureTable creates the tasks table and its owner index. The users table must exist first.
func (r *TaskRepo) EnsureTable(ctx context.Context) error {
	return database.ExecAll(ctx, r.db,
		`CREATE TABLE IF NOT EXISTS tasks (
  id BIGINT PRIMARY KEY,
  owner_id BIGINT NOT NULL REFERENCES users(id),
  title TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  priority TEXT NOT NULL DEFAULT 'Low',
  due_date BIGINT,
  completed BOOLEAN NOT NULL DEFAULT FALSE,
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_owner_created ON tasks(owner_id, created_at)`,
	)
}

type taskRow struct {
	ID          int64         `db:"id"`
	OwnerID     int64         `db:"owner_id"`
	Title       string        `db:"title"`
	Description string        `db:"description"`
	Priority    string        `db:"priority"`
	DueDate     sql.NullInt64 `db:"due_date"`
	Completed   bool          `db:"completed"`
	CreatedAt   int64         `db:"created_at"`
	UpdatedAt   int64         `db:"updated_at"`
}

func (row taskRow) toEntity() *entity.Task {
	t := &entity.Task{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description,
		Priority:    entity.Priority(row.Priority),
		Completed:   row.Completed,
		Owner:       row.OwnerID,
		CreatedAt:   fromMillis(row.CreatedAt),
		UpdatedAt:   fromMillis(row.UpdatedAt),
	}
	if row.DueDate.Valid {
		d := fromMillis(row.DueDate.Int64)
		t.DueDate = &d
	}
	return t
}

const selectTask = `SELECT id, owner_id, title, description, priority, due_date, completed, created_at, updated_at FROM tasks`

// Create inserts t as given; the service has already set ID and Owner.
func (r *TaskRepo) Create(ctx context.Context, t *entity.Task) error {
	q := r.db.Rebind(`INSERT INTO tasks (id, owner_id, title, description, priority, due_date, completed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, q,
		t.ID, t.Owner, t.Title, t.Description, string(t.Priority), nullMillis(t.DueDate), t.Completed,
		toMillis(t.CreatedAt), toMillis(t.UpdatedAt))
	return err
}

// ListByOwner returns the owner's tasks, newest first.
func (r *TaskRepo) ListByOwner(ctx context.Context, ownerID int64) ([]*entity.Task, error) {
	var rows []taskRow
	q := r.db.Rebind(selectTask + ` WHERE owner_id = ? ORDER BY created_at DESC, id DESC`)
	if err := r.db.SelectContext(ctx, &rows, q, ownerID); err != nil {
		return nil, err
	}
	out := make([]*entity.Task, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEntity())
	}
	return out, nil
}

// GetOne returns the task only when both id and owner match, else sql.ErrNoRows.
func (r *TaskRepo) GetOne(ctx context.Context, ownerID, id int64) (*entity.Task, error) {
	var row taskRow
	q := r.db.Rebind(selectTask + ` WHERE id = ? AND owner_id = ?`)
	if err := r.db.GetContext(ctx, &row, q, id, ownerID); err != nil {
		return nil, err
	}
	return row.toEntity(), nil
}

// Update applies the non-nil fields of p in one statement. Returns rows affected;
// zero means no task with that id belongs to ownerID.
func (r *TaskRepo) Update(ctx context.Context, ownerID, id int64, p entity.Patch, at time.Time) (int64, error) {
	sets := []string{"updated_at = ?"}
	args := []any{toMillis(at)}
	if p.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *p.Title)
	}
	if p.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *p.Description)
	}
	if p.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, string(*p.Priority))
	}
	if p.DueDate != nil {
		sets = append(sets, "due_date = ?")
		args = append(args, toMillis(*p.DueDate))
	} else if p.ClearDueDate {
		sets = append(sets, "due_date = NULL")
	}
	if p.Completed != nil {
		sets = append(sets, "completed = ?")
		args = append(args, *p.Completed)
	}
	args = append(args, id, ownerID)

	q := r.db.Rebind(`UPDATE tasks SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND owner_id = ?`)
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Delete removes the task if ownerID owns it. Returns rows affected.
func (r *TaskRepo) Delete(ctx context.Context, ownerID, id int64) (int64, error) {
	q := r.db.Rebind(`DELETE FROM tasks WHERE id = ? AND owner_id = ?`)
	res, err := r.db.ExecContext(ctx, q, id, ownerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}
