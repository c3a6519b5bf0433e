// Package store persists tasks, reminders and conversation history in
// SQLite. The pure-Go driver keeps the binary cgo-free.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"secondbrain/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	owner       TEXT NOT NULL,
	description TEXT NOT NULL,
	due_date    TEXT,
	priority    TEXT NOT NULL DEFAULT 'medium',
	confidence  REAL NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks(owner);

CREATE TABLE IF NOT EXISTS reminders (
	id      TEXT PRIMARY KEY,
	owner   TEXT NOT NULL,
	message TEXT NOT NULL,
	at      TEXT NOT NULL,
	sent    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_reminders_due ON reminders(sent, at);

CREATE TABLE IF NOT EXISTS messages (
	id    INTEGER PRIMARY KEY AUTOINCREMENT,
	owner TEXT NOT NULL,
	role  TEXT NOT NULL,
	text  TEXT NOT NULL,
	at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_owner ON messages(owner, id);
`

// SQLite implements domain.TaskStore on a single database file.
type SQLite struct {
	db *sql.DB
}

func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) SaveTask(ctx context.Context, task domain.Task) error {
	var due sql.NullString
	if task.DueDate != nil {
		due = sql.NullString{String: task.DueDate.UTC().Format(time.RFC3339Nano), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, owner, description, due_date, priority, confidence, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET description = excluded.description,
		   due_date = excluded.due_date, priority = excluded.priority`,
		task.ID, task.Owner, task.Description, due, task.Priority, task.Confidence,
		task.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

func (s *SQLite) SaveReminder(ctx context.Context, reminder domain.Reminder) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders (id, owner, message, at, sent) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET message = excluded.message, at = excluded.at`,
		reminder.ID, reminder.Owner, reminder.Message,
		reminder.At.UTC().Format(time.RFC3339Nano), boolToInt(reminder.Sent),
	)
	if err != nil {
		return fmt.Errorf("save reminder: %w", err)
	}
	return nil
}

func (s *SQLite) MarkReminderSent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE reminders SET sent = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("reminder not found: %s", id)
	}
	return nil
}

func (s *SQLite) DeleteReminder(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("reminder not found: %s", id)
	}
	return nil
}

func (s *SQLite) Tasks(ctx context.Context, owner string) ([]domain.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner, description, due_date, priority, confidence, created_at
		 FROM tasks WHERE owner = ?
		 ORDER BY due_date IS NULL, due_date, created_at`, owner)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		var t domain.Task
		var due sql.NullString
		var created string
		if err := rows.Scan(&t.ID, &t.Owner, &t.Description, &due, &t.Priority, &t.Confidence, &created); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if due.Valid {
			parsed, err := time.Parse(time.RFC3339Nano, due.String)
			if err != nil {
				return nil, fmt.Errorf("parse due date: %w", err)
			}
			t.DueDate = &parsed
		}
		if t.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *SQLite) Reminders(ctx context.Context, owner string) ([]domain.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner, message, at, sent FROM reminders WHERE owner = ? ORDER BY at`, owner)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

// UpcomingReminders returns unsent reminders due within the window,
// including overdue ones, ordered soonest first.
func (s *SQLite) UpcomingReminders(ctx context.Context, within time.Duration) ([]domain.Reminder, error) {
	cutoff := time.Now().Add(within).UTC().Format(time.RFC3339Nano)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner, message, at, sent FROM reminders
		 WHERE sent = 0 AND at <= ? ORDER BY at`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("upcoming reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

func scanReminders(rows *sql.Rows) ([]domain.Reminder, error) {
	var out []domain.Reminder
	for rows.Next() {
		var r domain.Reminder
		var at string
		var sent int
		if err := rows.Scan(&r.ID, &r.Owner, &r.Message, &at, &sent); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("parse reminder time: %w", err)
		}
		r.At = parsed
		r.Sent = sent != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) AppendMessage(ctx context.Context, owner string, msg domain.Message) error {
	at := msg.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (owner, role, text, at) VALUES (?, ?, ?, ?)`,
		owner, msg.Role, msg.Text, at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// History returns the last limit turns in chronological order.
func (s *SQLite) History(ctx context.Context, owner string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, text, at FROM (
		   SELECT id, role, text, at FROM messages WHERE owner = ? ORDER BY id DESC LIMIT ?
		 ) ORDER BY id`, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var m domain.Message
		var at string
		if err := rows.Scan(&m.Role, &m.Text, &at); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if m.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("parse message time: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
