package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"maestro/internal/logging"
)

// MessageRecord is one row of the append-only per-task message log.
type MessageRecord struct {
	TaskID    string
	SessionID string
	Timestamp time.Time
	Kind      string
	Payload   string
}

// TaskRecord is one row of the task registry.
type TaskRecord struct {
	ID        string
	Title     string
	CreatedAt time.Time
}

// Store is the process-wide persistence store: task registry plus
// append-only message log. Safe for concurrent use from multiple sessions;
// SQLite serializes writes at the engine level.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id    TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	session_id TEXT NOT NULL,
	ts         TIMESTAMP NOT NULL,
	kind       TEXT NOT NULL,
	payload    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_task_ts ON messages(task_id, ts);
`

// Open opens (or creates) the store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// SQLite allows a single writer; keeping one connection avoids
	// SQLITE_BUSY churn under concurrent sessions.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{
		db:     db,
		logger: logging.NewComponentLogger("Store"),
	}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureTask inserts the task if absent. Idempotent.
func (s *Store) EnsureTask(ctx context.Context, taskID, title string, createdAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, title, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		taskID, title, createdAt.UTC())
	if err != nil {
		return fmt.Errorf("ensure task %s: %w", taskID, err)
	}
	return nil
}

// RenameTask updates a task title, reporting whether the task existed.
func (s *Store) RenameTask(ctx context.Context, taskID, newTitle string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET title = ? WHERE id = ?`, newTitle, taskID)
	if err != nil {
		return false, fmt.Errorf("rename task %s: %w", taskID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteTask removes a task and, via the foreign key cascade, its messages.
func (s *Store) DeleteTask(ctx context.Context, taskID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, taskID)
	if err != nil {
		return false, fmt.Errorf("delete task %s: %w", taskID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetTask fetches one task record.
func (s *Store) GetTask(ctx context.Context, taskID string) (*TaskRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at FROM tasks WHERE id = ?`, taskID)
	var rec TaskRecord
	if err := row.Scan(&rec.ID, &rec.Title, &rec.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// ListTasks returns all tasks newest first.
func (s *Store) ListTasks(ctx context.Context) ([]TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at FROM tasks ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tasks []TaskRecord
	for rows.Next() {
		var rec TaskRecord
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.CreatedAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, rec)
	}
	return tasks, rows.Err()
}

// AppendMessage appends one record to a task's log. A missing task is logged
// and swallowed: the store never crashes the pipeline over bookkeeping.
func (s *Store) AppendMessage(ctx context.Context, taskID, sessionID, kind, payload string) {
	if taskID == "" {
		return
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (task_id, session_id, ts, kind, payload)
		 SELECT ?, ?, ?, ?, ? WHERE EXISTS (SELECT 1 FROM tasks WHERE id = ?)`,
		taskID, sessionID, time.Now().UTC(), kind, payload, taskID)
	if err != nil {
		s.logger.Warn("Failed to append %s message for task %s: %v", kind, taskID, err)
		return
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.logger.Warn("Dropping %s message for unknown task %s", kind, taskID)
	}
}

// MessagesForTask returns a task's log ordered by timestamp ascending.
// Insertion order breaks timestamp ties, keeping per-task ordering total.
func (s *Store) MessagesForTask(ctx context.Context, taskID string) ([]MessageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, session_id, ts, kind, payload
		 FROM messages WHERE task_id = ? ORDER BY ts ASC, id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var records []MessageRecord
	for rows.Next() {
		var rec MessageRecord
		if err := rows.Scan(&rec.TaskID, &rec.SessionID, &rec.Timestamp, &rec.Kind, &rec.Payload); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
