package checkpoint

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrAttemptNotFound indicates the requested attempt doesn't exist.
var ErrAttemptNotFound = errors.New("checkpoint: attempt not found")

// Attempt is one recorded task attempt and the checkpoint file that
// belongs to it.
type Attempt struct {
	ID       int64
	Scope    string
	Path     string
	Created  time.Time
	Complete bool
}

// Ledger indexes task attempts in SQLite so a resume can locate the right
// checkpoint file for a scope.
type Ledger struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenLedger opens or creates the attempt ledger at path.
func OpenLedger(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scope TEXT NOT NULL,
		path TEXT NOT NULL,
		created INTEGER NOT NULL,
		complete INTEGER NOT NULL DEFAULT 0
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating attempts table: %w", err)
	}

	return &Ledger{db: db}, nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

// Record adds a new incomplete attempt and returns its ID.
func (l *Ledger) Record(scopeName, path string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.db.Exec(
		"INSERT INTO attempts (scope, path, created, complete) VALUES (?, ?, ?, 0)",
		scopeName, path, time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("recording attempt: %w", err)
	}
	return res.LastInsertId()
}

// MarkComplete flags an attempt as finished.
func (l *Ledger) MarkComplete(id int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.db.Exec("UPDATE attempts SET complete = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("marking attempt complete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("marking attempt complete: %w", err)
	}
	if n == 0 {
		return ErrAttemptNotFound
	}
	return nil
}

// Latest returns the most recent attempt for a scope, the resume
// candidate when a pipeline restarts.
func (l *Ledger) Latest(scopeName string) (*Attempt, error) {
	row := l.db.QueryRow(
		"SELECT id, scope, path, created, complete FROM attempts WHERE scope = ? ORDER BY id DESC LIMIT 1",
		scopeName,
	)
	return scanAttempt(row)
}

// List returns all attempts, newest first.
func (l *Ledger) List() ([]Attempt, error) {
	rows, err := l.db.Query("SELECT id, scope, path, created, complete FROM attempts ORDER BY id DESC")
	if err != nil {
		return nil, fmt.Errorf("listing attempts: %w", err)
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var a Attempt
		var created int64
		var complete int
		if err := rows.Scan(&a.ID, &a.Scope, &a.Path, &created, &complete); err != nil {
			return nil, fmt.Errorf("scanning attempt: %w", err)
		}
		a.Created = time.Unix(created, 0)
		a.Complete = complete != 0
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// Delete removes an attempt from the ledger.
func (l *Ledger) Delete(id int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.db.Exec("DELETE FROM attempts WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting attempt: %w", err)
	}
	return nil
}

func scanAttempt(row *sql.Row) (*Attempt, error) {
	var a Attempt
	var created int64
	var complete int
	err := row.Scan(&a.ID, &a.Scope, &a.Path, &created, &complete)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("querying attempt: %w", err)
	}
	a.Created = time.Unix(created, 0)
	a.Complete = complete != 0
	return &a, nil
}
