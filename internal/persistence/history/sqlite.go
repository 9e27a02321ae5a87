// Package history keeps a SQLite record of camera sessions and of which
// subject was observed when. Writes are queued to a single writer goroutine
// and dropped if it falls behind; the journal stays the source of truth.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
	failed  atomic.Uint64
}

type reqKind int

const (
	reqSessionStart reqKind = iota + 1
	reqSessionEnd
	reqObserveStart
	reqObserveEnd
)

type req struct {
	kind reqKind

	sessionID string
	observer  string
	subjectID string
	subject   string
	reason    string
	at        time.Time
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, ch: make(chan req, 1024)}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			observer TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			ended_at INTEGER,
			end_reason TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS switches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			subject_id TEXT NOT NULL,
			subject TEXT NOT NULL,
			reason TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			ended_at INTEGER
		);`,
		`CREATE INDEX IF NOT EXISTS idx_switches_subject ON switches(subject_id, started_at);`,
		`CREATE INDEX IF NOT EXISTS idx_switches_open ON switches(session_id, ended_at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// EndReasonCrashed marks sessions closed by CloseDangling.
const EndReasonCrashed = "crashed"

// CloseDangling ends sessions and observations left open by a process that
// exited without EndSession. Each is closed at the latest time known for its
// session: its last observation start, or lastSeen[id] when later. It must
// only run in the process holding the data dir lock, before any write is
// queued. It returns the number of sessions closed.
func (s *Store) CloseDangling(ctx context.Context, lastSeen map[string]time.Time) (int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, MAX(started_at, COALESCE((SELECT MAX(started_at) FROM switches w WHERE w.session_id = sessions.id), 0))
		FROM sessions
		WHERE ended_at IS NULL`)
	if err != nil {
		return 0, err
	}
	type open struct {
		id   string
		last int64
	}
	var dangling []open
	for rows.Next() {
		var o open
		if err := rows.Scan(&o.id, &o.last); err != nil {
			_ = rows.Close()
			return 0, err
		}
		dangling = append(dangling, o)
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	for _, o := range dangling {
		end := o.last
		if t, ok := lastSeen[o.id]; ok && t.UnixMilli() > end {
			end = t.UnixMilli()
		}
		if _, err := tx.ExecContext(ctx, `UPDATE switches SET ended_at=MAX(started_at, ?) WHERE session_id=? AND ended_at IS NULL`, end, o.id); err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE sessions SET ended_at=?, end_reason=? WHERE id=?`, end, EndReasonCrashed, o.id); err != nil {
			return 0, err
		}
	}
	// Observations whose session row was never written.
	if _, err := tx.ExecContext(ctx, `UPDATE switches SET ended_at=started_at WHERE ended_at IS NULL`); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(dangling), nil
}

// Close drains queued writes and closes the database.
func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Dropped counts writes discarded because the queue was full.
func (s *Store) Dropped() uint64 { return s.dropped.Load() }

// Failed counts writes the database rejected.
func (s *Store) Failed() uint64 { return s.failed.Load() }

func (s *Store) enqueue(r req) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		s.dropped.Add(1)
	}
}

func (s *Store) StartSession(id, observer string, at time.Time) {
	s.enqueue(req{kind: reqSessionStart, sessionID: id, observer: observer, at: at})
}

// EndSession also closes the session's open observation.
func (s *Store) EndSession(id, reason string, at time.Time) {
	s.enqueue(req{kind: reqSessionEnd, sessionID: id, reason: reason, at: at})
}

// BeginObservation closes the session's open observation and opens one for
// the given subject.
func (s *Store) BeginObservation(sessionID, subjectID, subject, reason string, at time.Time) {
	s.enqueue(req{kind: reqObserveStart, sessionID: sessionID, subjectID: subjectID, subject: subject, reason: reason, at: at})
}

func (s *Store) EndObservation(sessionID string, at time.Time) {
	s.enqueue(req{kind: reqObserveEnd, sessionID: sessionID, at: at})
}

func (s *Store) loop() {
	for r := range s.ch {
		if err := s.apply(r); err != nil {
			s.failed.Add(1)
		}
	}
}

func (s *Store) apply(r req) error {
	ctx := context.Background()
	at := r.at.UnixMilli()
	switch r.kind {
	case reqSessionStart:
		_, err := s.db.ExecContext(ctx,
			`INSERT OR REPLACE INTO sessions(id,observer,started_at) VALUES(?,?,?)`,
			r.sessionID, r.observer, at)
		return err

	case reqSessionEnd:
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.Exec(`UPDATE switches SET ended_at=? WHERE session_id=? AND ended_at IS NULL`, at, r.sessionID); err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE sessions SET ended_at=?, end_reason=? WHERE id=?`, at, r.reason, r.sessionID); err != nil {
			return err
		}
		return tx.Commit()

	case reqObserveStart:
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.Exec(`UPDATE switches SET ended_at=? WHERE session_id=? AND ended_at IS NULL`, at, r.sessionID); err != nil {
			return err
		}
		if _, err := tx.Exec(
			`INSERT INTO switches(session_id,subject_id,subject,reason,started_at) VALUES(?,?,?,?,?)`,
			r.sessionID, r.subjectID, r.subject, r.reason, at); err != nil {
			return err
		}
		return tx.Commit()

	case reqObserveEnd:
		_, err := s.db.ExecContext(ctx, `UPDATE switches SET ended_at=? WHERE session_id=? AND ended_at IS NULL`, at, r.sessionID)
		return err
	}
	return fmt.Errorf("unknown request kind %d", r.kind)
}
