package history

import (
	"context"
	"database/sql"
	"time"
)

// SubjectTime is the total observed time of one subject.
type SubjectTime struct {
	SubjectID string
	Subject   string
	Switches  int
	Observed  time.Duration
	LastSeen  time.Time
}

type Session struct {
	ID        string
	Observer  string
	StartedAt time.Time
	EndedAt   time.Time // zero while open
	EndReason string
	Switches  int
}

// Observed sums observation time per subject for observations started at or
// after since. Open observations count up to now.
func (s *Store) Observed(ctx context.Context, since, now time.Time) ([]SubjectTime, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subject_id,
		       (SELECT subject FROM switches s2 WHERE s2.subject_id = s1.subject_id ORDER BY started_at DESC LIMIT 1),
		       COUNT(*),
		       SUM(COALESCE(ended_at, ?) - started_at),
		       MAX(COALESCE(ended_at, ?))
		FROM switches s1
		WHERE started_at >= ?
		GROUP BY subject_id
		ORDER BY 4 DESC, subject_id ASC`,
		now.UnixMilli(), now.UnixMilli(), since.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SubjectTime
	for rows.Next() {
		var (
			st       SubjectTime
			totalMS  int64
			lastSeen int64
		)
		if err := rows.Scan(&st.SubjectID, &st.Subject, &st.Switches, &totalMS, &lastSeen); err != nil {
			return nil, err
		}
		if totalMS < 0 {
			totalMS = 0
		}
		st.Observed = time.Duration(totalMS) * time.Millisecond
		st.LastSeen = time.UnixMilli(lastSeen).UTC()
		out = append(out, st)
	}
	return out, rows.Err()
}

// Sessions returns the most recent sessions, newest first.
func (s *Store) Sessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, observer, started_at, ended_at, COALESCE(end_reason, ''),
		       (SELECT COUNT(*) FROM switches w WHERE w.session_id = sessions.id)
		FROM sessions
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			sess    Session
			started int64
			ended   sql.NullInt64
		)
		if err := rows.Scan(&sess.ID, &sess.Observer, &started, &ended, &sess.EndReason, &sess.Switches); err != nil {
			return nil, err
		}
		sess.StartedAt = time.UnixMilli(started).UTC()
		if ended.Valid {
			sess.EndedAt = time.UnixMilli(ended.Int64).UTC()
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}
