package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Store holds the tilehook tables on top of a Database.
type Store struct {
	db             *Database
	samplesPerKind int
}

// UnknownSample is one stored body of a kind without a registered type.
type UnknownSample struct {
	ID        int64     `json:"id"`
	Scope     string    `json:"scope"`
	Kind      uint8     `json:"kind"`
	Side      string    `json:"side"`
	Payload   []byte    `json:"payload"`
	Hits      int64     `json:"hits"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// UnknownKindSummary aggregates the samples of one kind.
type UnknownKindSummary struct {
	Scope    string    `json:"scope"`
	Kind     uint8     `json:"kind"`
	Samples  int64     `json:"samples"`
	Hits     int64     `json:"hits"`
	MaxSize  int64     `json:"max_size"`
	LastSeen time.Time `json:"last_seen"`
}

// KindStat holds cumulative counters for one kind and side.
type KindStat struct {
	Kind      uint8     `json:"kind"`
	Side      string    `json:"side"`
	Decoded   int64     `json:"decoded"`
	Encoded   int64     `json:"encoded"`
	Errors    int64     `json:"errors"`
	Unknown   int64     `json:"unknown"`
	Dropped   int64     `json:"dropped"`
	Rewritten int64     `json:"rewritten"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CaptureFile is one entry of the capture index.
type CaptureFile struct {
	SessionID string    `json:"session_id"`
	Path      string    `json:"path"`
	StartedAt time.Time `json:"started_at"`
	ClosedAt  time.Time `json:"closed_at,omitempty"`
	Records   int64     `json:"records"`
	SizeBytes int64     `json:"size_bytes"`
}

// NewStore opens the database at dbPath and migrates the schema.
// samplesPerKind caps stored unknown samples per (scope, kind); zero means
// no cap.
func NewStore(dbPath string, samplesPerKind int) (*Store, error) {
	database, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	s := &Store{db: database, samplesPerKind: samplesPerKind}
	if err := s.migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS unknown_samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			scope TEXT NOT NULL,
			kind INTEGER NOT NULL,
			side TEXT NOT NULL,
			payload BLOB NOT NULL,
			size INTEGER NOT NULL,
			hits INTEGER NOT NULL DEFAULT 1,
			first_seen INTEGER NOT NULL,
			last_seen INTEGER NOT NULL,
			UNIQUE (scope, kind, side, payload)
		);

		CREATE TABLE IF NOT EXISTS kind_stats (
			kind INTEGER NOT NULL,
			side TEXT NOT NULL,
			decoded INTEGER NOT NULL DEFAULT 0,
			encoded INTEGER NOT NULL DEFAULT 0,
			errors INTEGER NOT NULL DEFAULT 0,
			unknown INTEGER NOT NULL DEFAULT 0,
			dropped INTEGER NOT NULL DEFAULT 0,
			rewritten INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (kind, side)
		);

		CREATE TABLE IF NOT EXISTS captures (
			session_id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			closed_at INTEGER NOT NULL DEFAULT 0,
			records INTEGER NOT NULL DEFAULT 0,
			size_bytes INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_unknown_kind ON unknown_samples(scope, kind);
		CREATE INDEX IF NOT EXISTS idx_captures_started ON captures(started_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	log.Debug().Msg("database schema migrated")
	return nil
}

// RecordUnknown stores a sample body. An identical body bumps the hit
// count of the existing row. New bodies past the per-kind cap are
// discarded; the return value reports whether a new row was added.
func (s *Store) RecordUnknown(scope string, kind uint8, side string, payload []byte, at time.Time) (bool, error) {
	if payload == nil {
		payload = []byte{}
	}
	added := false
	err := s.db.Transaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE unknown_samples SET hits = hits + 1, last_seen = ?
			WHERE scope = ? AND kind = ? AND side = ? AND payload = ?`,
			at.Unix(), scope, kind, side, payload)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}

		if s.samplesPerKind > 0 {
			var count int
			if err := tx.QueryRow(
				"SELECT COUNT(*) FROM unknown_samples WHERE scope = ? AND kind = ?",
				scope, kind).Scan(&count); err != nil {
				return err
			}
			if count >= s.samplesPerKind {
				return nil
			}
		}

		if _, err := tx.Exec(`
			INSERT INTO unknown_samples (scope, kind, side, payload, size, first_seen, last_seen)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			scope, kind, side, payload, len(payload), at.Unix(), at.Unix()); err != nil {
			return err
		}
		added = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to record unknown %s kind %d: %w", scope, kind, err)
	}
	return added, nil
}

// UnknownSamples lists stored samples of one kind, most recent first.
func (s *Store) UnknownSamples(scope string, kind uint8, limit int) ([]UnknownSample, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT id, scope, kind, side, payload, hits, first_seen, last_seen
		FROM unknown_samples
		WHERE scope = ? AND kind = ?
		ORDER BY last_seen DESC, id DESC
		LIMIT ?`, scope, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unknown samples: %w", err)
	}
	defer rows.Close()

	var out []UnknownSample
	for rows.Next() {
		var u UnknownSample
		var first, last int64
		if err := rows.Scan(&u.ID, &u.Scope, &u.Kind, &u.Side, &u.Payload, &u.Hits, &first, &last); err != nil {
			return nil, err
		}
		u.FirstSeen = time.Unix(first, 0)
		u.LastSeen = time.Unix(last, 0)
		out = append(out, u)
	}
	return out, rows.Err()
}

// UnknownKinds summarizes every unknown kind seen so far.
func (s *Store) UnknownKinds() ([]UnknownKindSummary, error) {
	rows, err := s.db.Query(`
		SELECT scope, kind, COUNT(*), SUM(hits), MAX(size), MAX(last_seen)
		FROM unknown_samples
		GROUP BY scope, kind
		ORDER BY scope, kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to query unknown kinds: %w", err)
	}
	defer rows.Close()

	var out []UnknownKindSummary
	for rows.Next() {
		var u UnknownKindSummary
		var last int64
		if err := rows.Scan(&u.Scope, &u.Kind, &u.Samples, &u.Hits, &u.MaxSize, &last); err != nil {
			return nil, err
		}
		u.LastSeen = time.Unix(last, 0)
		out = append(out, u)
	}
	return out, rows.Err()
}

// AddKindStats adds counter deltas to the cumulative rows.
func (s *Store) AddKindStats(deltas []KindStat, at time.Time) error {
	if len(deltas) == 0 {
		return nil
	}
	return s.db.Transaction(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO kind_stats (kind, side, decoded, encoded, errors, unknown, dropped, rewritten, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (kind, side) DO UPDATE SET
				decoded = decoded + excluded.decoded,
				encoded = encoded + excluded.encoded,
				errors = errors + excluded.errors,
				unknown = unknown + excluded.unknown,
				dropped = dropped + excluded.dropped,
				rewritten = rewritten + excluded.rewritten,
				updated_at = excluded.updated_at`)
		if err != nil {
			return fmt.Errorf("failed to prepare stats upsert: %w", err)
		}
		defer stmt.Close()

		for _, d := range deltas {
			if _, err := stmt.Exec(d.Kind, d.Side, d.Decoded, d.Encoded, d.Errors,
				d.Unknown, d.Dropped, d.Rewritten, at.Unix()); err != nil {
				return fmt.Errorf("failed to upsert stats for kind %d: %w", d.Kind, err)
			}
		}
		return nil
	})
}

// KindStats returns every cumulative counter row.
func (s *Store) KindStats() ([]KindStat, error) {
	rows, err := s.db.Query(`
		SELECT kind, side, decoded, encoded, errors, unknown, dropped, rewritten, updated_at
		FROM kind_stats
		ORDER BY kind, side`)
	if err != nil {
		return nil, fmt.Errorf("failed to query kind stats: %w", err)
	}
	defer rows.Close()

	var out []KindStat
	for rows.Next() {
		var k KindStat
		var updated int64
		if err := rows.Scan(&k.Kind, &k.Side, &k.Decoded, &k.Encoded, &k.Errors,
			&k.Unknown, &k.Dropped, &k.Rewritten, &updated); err != nil {
			return nil, err
		}
		k.UpdatedAt = time.Unix(updated, 0)
		out = append(out, k)
	}
	return out, rows.Err()
}

// RecordCaptureStart adds a capture file to the index.
func (s *Store) RecordCaptureStart(sessionID, path string, at time.Time) error {
	_, err := s.db.Exec(
		"INSERT INTO captures (session_id, path, started_at) VALUES (?, ?, ?)",
		sessionID, path, at.Unix())
	if err != nil {
		return fmt.Errorf("failed to index capture %s: %w", sessionID, err)
	}
	return nil
}

// RecordCaptureClose stores the final record count and size of a capture.
func (s *Store) RecordCaptureClose(sessionID string, records, size int64, at time.Time) error {
	_, err := s.db.Exec(
		"UPDATE captures SET closed_at = ?, records = ?, size_bytes = ? WHERE session_id = ?",
		at.Unix(), records, size, sessionID)
	if err != nil {
		return fmt.Errorf("failed to close capture %s: %w", sessionID, err)
	}
	return nil
}

// Captures lists indexed captures, newest first.
func (s *Store) Captures() ([]CaptureFile, error) {
	rows, err := s.db.Query(`
		SELECT session_id, path, started_at, closed_at, records, size_bytes
		FROM captures ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query captures: %w", err)
	}
	defer rows.Close()

	var out []CaptureFile
	for rows.Next() {
		var c CaptureFile
		var started, closed int64
		if err := rows.Scan(&c.SessionID, &c.Path, &started, &closed, &c.Records, &c.SizeBytes); err != nil {
			return nil, err
		}
		c.StartedAt = time.Unix(started, 0)
		if closed > 0 {
			c.ClosedAt = time.Unix(closed, 0)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCapturesBefore removes index entries started before cutoff.
func (s *Store) DeleteCapturesBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec("DELETE FROM captures WHERE started_at < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune capture index: %w", err)
	}
	return res.RowsAffected()
}
