package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ibeckermayer/trendscout/internal/types"
)

// Store keeps the run history in SQLite
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens (creating if needed) the history database at dbPath
func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}
	// one writer; sqlite serializes anyway
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate history db: %w", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		stamp TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		units INTEGER DEFAULT 0,
		ok INTEGER DEFAULT 0,
		empty INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		posts INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS units (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		unit TEXT NOT NULL,
		status TEXT NOT NULL,
		posts INTEGER DEFAULT 0,
		reason TEXT,
		duration_ms INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		keyword TEXT,
		user_name TEXT,
		attitudes INTEGER,
		comments INTEGER,
		reposts INTEGER,
		content_score REAL,
		first_seen DATETIME NOT NULL,
		last_seen DATETIME NOT NULL,
		last_run_id TEXT,
		times_seen INTEGER DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_units_run_id ON units(run_id);
	CREATE INDEX IF NOT EXISTS idx_posts_keyword ON posts(keyword);
	`

	_, err := s.db.Exec(schema)
	return err
}

// StartRun records the start of a run and returns it with a fresh ID
func (s *Store) StartRun(mode, stamp string, startedAt time.Time) (Run, error) {
	run := Run{
		ID:        uuid.NewString(),
		Mode:      mode,
		Stamp:     stamp,
		StartedAt: startedAt,
	}
	_, err := s.db.Exec(`
		INSERT INTO runs (id, mode, stamp, started_at) VALUES (?, ?, ?, ?)
	`, run.ID, run.Mode, run.Stamp, run.StartedAt)
	if err != nil {
		return Run{}, fmt.Errorf("failed to record run: %w", err)
	}
	return run, nil
}

// RecordUnit stores one unit outcome
func (s *Store) RecordUnit(u UnitRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO units (run_id, unit, status, posts, reason, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?)
	`, u.RunID, u.Unit, u.Status, u.Posts, u.Reason, u.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to record unit %s: %w", u.Unit, err)
	}
	return nil
}

// SavePosts inserts or updates the retained posts of a run
func (s *Store) SavePosts(runID string, posts []types.Post) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	for _, p := range posts {
		var score sql.NullFloat64
		if p.ContentScore != nil {
			score = sql.NullFloat64{Float64: *p.ContentScore, Valid: true}
		}
		_, err := tx.Exec(`
			INSERT INTO posts (id, keyword, user_name, attitudes, comments, reposts,
				content_score, first_seen, last_seen, last_run_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				attitudes = excluded.attitudes,
				comments = excluded.comments,
				reposts = excluded.reposts,
				content_score = COALESCE(excluded.content_score, posts.content_score),
				last_seen = excluded.last_seen,
				times_seen = CASE WHEN posts.last_run_id = excluded.last_run_id
					THEN posts.times_seen ELSE posts.times_seen + 1 END,
				last_run_id = excluded.last_run_id
		`, p.ID, p.Keyword, p.UserName, p.Attitudes, p.Comments, p.Reposts,
			score, now, now, runID)
		if err != nil {
			return fmt.Errorf("failed to save post %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

// FinishRun stores the final counters of run
func (s *Store) FinishRun(run Run) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = s.now()
	}
	_, err := s.db.Exec(`
		UPDATE runs SET finished_at = ?, units = ?, ok = ?, empty = ?, failed = ?, posts = ?
		WHERE id = ?
	`, run.FinishedAt, run.Units, run.OK, run.Empty, run.Failed, run.Posts, run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first
func (s *Store) RecentRuns(limit int) ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT id, mode, stamp, started_at, finished_at, units, ok, empty, failed, posts
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Mode, &r.Stamp, &r.StartedAt, &finished,
			&r.Units, &r.OK, &r.Empty, &r.Failed, &r.Posts); err != nil {
			return nil, err
		}
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunUnits returns the units of a run in the order they were recorded
func (s *Store) RunUnits(runID string) ([]UnitRecord, error) {
	rows, err := s.db.Query(`
		SELECT run_id, unit, status, posts, COALESCE(reason, ''), duration_ms
		FROM units
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var units []UnitRecord
	for rows.Next() {
		var u UnitRecord
		var ms int64
		if err := rows.Scan(&u.RunID, &u.Unit, &u.Status, &u.Posts, &u.Reason, &ms); err != nil {
			return nil, err
		}
		u.Duration = time.Duration(ms) * time.Millisecond
		units = append(units, u)
	}
	return units, rows.Err()
}

// GetPost returns the history of a post, or nil if it was never retained
func (s *Store) GetPost(id string) (*PostRecord, error) {
	var p PostRecord
	var score sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT id, COALESCE(keyword, ''), COALESCE(user_name, ''), attitudes, comments, reposts,
			content_score, first_seen, last_seen, COALESCE(last_run_id, ''), times_seen
		FROM posts WHERE id = ?
	`, id).Scan(&p.ID, &p.Keyword, &p.UserName, &p.Attitudes, &p.Comments, &p.Reposts,
		&score, &p.FirstSeen, &p.LastSeen, &p.LastRunID, &p.TimesSeen)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if score.Valid {
		p.ContentScore = &score.Float64
	}
	return &p, nil
}

// PostExists checks if a post ID was retained by an earlier run
func (s *Store) PostExists(id string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM posts WHERE id = ?)`, id).Scan(&exists)
	return exists, err
}
