// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package results persists case evaluation results in SQLite and keeps an
// append-only CSV snapshot per category.
package results

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/entity-eval/pkg/types"
)

const (
	dbFile   = "results.db"
	lockFile = ".lock"
)

// ErrLocked is returned by Open when another run holds the results
// directory.
var ErrLocked = errors.New("results directory is in use by another run")

// ErrReadOnly is returned by Append on a Store opened with OpenReadOnly.
var ErrReadOnly = errors.New("results store is read-only")

// Store manages the results database of one results directory.
type Store struct {
	db  *sql.DB
	dir string

	// lock is nil for a read-only Store.
	lock *flock.Flock
}

// Open opens or creates dir/results.db and takes an exclusive lock on dir
// for the lifetime of the Store.
func Open(cfg types.ResultsConfig) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("results directory not configured")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating results directory: %w", err)
	}

	lock := flock.New(filepath.Join(cfg.Dir, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring results lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", cfg.Dir, ErrLocked)
	}

	db, err := sql.Open("sqlite3", filepath.Join(cfg.Dir, dbFile)+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, dir: cfg.Dir, lock: lock}
	if err := s.createSchema(); err != nil {
		s.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection and the directory lock.
func (s *Store) Close() error {
	err := s.db.Close()
	if s.lock == nil {
		return err
	}
	if uerr := s.lock.Unlock(); err == nil {
		err = uerr
	}
	return err
}

// OpenReadOnly opens an existing dir/results.db for queries and exports.
// It takes no lock, so results can be inspected while a run is writing.
func OpenReadOnly(cfg types.ResultsConfig) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("results directory not configured")
	}
	path := filepath.Join(cfg.Dir, dbFile)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no results database in %s: run evaluate first", cfg.Dir)
		}
		return nil, fmt.Errorf("checking results database: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return &Store{db: db, dir: cfg.Dir}, nil
}

// Dir returns the results directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS results (
			category TEXT NOT NULL,
			case_id TEXT NOT NULL,
			positive INTEGER NOT NULL,
			partial INTEGER NOT NULL,
			semantic INTEGER NOT NULL,
			missing INTEGER NOT NULL,
			potential_positive INTEGER NOT NULL,
			insert_all INTEGER NOT NULL,
			insert_but_in_text INTEGER NOT NULL,
			insert_hallucination INTEGER NOT NULL,
			reconfirmed INTEGER NOT NULL,
			try_count INTEGER NOT NULL,
			truth_size INTEGER NOT NULL,
			extracted_size INTEGER NOT NULL,
			quote_in_text INTEGER NOT NULL,
			quote_missing INTEGER NOT NULL,
			context_in_text INTEGER NOT NULL,
			context_missing INTEGER NOT NULL,
			context_in_quote INTEGER NOT NULL,
			context_similarity REAL NOT NULL,
			skipped_lines INTEGER NOT NULL,
			exhausted INTEGER NOT NULL,
			error TEXT,
			evaluated_at TEXT NOT NULL,
			PRIMARY KEY (category, case_id)
		)`,
		`CREATE TABLE IF NOT EXISTS match_records (
			category TEXT NOT NULL,
			case_id TEXT NOT NULL,
			truth TEXT NOT NULL,
			tier TEXT NOT NULL,
			extracted TEXT,
			overlap INTEGER,
			score REAL,
			FOREIGN KEY (category, case_id) REFERENCES results(category, case_id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_match_records_case ON match_records(category, case_id)`,
		`CREATE TABLE IF NOT EXISTS unmatched (
			category TEXT NOT NULL,
			case_id TEXT NOT NULL,
			item TEXT NOT NULL,
			class TEXT NOT NULL,
			evidence TEXT,
			score REAL,
			FOREIGN KEY (category, case_id) REFERENCES results(category, case_id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_unmatched_case ON unmatched(category, case_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Append persists r, replacing any earlier row for the same category and
// case, and appends it to the category's CSV snapshot.
func (s *Store) Append(ctx context.Context, r types.CaseEvaluationResult) error {
	if s.lock == nil {
		return ErrReadOnly
	}
	if r.EvaluatedAt.IsZero() {
		r.EvaluatedAt = time.Now().UTC()
	}
	if err := s.upsert(ctx, r); err != nil {
		return fmt.Errorf("storing %s/%s: %w", r.Category, r.CaseID, err)
	}
	if err := appendCSV(s.csvPath(r.Category), r); err != nil {
		return fmt.Errorf("appending %s snapshot: %w", r.Category, err)
	}
	return nil
}

func (s *Store) upsert(ctx context.Context, r types.CaseEvaluationResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Deleting the old row cascades to its detail rows.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM results WHERE category = ? AND case_id = ?`, string(r.Category), r.CaseID,
	); err != nil {
		return fmt.Errorf("deleting previous result: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO results (category, case_id, positive, partial, semantic, missing,
			potential_positive, insert_all, insert_but_in_text, insert_hallucination,
			reconfirmed, try_count, truth_size, extracted_size, quote_in_text,
			quote_missing, context_in_text, context_missing, context_in_quote,
			context_similarity, skipped_lines, exhausted, error, evaluated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(r.Category), r.CaseID, r.Positive, r.Partial, r.Semantic, r.Missing,
		r.PotentialPositive, r.InsertAll, r.InsertButInText, r.InsertHallucination,
		r.Reconfirmed, r.TryCount, r.TruthSize, r.ExtractedSize, r.QuoteInText,
		r.QuoteMissing, r.ContextInText, r.ContextMissing, r.ContextInQuote,
		r.ContextSimilarity, r.SkippedLines, r.Exhausted, r.Error,
		r.EvaluatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting result: %w", err)
	}

	mstmt, err := tx.PrepareContext(ctx,
		`INSERT INTO match_records (category, case_id, truth, tier, extracted, overlap, score)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing match insert: %w", err)
	}
	defer mstmt.Close()

	for _, m := range r.Matches {
		if _, err := mstmt.ExecContext(ctx,
			string(r.Category), r.CaseID, m.Truth, string(m.Tier), m.Extracted, m.Overlap, m.Score,
		); err != nil {
			return fmt.Errorf("inserting match %q: %w", m.Truth, err)
		}
	}

	ustmt, err := tx.PrepareContext(ctx,
		`INSERT INTO unmatched (category, case_id, item, class, evidence, score)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing unmatched insert: %w", err)
	}
	defer ustmt.Close()

	for _, u := range r.Unmatched {
		if _, err := ustmt.ExecContext(ctx,
			string(r.Category), r.CaseID, u.Item, string(u.Class), u.Evidence, u.Score,
		); err != nil {
			return fmt.Errorf("inserting unmatched %q: %w", u.Item, err)
		}
	}

	return tx.Commit()
}

// Has reports whether a successful result for cat and caseID is stored.
// Rows recording an error do not count.
func (s *Store) Has(ctx context.Context, cat types.Category, caseID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM results
		 WHERE category = ? AND case_id = ? AND (error IS NULL OR error = '')`,
		string(cat), caseID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("looking up %s/%s: %w", cat, caseID, err)
	}
	return n > 0, nil
}

// TryCount returns the stored try count of cat and caseID. The second value
// is false when no row is stored.
func (s *Store) TryCount(ctx context.Context, cat types.Category, caseID string) (int, bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT try_count FROM results WHERE category = ? AND case_id = ?`,
		string(cat), caseID,
	).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("looking up try count of %s/%s: %w", cat, caseID, err)
	}
	return n, true, nil
}
