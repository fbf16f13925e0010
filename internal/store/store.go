package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ibeckermayer/threadsense/internal/types"
)

// ErrNotFound is returned when no archived scrape has the given id
var ErrNotFound = errors.New("scrape not found")

// Store archives scrape results in SQLite
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens (creating if needed) the archive at dbPath
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scrapes (
		id TEXT PRIMARY KEY,
		post_url TEXT NOT NULL,
		author TEXT,
		comment_count INTEGER NOT NULL,
		stop_reason TEXT,
		result TEXT NOT NULL,
		scraped_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS analyses (
		scrape_id TEXT PRIMARY KEY REFERENCES scrapes(id) ON DELETE CASCADE,
		results TEXT NOT NULL,
		distribution TEXT NOT NULL,
		analyzed_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_scrapes_scraped_at ON scrapes(scraped_at);
	CREATE INDEX IF NOT EXISTS idx_scrapes_post_url ON scrapes(post_url);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Save archives a scrape result and returns its id
func (s *Store) Save(r *types.ScrapeResult) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}

	id := uuid.NewString()
	scrapedAt := r.Metadata.ScrapedAt
	if scrapedAt.IsZero() {
		scrapedAt = s.now()
	}

	_, err = s.db.Exec(`
		INSERT INTO scrapes (id, post_url, author, comment_count, stop_reason, result, scraped_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, r.Post.URL, r.Post.Author, r.Metadata.TotalComments, string(r.Metadata.StopReason),
		string(data), scrapedAt.UTC())
	if err != nil {
		return "", fmt.Errorf("failed to save scrape: %w", err)
	}

	return id, nil
}

// SaveAnalysis attaches (or replaces) the sentiment analysis of a scrape
func (s *Store) SaveAnalysis(scrapeID string, results []types.CommentSentiment) error {
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return err
	}
	distJSON, err := json.Marshal(types.Tally(results))
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO analyses (scrape_id, results, distribution, analyzed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(scrape_id) DO UPDATE SET
			results = excluded.results,
			distribution = excluded.distribution,
			analyzed_at = excluded.analyzed_at
	`, scrapeID, string(resultsJSON), string(distJSON), s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	return nil
}

// List returns the most recent scrapes, newest first, without their bodies
func (s *Store) List(limit int) ([]Scrape, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT id, post_url, author, comment_count, stop_reason, scraped_at
		FROM scrapes
		ORDER BY scraped_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scrapes []Scrape
	for rows.Next() {
		var sc Scrape
		var author, reason sql.NullString
		if err := rows.Scan(&sc.ID, &sc.PostURL, &author, &sc.Comments, &reason, &sc.ScrapedAt); err != nil {
			return nil, err
		}
		sc.Author = author.String
		sc.StopReason = types.StopReason(reason.String)
		scrapes = append(scrapes, sc)
	}
	return scrapes, rows.Err()
}

// Get returns one archived scrape with its result and analysis, if any
func (s *Store) Get(id string) (*Scrape, error) {
	var sc Scrape
	var author, reason sql.NullString
	var resultJSON string

	err := s.db.QueryRow(`
		SELECT id, post_url, author, comment_count, stop_reason, result, scraped_at
		FROM scrapes WHERE id = ?
	`, id).Scan(&sc.ID, &sc.PostURL, &author, &sc.Comments, &reason, &resultJSON, &sc.ScrapedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	sc.Author = author.String
	sc.StopReason = types.StopReason(reason.String)

	var result types.ScrapeResult
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return nil, fmt.Errorf("failed to decode archived result: %w", err)
	}
	sc.Result = &result

	var a Analysis
	var resultsJSON, distJSON string
	err = s.db.QueryRow(`
		SELECT scrape_id, results, distribution, analyzed_at
		FROM analyses WHERE scrape_id = ?
	`, id).Scan(&a.ScrapeID, &resultsJSON, &distJSON, &a.AnalyzedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, err
	default:
		if err := json.Unmarshal([]byte(resultsJSON), &a.Results); err != nil {
			return nil, fmt.Errorf("failed to decode archived analysis: %w", err)
		}
		if err := json.Unmarshal([]byte(distJSON), &a.Distribution); err != nil {
			return nil, fmt.Errorf("failed to decode archived analysis: %w", err)
		}
		sc.Analysis = &a
	}

	return &sc, nil
}

// Prune deletes scrapes older than cutoff and returns how many were removed
func (s *Store) Prune(cutoff time.Time) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		DELETE FROM analyses WHERE scrape_id IN (SELECT id FROM scrapes WHERE scraped_at < ?)
	`, cutoff.UTC()); err != nil {
		return 0, err
	}

	res, err := tx.Exec(`DELETE FROM scrapes WHERE scraped_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	return n, tx.Commit()
}
