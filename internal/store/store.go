// Package store persists evaluated proposals for Steward.
//
// It uses SQLite with FTS5 full-text search over title, summary and
// category. Each row keeps the full evaluation record as JSON next to
// the columns used for listing and filtering, and the record digest is
// verified on the way in and on the way out.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/HendryAvila/steward/internal/pipeline"
	"github.com/HendryAvila/steward/internal/proposal"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// ─── Errors ──────────────────────────────────────────────────────────────────

var (
	// ErrNotFound is returned when no proposal has the requested id.
	ErrNotFound = errors.New("proposal not found")
	// ErrDuplicate is returned when a proposal id is saved twice.
	ErrDuplicate = errors.New("proposal already stored")
)

// ─── Types ───────────────────────────────────────────────────────────────────

// Summary is the listing view of a stored proposal.
type Summary struct {
	ID        string            `json:"id"`
	CoopID    string            `json:"coop_id"`
	Title     string            `json:"title"`
	Category  string            `json:"category,omitempty"`
	Decision  proposal.Decision `json:"decision"`
	Status    proposal.Status   `json:"status"`
	Composite float64           `json:"composite"`
	CreatedAt string            `json:"created_at"`
}

// SearchResult is a Summary with its FTS5 rank. Lower ranks match
// better.
type SearchResult struct {
	Summary
	Rank float64 `json:"rank"`
}

// SearchOptions holds filters for FTS5 search queries.
type SearchOptions struct {
	CoopID   string            `json:"coop_id,omitempty"`
	Decision proposal.Decision `json:"decision,omitempty"`
	Limit    int               `json:"limit,omitempty"`
}

// Stats holds aggregate store statistics.
type Stats struct {
	TotalProposals int                       `json:"total_proposals"`
	ByDecision     map[proposal.Decision]int `json:"by_decision"`
	Coops          []string                  `json:"coops"`
}

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds store configuration.
type Config struct {
	DataDir          string
	MaxSearchResults int
}

// DefaultConfig returns the default configuration for the store.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:          filepath.Join(home, ".steward"),
		MaxSearchResults: 50,
	}
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the proposal archive backed by SQLite + FTS5. It is safe
// for concurrent use; database/sql serialises access to the file.
type Store struct {
	db  *sql.DB
	cfg Config
}

// New creates a Store with the given configuration. It creates the data
// directory if needed, opens SQLite with WAL mode and runs migrations.
func New(cfg Config) (*Store, error) {
	if cfg.MaxSearchResults <= 0 {
		cfg.MaxSearchResults = DefaultConfig().MaxSearchResults
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "proposals.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, cfg: cfg}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS proposals (
			seq            INTEGER PRIMARY KEY AUTOINCREMENT,
			id             TEXT    NOT NULL UNIQUE,
			coop_id        TEXT    NOT NULL,
			title          TEXT    NOT NULL DEFAULT '',
			summary        TEXT    NOT NULL DEFAULT '',
			category       TEXT    NOT NULL DEFAULT '',
			decision       TEXT    NOT NULL,
			status         TEXT    NOT NULL,
			composite      REAL    NOT NULL,
			engine_version TEXT    NOT NULL,
			record_digest  TEXT    NOT NULL,
			record         TEXT    NOT NULL,
			created_at     TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_prop_coop     ON proposals(coop_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_prop_decision ON proposals(decision);

		CREATE VIRTUAL TABLE IF NOT EXISTS proposals_fts USING fts5(
			title,
			summary,
			category,
			content='proposals',
			content_rowid='seq'
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='trigger' AND name='prop_fts_insert'",
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		triggers := `
			CREATE TRIGGER prop_fts_insert AFTER INSERT ON proposals BEGIN
				INSERT INTO proposals_fts(rowid, title, summary, category)
				VALUES (new.seq, new.title, new.summary, new.category);
			END;

			CREATE TRIGGER prop_fts_delete AFTER DELETE ON proposals BEGIN
				INSERT INTO proposals_fts(proposals_fts, rowid, title, summary, category)
				VALUES ('delete', old.seq, old.title, old.summary, old.category);
			END;
		`
		if _, err := s.db.Exec(triggers); err != nil {
			return fmt.Errorf("create triggers: %w", err)
		}
		return nil
	}
	return err
}

// ─── Proposals ───────────────────────────────────────────────────────────────

// Save stores out under coopID. The record digest must verify; a
// tampered or hand-edited record is refused.
func (s *Store) Save(coopID string, out *proposal.Output) error {
	if out == nil {
		return errors.New("store: nil proposal")
	}
	if strings.TrimSpace(coopID) == "" {
		coopID = out.CoopID
	}
	if coopID == "" {
		return errors.New("store: coop id is required")
	}
	if err := pipeline.VerifyRecord(out); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("store: encode record: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO proposals (id, coop_id, title, summary, category, decision, status,
		                       composite, engine_version, record_digest, record, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		out.ID, coopID, out.Title, out.Summary, string(out.Category), string(out.Decision), string(out.Status),
		out.GoalScores.Composite, out.Audit.EngineVersion, out.Audit.RecordDigest, string(raw), out.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrDuplicate, out.ID)
	}
	if err != nil {
		return fmt.Errorf("store: insert: %w", err)
	}
	return nil
}

// Get returns the stored record for id. The digest is re-verified so a
// row edited behind the store's back surfaces as
// pipeline.ErrRecordTampered.
func (s *Store) Get(id string) (*proposal.Output, error) {
	var raw string
	err := s.db.QueryRow("SELECT record FROM proposals WHERE id = ?", id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get: %w", err)
	}

	var out proposal.Output
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("store: decode record %s: %w", id, err)
	}
	if err := pipeline.VerifyRecord(&out); err != nil {
		return nil, fmt.Errorf("store: record %s: %w", id, err)
	}
	return &out, nil
}

// Delete removes a stored proposal.
func (s *Store) Delete(id string) error {
	res, err := s.db.Exec("DELETE FROM proposals WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("store: delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Recent lists the newest proposals, optionally for one coop.
func (s *Store) Recent(coopID string, limit int) ([]Summary, error) {
	limit = s.clampLimit(limit)
	query := `SELECT ` + summaryColumns + ` FROM proposals`
	var args []any
	if coopID != "" {
		query += " WHERE coop_id = ?"
		args = append(args, coopID)
	}
	query += " ORDER BY created_at DESC, seq DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(summaryDest(&sum)...); err != nil {
			return nil, err
		}
		results = append(results, sum)
	}
	return results, rows.Err()
}

// ─── Search (FTS5) ───────────────────────────────────────────────────────────

// Search performs full-text search across stored proposals. An empty or
// whitespace-only query falls back to the most recent proposals.
func (s *Store) Search(query string, opts SearchOptions) ([]SearchResult, error) {
	limit := s.clampLimit(opts.Limit)

	ftsQuery := sanitizeFTS(query)
	if ftsQuery == "" {
		recent, err := s.Recent(opts.CoopID, limit)
		if err != nil {
			return nil, err
		}
		var results []SearchResult
		for _, r := range recent {
			if opts.Decision != "" && r.Decision != opts.Decision {
				continue
			}
			results = append(results, SearchResult{Summary: r})
		}
		return results, nil
	}

	sqlStr := `
		SELECT ` + prefixed("p.", summaryColumns) + `, fts.rank
		FROM proposals_fts fts
		JOIN proposals p ON p.seq = fts.rowid
		WHERE proposals_fts MATCH ?
	`
	args := []any{ftsQuery}
	if opts.CoopID != "" {
		sqlStr += " AND p.coop_id = ?"
		args = append(args, opts.CoopID)
	}
	if opts.Decision != "" {
		sqlStr += " AND p.decision = ?"
		args = append(args, string(opts.Decision))
	}
	sqlStr += " ORDER BY fts.rank LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var sr SearchResult
		if err := rows.Scan(append(summaryDest(&sr.Summary), &sr.Rank)...); err != nil {
			return nil, err
		}
		results = append(results, sr)
	}
	return results, rows.Err()
}

// ─── Stats ───────────────────────────────────────────────────────────────────

// Stats returns aggregate counts over the archive.
func (s *Store) Stats() (*Stats, error) {
	stats := &Stats{ByDecision: map[proposal.Decision]int{}}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM proposals").Scan(&stats.TotalProposals); err != nil {
		return nil, fmt.Errorf("store: stats: %w", err)
	}

	rows, err := s.db.Query("SELECT decision, COUNT(*) FROM proposals GROUP BY decision")
	if err != nil {
		return nil, fmt.Errorf("store: stats: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var d string
		var n int
		if err := rows.Scan(&d, &n); err != nil {
			return nil, fmt.Errorf("store: stats: %w", err)
		}
		stats.ByDecision[proposal.Decision(d)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: stats: %w", err)
	}

	coops, err := s.db.Query("SELECT coop_id FROM proposals GROUP BY coop_id ORDER BY MAX(created_at) DESC")
	if err != nil {
		return nil, fmt.Errorf("store: stats: %w", err)
	}
	defer func() { _ = coops.Close() }()
	for coops.Next() {
		var c string
		if err := coops.Scan(&c); err != nil {
			return nil, fmt.Errorf("store: stats: %w", err)
		}
		stats.Coops = append(stats.Coops, c)
	}
	if err := coops.Err(); err != nil {
		return nil, fmt.Errorf("store: stats: %w", err)
	}
	return stats, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

const summaryColumns = "id, coop_id, title, category, decision, status, composite, created_at"

func summaryDest(s *Summary) []any {
	return []any{&s.ID, &s.CoopID, &s.Title, &s.Category, &s.Decision, &s.Status, &s.Composite, &s.CreatedAt}
}

// prefixed qualifies every column in a comma-separated list.
func prefixed(prefix, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func (s *Store) clampLimit(limit int) int {
	if limit <= 0 {
		limit = 10
	}
	return min(limit, s.cfg.MaxSearchResults)
}

// sanitizeFTS wraps each word in quotes for safe FTS5 queries.
// "solar panels" → `"solar" "panels"`
func sanitizeFTS(query string) string {
	var words []string
	for _, w := range strings.Fields(query) {
		if w = strings.ReplaceAll(w, `"`, ""); w != "" {
			words = append(words, `"`+w+`"`)
		}
	}
	return strings.Join(words, " ")
}

// isUniqueViolation checks if an error is a SQLite UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
