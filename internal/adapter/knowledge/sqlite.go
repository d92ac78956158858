// Package knowledge provides the SQLite-backed knowledge store.
package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"conductor/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS insights (
	id           TEXT PRIMARY KEY,
	query_hash   TEXT NOT NULL,
	domain       TEXT NOT NULL,
	pattern_type TEXT NOT NULL,
	content      TEXT NOT NULL,
	session_id   TEXT NOT NULL DEFAULT '',
	metadata     TEXT NOT NULL DEFAULT '{}',
	created_at   TIMESTAMP NOT NULL,
	UNIQUE(query_hash, content)
);
CREATE INDEX IF NOT EXISTS idx_insights_hash ON insights(query_hash);
CREATE INDEX IF NOT EXISTS idx_insights_domain ON insights(domain);
CREATE INDEX IF NOT EXISTS idx_insights_created ON insights(created_at);
`

// Store implements domain.KnowledgeStore backed by SQLite. Entries are
// upserted on (query_hash, content), so storing identical insights twice is
// idempotent; a new entry with the same hash but different content is added
// alongside the old one, never overwriting it.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens (or creates) a SQLite database at dbPath and runs migrations.
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open db: %v", domain.ErrKnowledgeStore, err)
	}

	// SQLite write safety: single writer.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: pragma: %v", domain.ErrKnowledgeStore, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", domain.ErrKnowledgeStore, err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Write implements domain.KnowledgeStore.
func (s *Store) Write(ctx context.Context, entry domain.KnowledgeEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	meta, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("%w: marshal metadata: %v", domain.ErrKnowledgeStore, err)
	}

	const upsert = `
		INSERT INTO insights (id, query_hash, domain, pattern_type, content, session_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(query_hash, content) DO NOTHING
	`
	_, err = s.db.ExecContext(ctx, upsert,
		entry.ID, entry.QueryHash, entry.Domain, entry.PatternType,
		entry.Content, entry.SessionID, string(meta), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: write: %v", domain.ErrKnowledgeStore, err)
	}
	return nil
}

// Search implements domain.KnowledgeStore. Matching is keyword LIKE search
// over content, newest first. An empty domain matches all domains.
func (s *Store) Search(ctx context.Context, query, knowledgeDomain string, limit int) ([]domain.KnowledgeEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	const base = `
		SELECT id, query_hash, domain, pattern_type, content, session_id, metadata, created_at
		FROM insights
		WHERE (? = '' OR domain = ?)
		  AND (? = '' OR content LIKE '%' || ? || '%' OR query_hash = ?)
		ORDER BY created_at DESC
		LIMIT ?
	`
	keyword := firstKeyword(query)
	rows, err := s.db.QueryContext(ctx, base,
		knowledgeDomain, knowledgeDomain, keyword, keyword, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", domain.ErrKnowledgeStore, err)
	}
	defer rows.Close()

	var entries []domain.KnowledgeEntry
	for rows.Next() {
		var e domain.KnowledgeEntry
		var meta string
		if err := rows.Scan(&e.ID, &e.QueryHash, &e.Domain, &e.PatternType,
			&e.Content, &e.SessionID, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", domain.ErrKnowledgeStore, err)
		}
		if meta != "" && meta != "{}" {
			if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
				s.logger.Warn("knowledge entry metadata unreadable", "id", e.ID, "error", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows: %v", domain.ErrKnowledgeStore, err)
	}
	return entries, nil
}

// Prune implements domain.KnowledgeStore.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM insights WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: prune: %v", domain.ErrKnowledgeStore, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: rows affected: %v", domain.ErrKnowledgeStore, err)
	}
	return int(n), nil
}

// firstKeyword picks the longest token of the query as the LIKE keyword; a
// full-sentence LIKE would almost never match stored fragments.
func firstKeyword(query string) string {
	longest := ""
	field := ""
	for _, r := range query + " " {
		if r == ' ' || r == '\t' || r == '\n' {
			if len(field) > len(longest) {
				longest = field
			}
			field = ""
			continue
		}
		field += string(r)
	}
	if len(longest) < 4 {
		return ""
	}
	return longest
}

// Compile-time interface check.
var _ domain.KnowledgeStore = (*Store)(nil)
