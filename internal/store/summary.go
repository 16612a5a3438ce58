package store

import (
	"context"
	"database/sql"
	"time"

	"convoke"
)

const summarySchema = `
CREATE TABLE IF NOT EXISTS entities (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_type  TEXT NOT NULL,
	name         TEXT NOT NULL,
	created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS entity_relations (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	relation_type  TEXT NOT NULL,
	source_id      INTEGER NOT NULL,
	target_id      INTEGER NOT NULL,
	created_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS hn_items (
	id          INTEGER PRIMARY KEY,
	title       TEXT,
	score       INTEGER,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SummaryStore answers aggregate questions about the underlying dataset.
// It shares the database handle with SQLiteStore so a single file serves
// both conversations and domain data.
type SummaryStore struct {
	db *sql.DB
}

// NewSummaryStore wraps db and ensures the dataset tables exist.
func NewSummaryStore(db *sql.DB) (*SummaryStore, error) {
	if _, err := db.Exec(summarySchema); err != nil {
		return nil, convoke.NewStorageError("initialize", err)
	}
	return &SummaryStore{db: db}, nil
}

// Summarize builds a DataSummary from the current dataset contents.
func (s *SummaryStore) Summarize(ctx context.Context) (convoke.DataSummary, error) {
	summary := convoke.DataSummary{
		EntityCountByType:    map[string]int64{},
		RelationCountByType:  map[string]int64{},
		ItemCountByTimeframe: map[string]int64{},
	}

	if err := s.countByType(ctx,
		`SELECT entity_type, COUNT(*) FROM entities GROUP BY entity_type`,
		summary.EntityCountByType); err != nil {
		return summary, err
	}
	if err := s.countByType(ctx,
		`SELECT relation_type, COUNT(*) FROM entity_relations GROUP BY relation_type`,
		summary.RelationCountByType); err != nil {
		return summary, err
	}

	var total int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM hn_items`).Scan(&total); err != nil {
		return summary, convoke.NewStorageError("summarize", err)
	}
	summary.ItemCountByTimeframe["total"] = total

	var latest sql.NullString
	if err := s.db.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM hn_items`).Scan(&latest); err != nil {
		return summary, convoke.NewStorageError("summarize", err)
	}
	if latest.Valid {
		if t, err := parseFreshness(latest.String); err == nil {
			summary.DataFreshness = &t
		}
	}
	return summary, nil
}

func (s *SummaryStore) countByType(ctx context.Context, query string, dest map[string]int64) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return convoke.NewStorageError("summarize", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var count int64
		if err := rows.Scan(&kind, &count); err != nil {
			return convoke.NewStorageError("summarize", err)
		}
		dest[kind] = count
	}
	if err := rows.Err(); err != nil {
		return convoke.NewStorageError("summarize", err)
	}
	return nil
}

// SQLite's CURRENT_TIMESTAMP emits "2006-01-02 15:04:05"; rows written by
// Go code carry RFC 3339.
func parseFreshness(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", s)
}
