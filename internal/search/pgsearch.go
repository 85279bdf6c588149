package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgSearch is the fallback searcher: a case-insensitive pattern match over
// the idfs table. Always available, since losing Postgres means losing the
// whole app anyway.
type PgSearch struct {
	db *sql.DB
}

func NewPgSearch(db *sql.DB) *PgSearch {
	return &PgSearch{db: db}
}

func (p *PgSearch) Healthy() bool {
	return true
}

func (p *PgSearch) Search(q Query) ([]Record, int, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	pattern := "%" + strings.TrimSpace(q.Text) + "%"

	const where = `
		cluster=$1 AND project=$2
		AND (code ILIKE $3 OR title ILIKE $3 OR site ILIKE $3 OR room ILIKE $3 OR description ILIKE $3)`

	var total int
	if err := p.db.QueryRow(`SELECT COUNT(*) FROM idfs WHERE`+where, q.Cluster, q.Project, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count search hits: %w", err)
	}

	rows, err := p.db.Query(`
		SELECT cluster, project, code, title,
			coalesce(site, ''), coalesce(room, ''), coalesce(description, '')
		FROM idfs WHERE`+where+`
		ORDER BY code LIMIT $4 OFFSET $5`,
		q.Cluster, q.Project, pattern, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("search idfs: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Cluster, &rec.Project, &rec.Code, &rec.Title, &rec.Site, &rec.Room, &rec.Description); err != nil {
			return nil, 0, fmt.Errorf("scan search hit: %w", err)
		}
		rec.ID = DocID(rec.Cluster, rec.Project, rec.Code)
		records = append(records, rec)
	}
	return records, total, rows.Err()
}

// LoadAllRecords reads every frame for bulk reindexing.
func (p *PgSearch) LoadAllRecords(ctx context.Context) ([]Record, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT cluster, project, code, title,
			coalesce(site, ''), coalesce(room, ''), coalesce(description, '')
		FROM idfs ORDER BY cluster, project, code`)
	if err != nil {
		return nil, fmt.Errorf("load idfs for reindex: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Cluster, &rec.Project, &rec.Code, &rec.Title, &rec.Site, &rec.Room, &rec.Description); err != nil {
			return nil, fmt.Errorf("scan idf for reindex: %w", err)
		}
		rec.ID = DocID(rec.Cluster, rec.Project, rec.Code)
		records = append(records, rec)
	}
	return records, rows.Err()
}
