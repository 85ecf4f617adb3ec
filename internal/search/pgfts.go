package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher over the pages table. On Postgres it ranks with
// full-text search; on SQLite it falls back to a case-insensitive substring
// match.
type PgFTS struct {
	db     *sql.DB
	driver string
}

// NewPgFTS creates a database searcher. driver is the database/sql driver
// name the pool was opened with.
func NewPgFTS(db *sql.DB, driver string) *PgFTS {
	return &PgFTS{db: db, driver: driver}
}

// Healthy always returns true: if the database is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	if p.driver == "sqlite3" {
		return p.searchLike(q, limit, offset)
	}
	return p.searchFTS(q, limit, offset)
}

func (p *PgFTS) searchFTS(q Query, limit, offset int) ([]Result, int, error) {
	const vector = "to_tsvector('english', title || ' ' || search_text)"
	const tsQuery = "plainto_tsquery('english', $1)"

	where := fmt.Sprintf("%s @@ %s AND tenant_id = $2", vector, tsQuery)
	args := []any{q.Text, q.TenantID}
	if q.FilterStatus != "" {
		where += " AND status = $3"
		args = append(args, q.FilterStatus)
	}

	countSQL := "SELECT count(*) FROM pages WHERE " + where
	dataSQL := fmt.Sprintf(`
		SELECT id, title, slug, status,
			ts_headline('english', search_text, %s, 'MaxFragments=1,MaxWords=30') AS snippet
		FROM pages
		WHERE %s
		ORDER BY ts_rank(%s, %s) DESC, updated_at DESC
		LIMIT %d OFFSET %d`, tsQuery, where, vector, tsQuery, limit, offset)

	return p.run(countSQL, dataSQL, args)
}

func (p *PgFTS) searchLike(q Query, limit, offset int) ([]Result, int, error) {
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(q.Text))) + "%"
	where := `(lower(title) LIKE $1 ESCAPE '\' OR lower(search_text) LIKE $2 ESCAPE '\') AND tenant_id = $3`
	args := []any{pattern, pattern, q.TenantID}
	if q.FilterStatus != "" {
		where += " AND status = $4"
		args = append(args, q.FilterStatus)
	}

	countSQL := "SELECT count(*) FROM pages WHERE " + where
	dataSQL := fmt.Sprintf(`
		SELECT id, title, slug, status, substr(search_text, 1, 200) AS snippet
		FROM pages
		WHERE %s
		ORDER BY updated_at DESC, title ASC
		LIMIT %d OFFSET %d`, where, limit, offset)

	return p.run(countSQL, dataSQL, args)
}

func (p *PgFTS) run(countSQL, dataSQL string, args []any) ([]Result, int, error) {
	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Slug, &r.Status, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// LoadAllRecords returns every page as an index record, for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]PageRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, tenant_id, title, slug, status, search_text
		FROM pages
	`)
	if err != nil {
		return nil, fmt.Errorf("load pages: %w", err)
	}
	defer rows.Close()

	records := make([]PageRecord, 0)
	for rows.Next() {
		var r PageRecord
		if err := rows.Scan(&r.ID, &r.TenantID, &r.Title, &r.Slug, &r.Status, &r.Text); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return records, nil
}
