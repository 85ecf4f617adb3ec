package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// ErrSlugTaken is returned when a tenant already has a page with the slug.
var ErrSlugTaken = errors.New("slug already in use")

// SQLStore persists pages on Postgres or SQLite. Queries use only syntax both
// understand; $n placeholders appear in ascending order so SQLite binds them
// positionally.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ListPages returns the tenant's pages, most recently updated first. The
// Document field is left empty.
func (s *SQLStore) ListPages(ctx context.Context, tenantID string) ([]Page, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, title, slug, status, hash, published_hash, updated_by, created_at, updated_at
		FROM pages
		WHERE tenant_id = $1
		ORDER BY updated_at DESC, title ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	pages := make([]Page, 0)
	for rows.Next() {
		var p Page
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Title, &p.Slug, &p.Status, &p.Hash, &p.PublishedHash, &p.UpdatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return pages, nil
}

// GetPage loads one page with its document. A missing page yields an error
// wrapping sql.ErrNoRows.
func (s *SQLStore) GetPage(ctx context.Context, tenantID, pageID string) (Page, error) {
	var p Page
	var document string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, title, slug, status, document, hash, published_hash, search_text, updated_by, created_at, updated_at
		FROM pages
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, pageID).Scan(&p.ID, &p.TenantID, &p.Title, &p.Slug, &p.Status, &document, &p.Hash, &p.PublishedHash, &p.SearchText, &p.UpdatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Page{}, fmt.Errorf("get page %s: %w", pageID, err)
	}
	p.Document = []byte(document)
	return p, nil
}

func (s *SQLStore) InsertPage(ctx context.Context, p Page) error {
	status := p.Status
	if status == "" {
		status = StatusDraft
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pages (id, tenant_id, title, slug, status, document, hash, search_text, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, p.ID, p.TenantID, p.Title, p.Slug, status, string(p.Document), p.Hash, p.SearchText, p.UpdatedBy)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert page %s: %w", p.Slug, ErrSlugTaken)
		}
		return fmt.Errorf("insert page: %w", err)
	}
	return nil
}

// SaveDocument stores a new document for an existing page. It reports false
// when the page does not exist.
func (s *SQLStore) SaveDocument(ctx context.Context, tenantID, pageID string, document []byte, hash, searchText, updatedBy string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pages
		SET document = $1, hash = $2, search_text = $3, updated_by = $4, updated_at = CURRENT_TIMESTAMP
		WHERE tenant_id = $5 AND id = $6
	`, string(document), hash, searchText, updatedBy, tenantID, pageID)
	if err != nil {
		return false, fmt.Errorf("save page document: %w", err)
	}
	return affected(res)
}

// MarkPublished records that the document with hash is live.
func (s *SQLStore) MarkPublished(ctx context.Context, tenantID, pageID, hash, updatedBy string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pages
		SET status = 'published', published_hash = $1, updated_by = $2, updated_at = CURRENT_TIMESTAMP
		WHERE tenant_id = $3 AND id = $4
	`, hash, updatedBy, tenantID, pageID)
	if err != nil {
		return false, fmt.Errorf("mark page published: %w", err)
	}
	return affected(res)
}

func (s *SQLStore) InsertAsset(ctx context.Context, a Asset) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO page_assets (id, tenant_id, page_id, object_key, url, content_type, size_bytes, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, a.TenantID, a.PageID, a.ObjectKey, a.URL, a.ContentType, a.Size, a.UploadedBy)
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

func (s *SQLStore) ListAssets(ctx context.Context, tenantID, pageID string) ([]Asset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, page_id, object_key, url, content_type, size_bytes, uploaded_by, created_at
		FROM page_assets
		WHERE tenant_id = $1 AND page_id = $2
		ORDER BY created_at ASC, id ASC
	`, tenantID, pageID)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	assets := make([]Asset, 0)
	for rows.Next() {
		var a Asset
		if err := rows.Scan(&a.ID, &a.TenantID, &a.PageID, &a.ObjectKey, &a.URL, &a.ContentType, &a.Size, &a.UploadedBy, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assets: %w", err)
	}
	return assets, nil
}

// DeletePage removes the page and, by cascade, its asset rows. It reports
// false when the page does not exist.
func (s *SQLStore) DeletePage(ctx context.Context, tenantID, pageID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pages WHERE tenant_id = $1 AND id = $2`, tenantID, pageID)
	if err != nil {
		return false, fmt.Errorf("delete page: %w", err)
	}
	return affected(res)
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique || liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
