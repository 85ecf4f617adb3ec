package search

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexcrm/builder/internal/page"
	"nexcrm/builder/internal/schema"
	"nexcrm/builder/internal/store"
)

func TestTextOfStarter(t *testing.T) {
	assert.Equal(t, "Welcome to your new page", TextOf(page.Starter()))
}

func TestTextOfCollectsCopyInOrder(t *testing.T) {
	hero := page.NewNode("hero", schema.TypeHero, page.Props{"align": "center"}).
		WithContent(page.Props{"heading": "Big  launch", "subtitle": "", "ctaLabel": "Buy"})
	doc := page.NewNode("root", schema.TypeBody, nil,
		hero,
		page.NewNode("html", schema.TypeHTMLBlock, page.Props{"html": "<p>Raw <b>markup</b></p>"}),
		page.NewNode("btn", schema.TypeButton, page.Props{"label": "Sign up", "href": "/join"}),
	)

	assert.Equal(t, "Buy Big launch Raw markup Sign up", TextOf(doc))
}

func newSQLiteSearcher(t *testing.T) (*PgFTS, *store.SQLStore) {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, "sqlite3://"+filepath.Join(t.TempDir(), "search.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")))
	return NewPgFTS(db, store.DriverSQLite), store.NewSQLStore(db)
}

func TestSQLiteFallbackSearch(t *testing.T) {
	fts, pages := newSQLiteSearcher(t)
	ctx := context.Background()

	require.NoError(t, pages.InsertPage(ctx, store.Page{ID: "pg_1", TenantID: "acme", Title: "Pricing", Slug: "pricing", Document: []byte(`{}`), Hash: "h", SearchText: "Plans for every team"}))
	require.NoError(t, pages.InsertPage(ctx, store.Page{ID: "pg_2", TenantID: "acme", Title: "About", Slug: "about", Document: []byte(`{}`), Hash: "h", SearchText: "Our team of 100%"}))
	require.NoError(t, pages.InsertPage(ctx, store.Page{ID: "pg_3", TenantID: "globex", Title: "Team", Slug: "team", Document: []byte(`{}`), Hash: "h", SearchText: "team"}))

	results, total, err := fts.Search(Query{Text: "TEAM", TenantID: "acme"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.NotEqual(t, "pg_3", r.ID)
	}

	results, total, err = fts.Search(Query{Text: "pricing", TenantID: "acme"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "pricing", results[0].Slug)

	_, total, err = fts.Search(Query{Text: "100%", TenantID: "acme"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	_, total, err = fts.Search(Query{Text: "team", TenantID: "acme", FilterStatus: store.StatusPublished})
	require.NoError(t, err)
	assert.Zero(t, total)

	results, total, err = fts.Search(Query{Text: "   ", TenantID: "acme"})
	require.NoError(t, err)
	assert.Nil(t, results)
	assert.Zero(t, total)
}

func TestServiceFallsBackToDatabase(t *testing.T) {
	fts, pages := newSQLiteSearcher(t)
	ctx := context.Background()
	require.NoError(t, pages.InsertPage(ctx, store.Page{ID: "pg_1", TenantID: "acme", Title: "Home", Slug: "home", Document: []byte(`{}`), Hash: "h", SearchText: "welcome"}))

	svc := NewService(nil, fts, zerolog.Nop())
	resp := svc.Search(Query{Text: "welcome", TenantID: "acme"})
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "welcome", resp.Query)

	resp = svc.Search(Query{Text: "nothing", TenantID: "acme"})
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)

	// no index configured: indexing is a no-op
	svc.IndexPage(PageRecord{ID: "pg_1"})
	svc.DeletePage("pg_1")
	svc.ReindexAllFromDB(ctx)

	records, err := fts.LoadAllRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "welcome", records[0].Text)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\%\_off\\`, escapeLike(`50%_off\`))
}
