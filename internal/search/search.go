package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Slug    string `json:"slug"`
	Status  string `json:"status"`
	Snippet string `json:"snippet"`
}

// Query describes a search request. Results are always restricted to one
// tenant.
type Query struct {
	Text         string
	TenantID     string
	FilterStatus string
	Limit        int
	Offset       int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push pages into a search index.
type Indexer interface {
	IndexPage(p PageRecord) error
	DeletePage(id string) error
}

// PageRecord is the data we index for a page.
type PageRecord struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	Title    string `json:"title"`
	Slug     string `json:"slug"`
	Status   string `json:"status"`
	Text     string `json:"text"`
}
