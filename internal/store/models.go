package store

import (
	"encoding/json"
	"time"
)

// Page statuses.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
)

// Page is a saved page. Document is the JSON node tree exactly as the editor
// produced it; Hash is page.Hash of that tree.
type Page struct {
	ID            string
	TenantID      string
	Title         string
	Slug          string
	Status        string
	Document      json.RawMessage
	Hash          string
	PublishedHash string
	SearchText    string
	UpdatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Asset is an uploaded file referenced from a page, typically an Image src.
type Asset struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"-"`
	PageID      string    `json:"pageId"`
	ObjectKey   string    `json:"objectKey"`
	URL         string    `json:"url"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	UploadedBy  string    `json:"uploadedBy"`
	CreatedAt   time.Time `json:"createdAt"`
}
