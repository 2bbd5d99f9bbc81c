package domain

// Domain contains core models shared across packages.

// RawItem is one feed post as scraped from the page, before enrichment.
// ID is the post's identity key; items whose id cannot be located in the
// markup are skipped, they could never be deduplicated.
type RawItem struct {
	ID         string `json:"id,omitempty"`
	Link       string `json:"post_link"`
	Timestamp  string `json:"timestamp"`
	AuthorName string `json:"user"`
	AuthorLink string `json:"user_link"`
	Text       string `json:"text"`
}

// Record is the result of merging one RawItem with its enrichment output.
// Only records with IsValid true are persisted.
type Record struct {
	ID           string   `json:"id,omitempty"`
	SourceID     string   `json:"source_id"`
	AccountID    string   `json:"account_id,omitempty"`
	Link         string   `json:"post_link"`
	Timestamp    string   `json:"timestamp"`
	AuthorName   string   `json:"user"`
	AuthorLink   string   `json:"user_link,omitempty"`
	Text         string   `json:"text"`
	Price        *float64 `json:"price"`
	Location     string   `json:"location"`
	PhoneNumbers []string `json:"phone_numbers"`
	Mentions     []string `json:"mentions"`
	Summary      string   `json:"summary"`
	IsValid      bool     `json:"is_valid"`
}
