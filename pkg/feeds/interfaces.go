package feeds

import (
	"context"

	"github.com/diralist-hq/diralist-harvester/internal/browser"
	"github.com/diralist-hq/diralist-harvester/internal/domain"
)

// Feed is the per-feed-type scraping capability: where a source lives, how to
// find its items, and how to read one item's markup. Concrete implementations
// live in feed-specific files (e.g., groups.go); the harvest loop composes one
// of these instead of knowing any selectors itself.
type Feed interface {
	Type() string

	// SourceURL resolves the address to harvest for a source id.
	SourceURL(sourceID string) string

	// ItemSelector matches the feed's item container elements.
	ItemSelector() string

	// ExtractID pulls the item's identity key out of its raw markup.
	// Empty means no id could be located.
	ExtractID(html string) string

	// Expand unfolds truncated content inside the item before extraction.
	Expand(ctx context.Context, el browser.Element) error

	// ExtractFields reads one item element into a RawItem.
	ExtractFields(ctx context.Context, el browser.Element) (domain.RawItem, error)

	// Valid reports whether the scraped item carries enough identity to be
	// worth processing.
	Valid(item domain.RawItem) bool
}

// AdapterRegistry resolves the Feed implementation for a source's type.
type AdapterRegistry interface {
	AdapterFor(src Source) (Feed, error)
}
