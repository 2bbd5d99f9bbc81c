package enrich

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/diralist-hq/diralist-harvester/internal/domain"
	"github.com/diralist-hq/diralist-harvester/internal/logger"
)

// Reconciler turns a batch of raw items into enriched records. The extraction
// service gives no cardinality guarantee, so the response is repaired to match
// the request: shorter responses are right-padded with invalid placeholders,
// longer ones truncated. Output length always equals input length.
type Reconciler struct {
	completer Completer
	log       logger.Logger
}

// NewReconciler wires a reconciler around an extraction completer.
func NewReconciler(completer Completer, log logger.Logger) *Reconciler {
	if log == nil {
		log = &logger.NopLogger{}
	}
	return &Reconciler{completer: completer, log: log}
}

// enrichment mirrors one object of the extraction response.
type enrichment struct {
	User         string   `json:"user"`
	Timestamp    string   `json:"timestamp"`
	PostLink     string   `json:"post_link"`
	Text         string   `json:"text"`
	Price        *float64 `json:"price"`
	Location     string   `json:"location"`
	PhoneNumbers []string `json:"phone_numbers"`
	Mentions     []string `json:"mentions"`
	Summary      string   `json:"summary"`
	IsValid      bool     `json:"is_valid"`
}

// Reconcile enriches the batch. Any service, decode, or shape failure is one
// error for the whole batch; there is no partial credit. On success the result
// has exactly one record per input item, in input order.
func (r *Reconciler) Reconcile(ctx context.Context, sourceID string, items []domain.RawItem) ([]domain.Record, error) {
	if r == nil || r.completer == nil {
		return nil, fmt.Errorf("reconciler is not initialized")
	}
	if len(items) == 0 {
		return nil, nil
	}

	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = item.Text
	}
	payload, err := json.Marshal(texts)
	if err != nil {
		return nil, fmt.Errorf("marshal batch texts: %w", err)
	}

	raw, err := r.completer.Complete(ctx, listingInstruction, string(payload))
	if err != nil {
		return nil, fmt.Errorf("enrich batch of %d: %w", len(items), err)
	}

	results, err := parseEnrichments(raw)
	if err != nil {
		return nil, fmt.Errorf("enrich batch of %d: %w", len(items), err)
	}

	results = r.repairLength(sourceID, results, len(items))

	records := make([]domain.Record, len(items))
	for i := range items {
		records[i] = merge(sourceID, items[i], results[i])
	}
	return records, nil
}

// parseEnrichments accepts either a bare JSON array or an object carrying the
// array under "output". Anything else is a hard error.
func parseEnrichments(raw string) ([]enrichment, error) {
	var asArray []enrichment
	if err := json.Unmarshal([]byte(raw), &asArray); err == nil {
		return asArray, nil
	}

	var asObject struct {
		Output []enrichment `json:"output"`
	}
	if err := json.Unmarshal([]byte(raw), &asObject); err != nil {
		return nil, fmt.Errorf("decode extraction response: %w", err)
	}
	if asObject.Output == nil {
		return nil, fmt.Errorf("extraction response is neither an array nor an object with an output array")
	}
	return asObject.Output, nil
}

func (r *Reconciler) repairLength(sourceID string, results []enrichment, want int) []enrichment {
	if len(results) == want {
		return results
	}

	r.log.WarnObj("extraction length mismatch repaired", "mismatch", map[string]any{
		"source_id": sourceID,
		"got":       len(results),
		"want":      want,
	})

	if len(results) > want {
		return results[:want]
	}
	for len(results) < want {
		results = append(results, emptyEnrichment())
	}
	return results
}

// emptyEnrichment is the canonical padding record: all optional fields empty,
// never valid.
func emptyEnrichment() enrichment {
	return enrichment{
		PhoneNumbers: []string{},
		Mentions:     []string{},
		IsValid:      false,
	}
}

// merge starts from the enrichment object and falls back to the scraped item
// for every field the model left missing or empty. Scraped values act as
// defaults; enrichment values take precedence when present.
func merge(sourceID string, item domain.RawItem, e enrichment) domain.Record {
	rec := domain.Record{
		ID:           item.ID,
		SourceID:     sourceID,
		Link:         e.PostLink,
		Timestamp:    e.Timestamp,
		AuthorName:   e.User,
		AuthorLink:   item.AuthorLink,
		Text:         e.Text,
		Price:        e.Price,
		Location:     e.Location,
		PhoneNumbers: e.PhoneNumbers,
		Mentions:     e.Mentions,
		Summary:      e.Summary,
		IsValid:      e.IsValid,
	}

	if rec.Link == "" {
		rec.Link = item.Link
	}
	if rec.Timestamp == "" {
		rec.Timestamp = item.Timestamp
	}
	if rec.AuthorName == "" {
		rec.AuthorName = item.AuthorName
	}
	if rec.Text == "" {
		rec.Text = item.Text
	}
	if rec.PhoneNumbers == nil {
		rec.PhoneNumbers = []string{}
	}
	if rec.Mentions == nil {
		rec.Mentions = []string{}
	}
	return rec
}
