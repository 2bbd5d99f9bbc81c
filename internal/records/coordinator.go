package records

import (
	"context"

	"github.com/diralist-hq/diralist-harvester/internal/domain"
	"github.com/diralist-hq/diralist-harvester/internal/logger"
	"github.com/diralist-hq/diralist-harvester/internal/storage"
	"github.com/diralist-hq/diralist-harvester/pkg/publishers"
)

// Coordinator persists enriched records and notifies downstream publishers.
// A record that fails to save does not stop the rest of its batch.
type Coordinator struct {
	store  storage.Store
	fanout *publishers.Fanout
	log    logger.Logger
}

// NewCoordinator builds a coordinator over the given store and fanout.
// fanout may be nil when no publishers are configured.
func NewCoordinator(store storage.Store, fanout *publishers.Fanout, log logger.Logger) *Coordinator {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Coordinator{
		store:  store,
		fanout: fanout,
		log:    log,
	}
}

// LoadProcessed returns the set of item ids already persisted for a source.
// A storage failure degrades to an empty set so a run can still proceed;
// duplicates are then possible but no items are lost.
func (c *Coordinator) LoadProcessed(sourceID string) map[string]struct{} {
	ids, err := c.store.ProcessedIDs(sourceID)
	if err != nil {
		c.log.WarnObj("failed to load processed ids, starting with empty set", "records_processed_load_error", map[string]any{
			"source_id": sourceID,
			"error":     err.Error(),
		})
		return make(map[string]struct{})
	}

	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// SaveBatch persists the valid records of a batch and publishes an event per
// saved record. It returns the number of records saved. Invalid records are
// dropped, and publish failures never undo a save.
func (c *Coordinator) SaveBatch(ctx context.Context, accountID string, recs []domain.Record) int {
	if len(recs) == 0 {
		return 0
	}

	saved := 0
	dropped := 0
	for _, rec := range recs {
		if !rec.IsValid {
			dropped++
			continue
		}
		if rec.AccountID == "" {
			rec.AccountID = accountID
		}

		recordID, err := c.store.SaveRecord(rec)
		if err != nil {
			c.log.ErrorObj("failed to save record", "records_save_error", map[string]any{
				"source_id": rec.SourceID,
				"item_id":   rec.ID,
				"error":     err.Error(),
			})
			continue
		}
		saved++

		if c.fanout == nil || c.fanout.Size() == 0 {
			continue
		}
		evt := publishers.NewEvent(recordID, accountID, rec)
		if _, err := c.fanout.Publish(ctx, evt); err != nil {
			c.log.WarnObj("record saved but publish failed", "records_publish_error", map[string]any{
				"record_id": recordID,
				"source_id": rec.SourceID,
				"error":     err.Error(),
			})
		}
	}

	if dropped > 0 {
		c.log.InfoObj("dropped invalid records from batch", "records_invalid_dropped", map[string]any{
			"account_id": accountID,
			"dropped":    dropped,
			"batch_size": len(recs),
		})
	}
	return saved
}
