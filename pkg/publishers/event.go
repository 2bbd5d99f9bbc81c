package publishers

import (
	"time"

	"github.com/diralist-hq/diralist-harvester/internal/domain"
)

// Event represents the payload published downstream after a record is saved.
type Event struct {
	RecordID    string        `json:"record_id"`
	SourceID    string        `json:"source_id"`
	AccountID   string        `json:"account_id,omitempty"`
	Record      domain.Record `json:"record"`
	CollectedAt time.Time     `json:"collected_at"`
}

// NewEvent constructs an Event for the given saved record.
func NewEvent(recordID, accountID string, rec domain.Record) Event {
	return Event{
		RecordID:    recordID,
		SourceID:    rec.SourceID,
		AccountID:   accountID,
		Record:      rec,
		CollectedAt: time.Now().UTC(),
	}
}
