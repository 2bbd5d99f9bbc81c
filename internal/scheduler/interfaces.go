package scheduler

import (
	"context"

	"github.com/diralist-hq/diralist-harvester/internal/browser"
	"github.com/diralist-hq/diralist-harvester/internal/domain"
)

// SessionPool leases a shared browser session per account.
type SessionPool interface {
	Acquire(ctx context.Context, accountID string, seed []byte, headless bool) (*browser.Session, error)
	Release(accountID string)
}

// BatchReconciler turns a batch of raw items into enriched records.
type BatchReconciler interface {
	Reconcile(ctx context.Context, sourceID string, items []domain.RawItem) ([]domain.Record, error)
}

// RecordSink receives the records a scheduler produces and exposes the
// durable dedup state it resumes from.
type RecordSink interface {
	LoadProcessed(sourceID string) map[string]struct{}
	SaveBatch(ctx context.Context, accountID string, recs []domain.Record) int
}
