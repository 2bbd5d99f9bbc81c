package records

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/diralist-hq/diralist-harvester/internal/domain"
	"github.com/diralist-hq/diralist-harvester/internal/logger"
	"github.com/diralist-hq/diralist-harvester/pkg/publishers"
)

type fakeStore struct {
	saved     []domain.Record
	failOn    map[string]error
	processed []string
	listErr   error
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) SaveRecord(rec domain.Record) (string, error) {
	if err, ok := f.failOn[rec.ID]; ok {
		return "", err
	}
	f.saved = append(f.saved, rec)
	return fmt.Sprintf("rec-%d", len(f.saved)), nil
}

func (f *fakeStore) ProcessedIDs(string) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.processed, nil
}

func (f *fakeStore) SessionSeed(string) ([]byte, error)  { return nil, nil }
func (f *fakeStore) PutSessionSeed(string, []byte) error { return nil }

func validRecord(id string) domain.Record {
	return domain.Record{ID: id, SourceID: "src-1", IsValid: true}
}

func TestSaveBatchSkipsInvalidRecords(t *testing.T) {
	store := &fakeStore{}
	c := NewCoordinator(store, nil, logger.NopLogger{})

	recs := []domain.Record{
		validRecord("1"),
		{ID: "2", SourceID: "src-1", IsValid: false},
		validRecord("3"),
	}

	saved := c.SaveBatch(context.Background(), "acc-1", recs)
	if saved != 2 {
		t.Fatalf("saved = %d, want 2", saved)
	}
	for _, rec := range store.saved {
		if !rec.IsValid {
			t.Fatalf("invalid record %q was persisted", rec.ID)
		}
	}
}

func TestSaveBatchContinuesAfterSaveFailure(t *testing.T) {
	store := &fakeStore{failOn: map[string]error{"2": errors.New("disk full")}}
	c := NewCoordinator(store, nil, logger.NopLogger{})

	recs := []domain.Record{
		validRecord("1"),
		validRecord("2"),
		validRecord("3"),
	}

	saved := c.SaveBatch(context.Background(), "acc-1", recs)
	if saved != 2 {
		t.Fatalf("saved = %d, want 2", saved)
	}
	if len(store.saved) != 2 {
		t.Fatalf("store holds %d records, want 2", len(store.saved))
	}
}

func TestSaveBatchPublishFailureDoesNotUndoSave(t *testing.T) {
	store := &fakeStore{}
	fanout := publishers.NewFanout([]publishers.Publisher{
		&failingPublisher{},
	})
	c := NewCoordinator(store, fanout, logger.NopLogger{})

	saved := c.SaveBatch(context.Background(), "acc-1", []domain.Record{validRecord("1")})
	if saved != 1 {
		t.Fatalf("saved = %d, want 1", saved)
	}
	if len(store.saved) != 1 {
		t.Fatalf("record was not persisted")
	}
}

type failingPublisher struct{}

func (failingPublisher) ID() string   { return "bad" }
func (failingPublisher) Type() string { return "http" }
func (failingPublisher) Publish(context.Context, publishers.Event) error {
	return errors.New("downstream down")
}

func TestLoadProcessedDegradesToEmptySet(t *testing.T) {
	store := &fakeStore{listErr: errors.New("bucket missing")}
	c := NewCoordinator(store, nil, logger.NopLogger{})

	set := c.LoadProcessed("src-1")
	if set == nil || len(set) != 0 {
		t.Fatalf("expected empty non-nil set, got %#v", set)
	}
}

func TestLoadProcessedReturnsStoredIDs(t *testing.T) {
	store := &fakeStore{processed: []string{"10", "20"}}
	c := NewCoordinator(store, nil, logger.NopLogger{})

	set := c.LoadProcessed("src-1")
	if len(set) != 2 {
		t.Fatalf("set size = %d, want 2", len(set))
	}
	if _, ok := set["10"]; !ok {
		t.Fatalf("missing id 10 in %#v", set)
	}
}
