package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/diralist-hq/diralist-harvester/internal/browser"
	"github.com/diralist-hq/diralist-harvester/internal/domain"
	"github.com/diralist-hq/diralist-harvester/pkg/feeds"
)

// --- browser fakes ---------------------------------------------------------

type fakeElement struct {
	id      string
	text    string
	visible bool
}

func (f *fakeElement) Text() (string, error)           { return f.text, nil }
func (f *fakeElement) HTML() (string, error)           { return "id:" + f.id, nil }
func (f *fakeElement) Attribute(string) (string, error) { return "", nil }
func (f *fakeElement) Click() error                    { return nil }
func (f *fakeElement) Visible() (bool, error)          { return f.visible, nil }
func (f *fakeElement) Elements(string) ([]browser.Element, error) {
	return nil, nil
}

type fakePage struct {
	mu        sync.Mutex
	elements  []browser.Element
	reloadErr error
	onReload  func()
	reloads   int
}

func (f *fakePage) Navigate(context.Context, string) error { return nil }

func (f *fakePage) Reload(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads++
	if f.onReload != nil {
		f.onReload()
	}
	if f.reloadErr != nil {
		err := f.reloadErr
		f.reloadErr = nil
		return err
	}
	return nil
}

func (f *fakePage) WaitElement(context.Context, string, time.Duration) error { return nil }

func (f *fakePage) Elements(context.Context, string) ([]browser.Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.elements, nil
}

func (f *fakePage) Eval(context.Context, string) error { return nil }
func (f *fakePage) Close() error                       { return nil }

type fakeBrowser struct {
	page *fakePage
}

func (f *fakeBrowser) NewPage(context.Context) (browser.Page, error) { return f.page, nil }
func (f *fakeBrowser) Cookies(context.Context) ([]byte, error)       { return nil, nil }
func (f *fakeBrowser) Close() error                                  { return nil }

type fakeDriver struct {
	page      *fakePage
	launchErr error
}

func (f *fakeDriver) Launch(context.Context, bool, []byte) (browser.Browser, error) {
	if f.launchErr != nil {
		return nil, f.launchErr
	}
	return &fakeBrowser{page: f.page}, nil
}

// --- feed / reconciler / sink fakes ----------------------------------------

type fakeFeed struct{}

func (fakeFeed) Type() string               { return "fake" }
func (fakeFeed) SourceURL(id string) string { return "https://example.com/" + id }
func (fakeFeed) ItemSelector() string       { return "div.item" }
func (fakeFeed) ExtractID(html string) string {
	return strings.TrimPrefix(html, "id:")
}
func (fakeFeed) Expand(context.Context, browser.Element) error { return nil }
func (fakeFeed) ExtractFields(_ context.Context, el browser.Element) (domain.RawItem, error) {
	text, err := el.Text()
	if err != nil {
		return domain.RawItem{}, err
	}
	return domain.RawItem{Text: text, AuthorName: "someone"}, nil
}
func (fakeFeed) Valid(item domain.RawItem) bool { return item.Text != "" }

type fakeReconciler struct {
	mu      sync.Mutex
	batches [][]domain.RawItem
	err     error
}

func (f *fakeReconciler) Reconcile(_ context.Context, sourceID string, items []domain.RawItem) ([]domain.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.batches = append(f.batches, items)
	recs := make([]domain.Record, len(items))
	for i, item := range items {
		recs[i] = domain.Record{ID: item.ID, SourceID: sourceID, Text: item.Text, IsValid: true}
	}
	return recs, nil
}

type fakeSink struct {
	mu        sync.Mutex
	processed map[string]struct{}
	saved     []domain.Record
}

func (f *fakeSink) LoadProcessed(string) map[string]struct{} {
	out := make(map[string]struct{}, len(f.processed))
	for id := range f.processed {
		out[id] = struct{}{}
	}
	return out
}

func (f *fakeSink) SaveBatch(_ context.Context, _ string, recs []domain.Record) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, recs...)
	return len(recs)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// --- helpers ---------------------------------------------------------------

func testSource(overrides func(*feeds.SourceConfig)) feeds.Source {
	cfg := feeds.SourceConfig{
		FetchIntervalSeconds: 300,
		CycleDurationSeconds: 240,
		ScrollBatchSize:      10,
		MaxItemsPerCycle:     30,
		MaxScrolls:           0,
		ScrollMinPx:          400,
		ScrollMaxPx:          800,
	}
	if overrides != nil {
		overrides(&cfg)
	}
	return feeds.Source{ID: "src-1", Name: "Source One", Type: "fake", Config: cfg}
}

func newTestScheduler(t *testing.T, page *fakePage, src feeds.Source, sink *fakeSink) (*Scheduler, *fakeReconciler, *browser.Pool, *fakeClock, *[]time.Duration) {
	t.Helper()

	pool := browser.NewPool(&fakeDriver{page: page}, nil)
	rec := &fakeReconciler{}
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	var sleeps []time.Duration

	s := New(Config{
		AccountID:    "acc-1",
		Source:       src,
		PageWait:     time.Second,
		CycleBackoff: 10 * time.Second,
	}, fakeFeed{}, pool, rec, sink, nil)
	s.now = clock.Now
	s.sleep = func(_ context.Context, d time.Duration) bool {
		sleeps = append(sleeps, d)
		return true
	}
	s.scrollPx = func(min, _ int) int { return min }
	return s, rec, pool, clock, &sleeps
}

// --- tests -----------------------------------------------------------------

func TestRunHoldsFetchInterval(t *testing.T) {
	page := &fakePage{}
	src := testSource(func(c *feeds.SourceConfig) { c.MaxCycles = 2 })
	s, _, _, clock, sleeps := newTestScheduler(t, page, src, &fakeSink{})

	// Each reload stands in for 40 seconds of cycle work.
	page.onReload = func() { clock.Advance(40 * time.Second) }

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := 260 * time.Second
	found := false
	for _, d := range *sleeps {
		if d == want {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a %v period-hold sleep, got %v", want, *sleeps)
	}
}

func TestRunSkipsSleepOnOverrun(t *testing.T) {
	page := &fakePage{}
	src := testSource(func(c *feeds.SourceConfig) { c.MaxCycles = 2 })
	s, _, _, clock, sleeps := newTestScheduler(t, page, src, &fakeSink{})

	page.onReload = func() { clock.Advance(310 * time.Second) }

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, d := range *sleeps {
		if d > 0 {
			t.Fatalf("expected no period-hold sleep after overrun, got %v", *sleeps)
		}
	}
	if page.reloads != 2 {
		t.Fatalf("expected the next cycle to start immediately, reloads = %d", page.reloads)
	}
}

func TestRunBacksOffAfterCycleError(t *testing.T) {
	page := &fakePage{reloadErr: errors.New("net down")}
	src := testSource(func(c *feeds.SourceConfig) { c.MaxCycles = 1 })
	s, _, _, _, sleeps := newTestScheduler(t, page, src, &fakeSink{})

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(*sleeps) == 0 || (*sleeps)[0] != 10*time.Second {
		t.Fatalf("expected a 10s backoff sleep first, got %v", *sleeps)
	}
	if page.reloads != 2 {
		t.Fatalf("expected a retry after backoff, reloads = %d", page.reloads)
	}
}

func TestRunDispatchesEachItemOnce(t *testing.T) {
	page := &fakePage{elements: []browser.Element{
		&fakeElement{id: "a", text: "old post", visible: true},
		&fakeElement{id: "b", text: "new post", visible: true},
	}}
	src := testSource(func(c *feeds.SourceConfig) {
		c.MaxCycles = 2
		only := true
		c.NewItemsOnly = &only
	})
	sink := &fakeSink{processed: map[string]struct{}{"a": {}}}
	s, rec, _, _, _ := newTestScheduler(t, page, src, sink)

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var ids []string
	for _, batch := range rec.batches {
		for _, item := range batch {
			ids = append(ids, item.ID)
		}
	}
	if len(ids) != 1 || ids[0] != "b" {
		t.Fatalf("expected only item b dispatched once, got %v", ids)
	}
	if len(sink.saved) != 1 || sink.saved[0].ID != "b" {
		t.Fatalf("expected only record b saved, got %#v", sink.saved)
	}
}

func TestRunFlushesFullAndPartialBatches(t *testing.T) {
	page := &fakePage{elements: []browser.Element{
		&fakeElement{id: "1", text: "p1", visible: true},
		&fakeElement{id: "2", text: "p2", visible: true},
		&fakeElement{id: "3", text: "p3", visible: true},
	}}
	src := testSource(func(c *feeds.SourceConfig) {
		c.MaxCycles = 1
		c.ScrollBatchSize = 2
	})
	s, rec, _, _, _ := newTestScheduler(t, page, src, &fakeSink{})

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(rec.batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(rec.batches))
	}
	if len(rec.batches[0]) != 2 || len(rec.batches[1]) != 1 {
		t.Fatalf("expected batch sizes 2 and 1, got %d and %d", len(rec.batches[0]), len(rec.batches[1]))
	}
}

func TestRunSkipsInvisibleAndUnidentifiedItems(t *testing.T) {
	page := &fakePage{elements: []browser.Element{
		&fakeElement{id: "1", text: "hidden", visible: false},
		&fakeElement{id: "", text: "no id", visible: true},
		&fakeElement{id: "3", text: "good", visible: true},
	}}
	src := testSource(func(c *feeds.SourceConfig) { c.MaxCycles = 1 })
	s, rec, _, _, _ := newTestScheduler(t, page, src, &fakeSink{})

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(rec.batches) != 1 || len(rec.batches[0]) != 1 || rec.batches[0][0].ID != "3" {
		t.Fatalf("expected only item 3 dispatched, got %#v", rec.batches)
	}
}

func TestRunReleasesLeaseOnExit(t *testing.T) {
	page := &fakePage{}
	src := testSource(func(c *feeds.SourceConfig) { c.MaxCycles = 1 })
	s, _, pool, _, _ := newTestScheduler(t, page, src, &fakeSink{})

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if pool.Size() != 0 {
		t.Fatalf("lease leaked, pool size = %d", pool.Size())
	}
	if s.State() != StateStopped {
		t.Fatalf("state = %v, want stopped", s.State())
	}
}

func TestRunReturnsErrorWhenLaunchFails(t *testing.T) {
	pool := browser.NewPool(&fakeDriver{launchErr: errors.New("no chrome")}, nil)
	src := testSource(func(c *feeds.SourceConfig) { c.MaxCycles = 1 })
	s := New(Config{
		AccountID:    "acc-1",
		Source:       src,
		PageWait:     time.Second,
		CycleBackoff: time.Second,
	}, fakeFeed{}, pool, &fakeReconciler{}, &fakeSink{}, nil)

	if err := s.Run(context.Background()); err == nil {
		t.Fatalf("expected error when launch fails")
	}
	if pool.Size() != 0 {
		t.Fatalf("failed launch must not leave a lease, pool size = %d", pool.Size())
	}
}

func TestStopEndsRun(t *testing.T) {
	page := &fakePage{}
	src := testSource(nil) // unbounded cycles
	s, _, _, _, _ := newTestScheduler(t, page, src, &fakeSink{})

	s.sleep = func(context.Context, time.Duration) bool {
		s.Stop()
		return false
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not stop")
	}
	if s.State() != StateStopped {
		t.Fatalf("state = %v, want stopped", s.State())
	}
}

func TestRunDropsBatchWhenEnrichmentFails(t *testing.T) {
	page := &fakePage{elements: []browser.Element{
		&fakeElement{id: "1", text: "p1", visible: true},
	}}
	src := testSource(func(c *feeds.SourceConfig) { c.MaxCycles = 1 })
	sink := &fakeSink{}
	s, rec, _, _, _ := newTestScheduler(t, page, src, sink)
	rec.err = errors.New("llm down")

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sink.saved) != 0 {
		t.Fatalf("expected nothing saved when enrichment fails, got %#v", sink.saved)
	}
}
