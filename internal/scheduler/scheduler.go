package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/diralist-hq/diralist-harvester/internal/browser"
	"github.com/diralist-hq/diralist-harvester/internal/domain"
	"github.com/diralist-hq/diralist-harvester/internal/logger"
	"github.com/diralist-hq/diralist-harvester/pkg/feeds"
)

// State reflects where a scheduler is in its lifecycle.
type State int32

const (
	StateIdle State = iota
	StateInitializing
	StateCycling
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateCycling:
		return "cycling"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config carries the per-source run parameters for one scheduler.
type Config struct {
	AccountID string
	Seed      []byte
	Source    feeds.Source

	// PageWait bounds how long to wait for the item container to appear.
	PageWait time.Duration
	// CycleBackoff is the pause after a failed cycle before retrying.
	CycleBackoff time.Duration
}

// Scheduler drives the cyclic harvest of one source: scroll and collect for a
// bounded window, then sleep whatever remains of the fetch interval so cycle
// starts stay a fixed period apart.
type Scheduler struct {
	cfg        Config
	feed       feeds.Feed
	pool       SessionPool
	reconciler BatchReconciler
	sink       RecordSink
	log        logger.Logger

	stopped atomic.Bool
	state   atomic.Int32

	// Injectable for tests.
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) bool
	scrollPx func(min, max int) int
}

// New builds a scheduler for one account/source pair.
func New(cfg Config, feed feeds.Feed, pool SessionPool, reconciler BatchReconciler, sink RecordSink, log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Scheduler{
		cfg:        cfg,
		feed:       feed,
		pool:       pool,
		reconciler: reconciler,
		sink:       sink,
		log:        log,
		now:        time.Now,
		sleep:      waitFor,
		scrollPx:   randomScroll,
	}
}

// State reports the scheduler's current lifecycle state.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// Stop requests a graceful stop. The running loop observes the flag at cycle
// boundaries and before long sleeps.
func (s *Scheduler) Stop() { s.stopped.Store(true) }

func (s *Scheduler) halted(ctx context.Context) bool {
	return s.stopped.Load() || ctx.Err() != nil
}

// Run executes harvest cycles until stopped, the context ends, or the
// configured cycle bound is reached. The browser lease is always released and
// the page closed on the way out, even on error.
func (s *Scheduler) Run(ctx context.Context) error {
	s.state.Store(int32(StateInitializing))
	defer s.state.Store(int32(StateStopped))

	src := s.cfg.Source

	session, err := s.pool.Acquire(ctx, s.cfg.AccountID, s.cfg.Seed, src.Config.HeadlessOn())
	if err != nil {
		return fmt.Errorf("acquire session: %w", err)
	}
	defer s.pool.Release(s.cfg.AccountID)

	page, err := session.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	url := s.feed.SourceURL(src.ID)
	if err := page.Navigate(ctx, url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := page.WaitElement(ctx, s.feed.ItemSelector(), s.cfg.PageWait); err != nil {
		return fmt.Errorf("wait for feed content: %w", err)
	}

	// Mark-before-dispatch set: seeded from storage when only new items are
	// wanted, otherwise fresh, so each item is dispatched at most once per run.
	processed := make(map[string]struct{})
	if src.Config.OnlyNewItems() {
		processed = s.sink.LoadProcessed(src.ID)
	}

	s.log.InfoObj("scheduler started", "scheduler", map[string]any{
		"account_id":     s.cfg.AccountID,
		"source_id":      src.ID,
		"known_items":    len(processed),
		"fetch_interval": src.Config.FetchIntervalSeconds,
	})

	s.state.Store(int32(StateCycling))

	cycles := 0
	for !s.halted(ctx) {
		start := s.now()

		if err := s.runCycle(ctx, page, processed); err != nil {
			if ctx.Err() != nil {
				break
			}
			s.log.ErrorObj("cycle failed, backing off", "scheduler_cycle_error", map[string]any{
				"source_id": src.ID,
				"error":     err.Error(),
			})
			if !s.sleep(ctx, s.cfg.CycleBackoff) {
				break
			}
			continue
		}

		cycles++
		if src.Config.MaxCycles > 0 && cycles >= src.Config.MaxCycles {
			break
		}
		if s.halted(ctx) {
			break
		}

		elapsed := s.now().Sub(start)
		remaining := src.Config.FetchInterval() - elapsed
		if remaining <= 0 {
			s.log.WarnObj("cycle overran fetch interval", "scheduler_overrun", map[string]any{
				"source_id":  src.ID,
				"elapsed_s":  elapsed.Seconds(),
				"interval_s": src.Config.FetchIntervalSeconds,
			})
			continue
		}
		if !s.sleep(ctx, remaining) {
			break
		}
	}

	s.log.InfoObj("scheduler stopped", "scheduler", map[string]any{
		"account_id": s.cfg.AccountID,
		"source_id":  src.ID,
		"cycles":     cycles,
	})
	return nil
}

// runCycle reloads the feed and harvests visible items, scrolling between
// passes, until the cycle window closes or the scroll/item bounds are hit.
func (s *Scheduler) runCycle(ctx context.Context, page browser.Page, processed map[string]struct{}) error {
	cfg := s.cfg.Source.Config

	if err := page.Reload(ctx); err != nil {
		return fmt.Errorf("reload feed: %w", err)
	}
	if err := page.WaitElement(ctx, s.feed.ItemSelector(), s.cfg.PageWait); err != nil {
		return fmt.Errorf("wait for feed content: %w", err)
	}

	deadline := s.now().Add(cfg.CycleDuration())
	var batch []domain.RawItem
	harvested := 0
	scrolls := 0

	for {
		if s.halted(ctx) {
			break
		}

		els, err := page.Elements(ctx, s.feed.ItemSelector())
		if err != nil {
			return fmt.Errorf("list feed items: %w", err)
		}

		for _, el := range els {
			if s.halted(ctx) {
				break
			}
			item, id, ok := s.harvestItem(ctx, el, processed)
			if !ok {
				continue
			}

			// Marked before dispatch: even if enrichment or save fails
			// downstream, this run never hands the item off twice.
			processed[id] = struct{}{}
			batch = append(batch, item)
			harvested++

			if len(batch) >= cfg.ScrollBatchSize {
				s.dispatch(ctx, batch)
				batch = nil
			}
			if harvested >= cfg.MaxItemsPerCycle {
				break
			}
		}

		if s.halted(ctx) || harvested >= cfg.MaxItemsPerCycle || scrolls >= cfg.MaxScrolls || !s.now().Before(deadline) {
			break
		}

		px := s.scrollPx(cfg.ScrollMinPx, cfg.ScrollMaxPx)
		if err := page.Eval(ctx, fmt.Sprintf("window.scrollBy(0, %d)", px)); err != nil {
			return fmt.Errorf("scroll feed: %w", err)
		}
		scrolls++
		if !s.sleep(ctx, cfg.ScrollSettle()) {
			break
		}
	}

	if len(batch) > 0 {
		s.dispatch(ctx, batch)
	}

	s.log.DebugObj("cycle finished", "scheduler_cycle", map[string]any{
		"source_id": s.cfg.Source.ID,
		"harvested": harvested,
		"scrolls":   scrolls,
	})
	return nil
}

// harvestItem reads one feed element into a RawItem. It returns ok=false for
// items that are invisible, unidentifiable, already processed, or invalid.
func (s *Scheduler) harvestItem(ctx context.Context, el browser.Element, processed map[string]struct{}) (domain.RawItem, string, bool) {
	if visible, err := el.Visible(); err != nil || !visible {
		return domain.RawItem{}, "", false
	}

	html, err := el.HTML()
	if err != nil {
		return domain.RawItem{}, "", false
	}
	id := s.feed.ExtractID(html)
	if id == "" {
		return domain.RawItem{}, "", false
	}
	if _, done := processed[id]; done {
		return domain.RawItem{}, "", false
	}

	if err := s.feed.Expand(ctx, el); err != nil {
		s.log.DebugObj("item expansion failed", "scheduler_expand_error", map[string]any{
			"source_id": s.cfg.Source.ID,
			"item_id":   id,
			"error":     err.Error(),
		})
	}

	item, err := s.feed.ExtractFields(ctx, el)
	if err != nil {
		s.log.WarnObj("item extraction failed", "scheduler_extract_error", map[string]any{
			"source_id": s.cfg.Source.ID,
			"item_id":   id,
			"error":     err.Error(),
		})
		return domain.RawItem{}, "", false
	}
	item.ID = id
	if !s.feed.Valid(item) {
		return domain.RawItem{}, "", false
	}
	return item, id, true
}

// dispatch enriches a batch and hands the records to the sink. A failed
// enrichment drops the batch; the items stay marked so the run moves on.
func (s *Scheduler) dispatch(ctx context.Context, items []domain.RawItem) {
	recs, err := s.reconciler.Reconcile(ctx, s.cfg.Source.ID, items)
	if err != nil {
		s.log.ErrorObj("batch enrichment failed, dropping batch", "scheduler_enrich_error", map[string]any{
			"source_id":  s.cfg.Source.ID,
			"batch_size": len(items),
			"error":      err.Error(),
		})
		return
	}

	saved := s.sink.SaveBatch(ctx, s.cfg.AccountID, recs)
	s.log.InfoObj("batch dispatched", "scheduler_batch", map[string]any{
		"source_id":  s.cfg.Source.ID,
		"batch_size": len(items),
		"saved":      saved,
	})
}

// waitFor sleeps for d, returning false when the context ends first.
func waitFor(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func randomScroll(min, max int) int {
	if max <= min {
		return min
	}
	return min + rand.Intn(max-min+1)
}
