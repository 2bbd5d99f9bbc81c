package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/diralist-hq/diralist-harvester/internal/browser"
	"github.com/diralist-hq/diralist-harvester/internal/config"
	"github.com/diralist-hq/diralist-harvester/internal/enrich"
	"github.com/diralist-hq/diralist-harvester/internal/logger"
	"github.com/diralist-hq/diralist-harvester/internal/records"
	"github.com/diralist-hq/diralist-harvester/internal/scheduler"
	"github.com/diralist-hq/diralist-harvester/internal/storage"
	"github.com/diralist-hq/diralist-harvester/pkg/feeds"
	"github.com/diralist-hq/diralist-harvester/pkg/httpclient"
	"github.com/diralist-hq/diralist-harvester/pkg/publishers"
)

// Harvester is the runtime that fans a scheduler out per account/source pair.
// It owns the shared infrastructure: the browser pool, storage, the enrichment
// reconciler, and the publisher fanout.
type Harvester struct {
	cfg        *config.Config
	feedReg    *feeds.Registry
	adapters   feeds.AdapterRegistry
	pool       *browser.Pool
	reconciler *enrich.Reconciler
	coord      *records.Coordinator
	fanout     *publishers.Fanout
	store      storage.Store
	log        logger.Logger
}

// NewHarvester builds a harvester runtime from config files.
func NewHarvester(ctx context.Context, cfg *config.Config, log logger.Logger) (*Harvester, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	feedReg, err := feeds.LoadRegistry(cfg.FeedsFile)
	if err != nil {
		return nil, fmt.Errorf("load feeds registry: %w", err)
	}
	active := feedReg.ActiveAccounts()
	accountIDs := make([]string, 0, len(active))
	sourceCount := 0
	for _, acct := range active {
		accountIDs = append(accountIDs, acct.ID)
		sourceCount += len(acct.Sources)
	}
	log.InfoObj("feeds registry loaded", "feeds_meta", map[string]any{
		"accounts": accountIDs,
		"sources":  sourceCount,
	})

	fanout := publishers.NewFanout(nil)
	if cfg.PublishersFile != "" {
		publisherReg, err := publishers.LoadRegistry(cfg.PublishersFile)
		if err != nil {
			return nil, fmt.Errorf("load publishers registry: %w", err)
		}
		enabled := publisherReg.Enabled()
		pubs, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabled, log)
		if err != nil {
			return nil, fmt.Errorf("build publishers: %w", err)
		}
		fanout = publishers.NewFanout(pubs)
		summaries := make([]map[string]string, 0, len(enabled))
		for _, pubCfg := range enabled {
			summaries = append(summaries, map[string]string{
				"id":   pubCfg.ID,
				"type": pubCfg.Type,
			})
		}
		log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
			"count":      len(summaries),
			"publishers": summaries,
		})
	}

	store, err := storage.NewStore(cfg.StorageType, cfg.BBoltPath, storage.Options{})
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type": cfg.StorageType,
		"path": cfg.BBoltPath,
	})

	completer := enrich.NewChatClient(enrich.ClientConfig{
		Endpoint: cfg.EnrichEndpoint,
		Model:    cfg.EnrichModel,
		APIKey:   cfg.EnrichAPIKey,
		Timeout:  cfg.EnrichTimeout,
	}, httpclient.NewRestyClient(cfg.EnrichTimeout))

	return &Harvester{
		cfg:        cfg,
		feedReg:    feedReg,
		adapters:   feeds.DefaultAdapterRegistry(),
		pool:       browser.NewPool(browser.NewRodDriver(), log),
		reconciler: enrich.NewReconciler(completer, log),
		coord:      records.NewCoordinator(store, fanout, log),
		fanout:     fanout,
		store:      store,
		log:        log,
	}, nil
}

// Run launches schedulers for every active account/source pair and blocks
// until the context ends or every scheduler finishes. Browser leases and
// storage are torn down on the way out regardless of how the run ended.
func (h *Harvester) Run(ctx context.Context) error {
	if h == nil || h.feedReg == nil {
		return fmt.Errorf("harvester is not initialized")
	}
	defer h.closeStore()
	defer h.pool.Shutdown()

	accounts := h.feedReg.ActiveAccounts()
	if len(accounts) == 0 {
		h.log.WarnObj("no active accounts configured; harvester idle", "feeds_file", h.cfg.FeedsFile)
		<-ctx.Done()
		return ctx.Err()
	}

	var wg sync.WaitGroup
	var schedulers []*scheduler.Scheduler

	for _, acct := range accounts {
		seed, err := h.store.SessionSeed(acct.ID)
		if err != nil || len(seed) == 0 {
			reason := "no session seed captured"
			if err != nil {
				reason = err.Error()
			}
			h.log.ErrorObj("session unavailable, skipping account", "account_error", map[string]any{
				"account_id": acct.ID,
				"error":      reason,
			})
			continue
		}

		for _, src := range acct.Sources {
			feed, err := h.adapters.AdapterFor(src)
			if err != nil {
				h.log.ErrorObj("no adapter for source, skipping", "source_error", map[string]any{
					"account_id": acct.ID,
					"source_id":  src.ID,
					"error":      err.Error(),
				})
				continue
			}

			sched := scheduler.New(scheduler.Config{
				AccountID:    acct.ID,
				Seed:         seed,
				Source:       src,
				PageWait:     h.cfg.PageWaitTimeout,
				CycleBackoff: h.cfg.CycleBackoff,
			}, feed, h.pool, h.reconciler, h.coord, h.log)
			schedulers = append(schedulers, sched)

			wg.Add(1)
			go func(accountID, sourceID string, sched *scheduler.Scheduler) {
				defer wg.Done()
				if err := sched.Run(ctx); err != nil {
					h.log.ErrorObj("scheduler exited with error", "scheduler_error", map[string]any{
						"account_id": accountID,
						"source_id":  sourceID,
						"error":      err.Error(),
					})
				}
			}(acct.ID, src.ID, sched)
		}
	}

	if len(schedulers) == 0 {
		return fmt.Errorf("no runnable sources; every account was skipped")
	}

	h.log.InfoObj("harvester running", "harvester_state", map[string]any{
		"schedulers": len(schedulers),
		"publishers": h.fanout.Size(),
	})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		h.log.InfoObj("shutdown requested, stopping schedulers", "reason", ctx.Err().Error())
		for _, sched := range schedulers {
			sched.Stop()
		}
		<-done
	case <-done:
	}

	h.log.InfoObj("harvester stopped", "schedulers", len(schedulers))
	return nil
}

// closeStore safely closes the storage backend, logging any errors encountered.
func (h *Harvester) closeStore() {
	if h == nil || h.store == nil {
		return
	}
	if err := h.store.Close(); err != nil {
		h.log.ErrorObj("storage close failed", "error", err.Error())
	}
}
