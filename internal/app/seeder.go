package app

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/diralist-hq/diralist-harvester/internal/browser"
	"github.com/diralist-hq/diralist-harvester/internal/config"
	"github.com/diralist-hq/diralist-harvester/internal/logger"
	"github.com/diralist-hq/diralist-harvester/internal/storage"
)

// Seeder captures a browser session for one account. It opens a visible
// browser, lets the operator log in by hand, then snapshots the cookies into
// storage so harvester runs can start authenticated.
type Seeder struct {
	cfg    *config.Config
	driver browser.Driver
	store  storage.Store
	log    logger.Logger
}

// NewSeeder builds a seeder runtime.
func NewSeeder(cfg *config.Config, log logger.Logger) (*Seeder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = logger.NopLogger{}
	}

	store, err := storage.NewStore(cfg.StorageType, cfg.BBoltPath, storage.Options{})
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	return &Seeder{
		cfg:    cfg,
		driver: browser.NewRodDriver(),
		store:  store,
		log:    log,
	}, nil
}

// Run opens the login page, waits for the operator to confirm on input, and
// persists the captured session seed for the account.
func (s *Seeder) Run(ctx context.Context, accountID, loginURL string, input io.Reader, prompt io.Writer) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("seeder is not initialized")
	}
	if accountID == "" {
		return fmt.Errorf("account id is required")
	}
	defer s.closeStore()

	existing, err := s.store.SessionSeed(accountID)
	if err == nil && len(existing) > 0 {
		s.log.WarnObj("account already has a session seed; it will be replaced", "account_id", accountID)
	}

	b, err := s.driver.Launch(ctx, false, nil)
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	defer b.Close()

	page, err := b.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	if err := page.Navigate(ctx, loginURL); err != nil {
		return fmt.Errorf("navigate to %s: %w", loginURL, err)
	}

	fmt.Fprintf(prompt, "Log in as account %q in the opened browser, then press Enter here...\n", accountID)
	if _, err := bufio.NewReader(input).ReadString('\n'); err != nil && err != io.EOF {
		return fmt.Errorf("wait for confirmation: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	seed, err := b.Cookies(ctx)
	if err != nil {
		return fmt.Errorf("capture session: %w", err)
	}
	if err := s.store.PutSessionSeed(accountID, seed); err != nil {
		return fmt.Errorf("store session seed: %w", err)
	}

	s.log.InfoObj("session seed captured", "seeder", map[string]any{
		"account_id": accountID,
		"seed_bytes": len(seed),
	})
	return nil
}

func (s *Seeder) closeStore() {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		s.log.ErrorObj("storage close failed", "error", err.Error())
	}
}
