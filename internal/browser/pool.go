package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/diralist-hq/diralist-harvester/internal/logger"
)

// Pool leases one shared browser per account, reference-counted. Two
// schedulers for the same account share one underlying process (separate
// pages); schedulers for different accounts never share a session.
type Pool struct {
	mu     sync.Mutex
	driver Driver
	leases map[string]*lease
	log    logger.Logger
}

type lease struct {
	session *Session
	refs    int
}

// Session is a leased handle to an account's shared browser.
type Session struct {
	accountID string
	browser   Browser
}

// NewPage opens a new logical tab against the shared browser.
func (s *Session) NewPage(ctx context.Context) (Page, error) {
	return s.browser.NewPage(ctx)
}

// AccountID reports which account holds the underlying lease.
func (s *Session) AccountID() string { return s.accountID }

// NewPool builds a pool around the given driver.
func NewPool(driver Driver, log logger.Logger) *Pool {
	if log == nil {
		log = &logger.NopLogger{}
	}
	return &Pool{
		driver: driver,
		leases: make(map[string]*lease),
		log:    log,
	}
}

// Acquire returns the account's shared session, launching a browser on first
// acquisition. The lease's reference count grows by one per call. The mutex is
// held across session creation so two callers cannot race to launch twice; this
// trades peak parallelism for exact accounting, which is fine because acquire
// and release are rare next to the scraping work done while holding a lease.
func (p *Pool) Acquire(ctx context.Context, accountID string, seed []byte, headless bool) (*Session, error) {
	if p == nil || p.driver == nil {
		return nil, fmt.Errorf("pool is not initialized")
	}
	if accountID == "" {
		return nil, fmt.Errorf("account id is empty")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if l, ok := p.leases[accountID]; ok {
		l.refs++
		p.log.DebugObj("browser lease shared", "lease", map[string]any{
			"account_id": accountID,
			"refs":       l.refs,
		})
		return l.session, nil
	}

	b, err := p.driver.Launch(ctx, headless, seed)
	if err != nil {
		// No partial lease: the map was never touched for this account.
		return nil, fmt.Errorf("launch session for account %s: %w", accountID, err)
	}

	session := &Session{accountID: accountID, browser: b}
	p.leases[accountID] = &lease{session: session, refs: 1}
	p.log.InfoObj("browser session launched", "lease", map[string]any{
		"account_id": accountID,
		"headless":   headless,
	})
	return session, nil
}

// Release drops one reference for the account. At zero the browser is torn
// down synchronously and the lease entry removed. Releasing an account with
// no lease is a no-op.
func (p *Pool) Release(accountID string) {
	if p == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.leases[accountID]
	if !ok {
		p.log.WarnObj("release for unknown account ignored", "account_id", accountID)
		return
	}

	l.refs--
	if l.refs > 0 {
		p.log.DebugObj("browser lease released", "lease", map[string]any{
			"account_id": accountID,
			"refs":       l.refs,
		})
		return
	}

	delete(p.leases, accountID)
	if err := l.session.browser.Close(); err != nil {
		p.log.ErrorObj("browser close failed", "lease_error", map[string]any{
			"account_id": accountID,
			"error":      err.Error(),
		})
	} else {
		p.log.InfoObj("browser session closed", "account_id", accountID)
	}
}

// Shutdown force-closes any leases still held. Normal shutdown releases every
// lease through Release; this is the orchestrator's final cleanup.
func (p *Pool) Shutdown() {
	if p == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for accountID, l := range p.leases {
		p.log.WarnObj("closing leaked browser lease", "lease", map[string]any{
			"account_id": accountID,
			"refs":       l.refs,
		})
		if err := l.session.browser.Close(); err != nil {
			p.log.ErrorObj("browser close failed", "lease_error", map[string]any{
				"account_id": accountID,
				"error":      err.Error(),
			})
		}
		delete(p.leases, accountID)
	}
}

// Size reports the number of live leases.
func (p *Pool) Size() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.leases)
}
