package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/diralist-hq/diralist-harvester/internal/domain"
)

// Package storage provides the local DB abstraction for harvested records,
// per-source processed-id sets, and account session seeds.

// Store persists validated records and the dedup/session state around them.
type Store interface {
	Close() error

	// SaveRecord persists one record and returns its assigned id. The record's
	// item id, when present, joins the source's durable processed set.
	SaveRecord(rec domain.Record) (string, error)

	// ProcessedIDs returns the item ids already persisted for a source.
	ProcessedIDs(sourceID string) ([]string, error)

	// SessionSeed returns the stored browser session seed for an account,
	// or nil when none has been captured yet.
	SessionSeed(accountID string) ([]byte, error)
	PutSessionSeed(accountID string, seed []byte) error
}

// Options controls retention characteristics for concrete store implementations.
type Options struct {
	ProcessedTTL    time.Duration
	CleanupInterval time.Duration
}

const (
	defaultProcessedTTL    = 30 * 24 * time.Hour
	defaultCleanupInterval = 12 * time.Hour
)

// NewStore creates the configured storage backend.
func NewStore(typ, path string, opts Options) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	opts = normalizeOptions(opts)

	switch typ {
	case "", "none", "disabled":
		return noopStore{}, nil
	case "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(path, opts)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

func normalizeOptions(opts Options) Options {
	if opts.ProcessedTTL <= 0 {
		opts.ProcessedTTL = defaultProcessedTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	return opts
}

type noopStore struct{}

func (noopStore) Close() error                              { return nil }
func (noopStore) SaveRecord(domain.Record) (string, error)  { return "", nil }
func (noopStore) ProcessedIDs(string) ([]string, error)     { return nil, nil }
func (noopStore) SessionSeed(string) ([]byte, error)        { return nil, nil }
func (noopStore) PutSessionSeed(string, []byte) error       { return nil }
