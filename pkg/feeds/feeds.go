package feeds

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Package feeds contains the accounts/sources registry (YAML/JSON) and the
// pluggable per-feed-type scraping adapters.

// SourceConfig is the harvest tuning for one source. Zero values are filled
// from the registry defaults during load.
type SourceConfig struct {
	FetchIntervalSeconds int `json:"fetch_interval" yaml:"fetch_interval"`
	CycleDurationSeconds int `json:"cycle_duration" yaml:"cycle_duration"`
	ScrollBatchSize      int `json:"scroll_batch_size" yaml:"scroll_batch_size"`
	MaxItemsPerCycle     int `json:"max_items_per_cycle" yaml:"max_items_per_cycle"`
	MaxScrolls           int `json:"max_scrolls" yaml:"max_scrolls"`
	ScrollSettleMs       int `json:"scroll_settle_ms" yaml:"scroll_settle_ms"`
	ScrollMinPx          int `json:"scroll_min_px" yaml:"scroll_min_px"`
	ScrollMaxPx          int `json:"scroll_max_px" yaml:"scroll_max_px"`
	MaxCycles            int `json:"max_cycles" yaml:"max_cycles"`

	// Pointers so an explicit false survives the defaults overlay; read
	// through HeadlessOn / OnlyNewItems.
	Headless     *bool `json:"headless" yaml:"headless"`
	NewItemsOnly *bool `json:"new_items_only" yaml:"new_items_only"`
}

// HeadlessOn reports whether the browser should run headless (default true).
func (c SourceConfig) HeadlessOn() bool {
	return c.Headless == nil || *c.Headless
}

// OnlyNewItems reports whether already-persisted items are skipped
// (default true).
func (c SourceConfig) OnlyNewItems() bool {
	return c.NewItemsOnly == nil || *c.NewItemsOnly
}

// Source is one feed to harvest for an account.
type Source struct {
	ID     string       `json:"id" yaml:"id"`
	Name   string       `json:"name" yaml:"name"`
	Type   string       `json:"type" yaml:"type"`
	Config SourceConfig `json:"config" yaml:"config"`
}

// Account is an actor with a session credential and a set of sources.
type Account struct {
	ID      string   `json:"id" yaml:"id"`
	Active  bool     `json:"active" yaml:"active"`
	Sources []Source `json:"sources" yaml:"sources"`
}

type registryFile struct {
	Defaults SourceConfig `json:"defaults" yaml:"defaults"`
	Accounts []Account    `json:"accounts" yaml:"accounts"`
}

// Registry materializes accounts and sources loaded from the config file.
type Registry struct {
	defaults SourceConfig
	accounts []Account
}

// Registry defaults follow the original group-scraping tuning: a five-minute
// period with the scroll phase bounded just under it.
var defaultSourceConfig = SourceConfig{
	FetchIntervalSeconds: 300,
	CycleDurationSeconds: 240,
	ScrollBatchSize:      10,
	MaxItemsPerCycle:     30,
	MaxScrolls:           5,
	ScrollSettleMs:       1500,
	ScrollMinPx:          400,
	ScrollMaxPx:          800,
	Headless:             boolFlag(true),
	NewItemsOnly:         boolFlag(true),
}

func boolFlag(v bool) *bool { return &v }

// LoadRegistry loads the accounts registry from a YAML/JSON file.
func LoadRegistry(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("feeds file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open feeds file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read feeds file: %w", err)
	}

	parsed, err := parseRegistry(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(parsed.Accounts) == 0 {
		return nil, errors.New("feeds file contains no accounts")
	}

	defaults := mergeConfig(defaultSourceConfig, parsed.Defaults)

	seenAccounts := make(map[string]struct{}, len(parsed.Accounts))
	for i := range parsed.Accounts {
		acct := &parsed.Accounts[i]
		acct.ID = strings.TrimSpace(acct.ID)
		if acct.ID == "" {
			return nil, fmt.Errorf("accounts[%d]: id is required", i)
		}
		if _, dup := seenAccounts[acct.ID]; dup {
			return nil, fmt.Errorf("duplicate account id %q", acct.ID)
		}
		seenAccounts[acct.ID] = struct{}{}

		for j := range acct.Sources {
			src := &acct.Sources[j]
			src.ID = strings.TrimSpace(src.ID)
			src.Name = strings.TrimSpace(src.Name)
			src.Type = strings.TrimSpace(src.Type)
			src.Config = mergeConfig(defaults, src.Config)
			if err := validateSource(*src); err != nil {
				return nil, fmt.Errorf("account %q source[%d]: %w", acct.ID, j, err)
			}
		}
	}

	return &Registry{defaults: defaults, accounts: parsed.Accounts}, nil
}

func parseRegistry(data []byte, ext string) (registryFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))

	decoders := []struct {
		name string
		ext  string
		fn   func([]byte, any) error
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var parsed registryFile
		if err := d.fn(data, &parsed); err == nil {
			return parsed, nil
		}
	}

	return registryFile{}, errors.New("feeds file format not recognized (expected YAML or JSON)")
}

// mergeConfig overlays the override's set fields onto base: non-zero
// numerics and non-nil booleans, so an explicit false at a more specific
// level still wins.
func mergeConfig(base, override SourceConfig) SourceConfig {
	out := base
	if override.FetchIntervalSeconds > 0 {
		out.FetchIntervalSeconds = override.FetchIntervalSeconds
	}
	if override.CycleDurationSeconds > 0 {
		out.CycleDurationSeconds = override.CycleDurationSeconds
	}
	if override.ScrollBatchSize > 0 {
		out.ScrollBatchSize = override.ScrollBatchSize
	}
	if override.MaxItemsPerCycle > 0 {
		out.MaxItemsPerCycle = override.MaxItemsPerCycle
	}
	if override.MaxScrolls > 0 {
		out.MaxScrolls = override.MaxScrolls
	}
	if override.ScrollSettleMs > 0 {
		out.ScrollSettleMs = override.ScrollSettleMs
	}
	if override.ScrollMinPx > 0 {
		out.ScrollMinPx = override.ScrollMinPx
	}
	if override.ScrollMaxPx > 0 {
		out.ScrollMaxPx = override.ScrollMaxPx
	}
	if override.MaxCycles > 0 {
		out.MaxCycles = override.MaxCycles
	}
	if override.Headless != nil {
		out.Headless = override.Headless
	}
	if override.NewItemsOnly != nil {
		out.NewItemsOnly = override.NewItemsOnly
	}
	return out
}

func validateSource(src Source) error {
	if src.ID == "" {
		return errors.New("id is required")
	}
	if src.Type == "" {
		return fmt.Errorf("type is required for source %q", src.ID)
	}
	// The scroll phase must fit inside the period.
	if src.Config.CycleDurationSeconds >= src.Config.FetchIntervalSeconds {
		return fmt.Errorf("source %q cycle_duration (%ds) must be below fetch_interval (%ds)",
			src.ID, src.Config.CycleDurationSeconds, src.Config.FetchIntervalSeconds)
	}
	if src.Config.ScrollMinPx > src.Config.ScrollMaxPx {
		return fmt.Errorf("source %q scroll_min_px exceeds scroll_max_px", src.ID)
	}
	return nil
}

// Accounts returns a copy of the loaded accounts.
func (r *Registry) Accounts() []Account {
	if r == nil || len(r.accounts) == 0 {
		return nil
	}
	out := make([]Account, len(r.accounts))
	copy(out, r.accounts)
	return out
}

// ActiveAccounts returns only accounts flagged active that have sources.
func (r *Registry) ActiveAccounts() []Account {
	var out []Account
	for _, acct := range r.Accounts() {
		if acct.Active && len(acct.Sources) > 0 {
			out = append(out, acct)
		}
	}
	return out
}

// Defaults exposes the merged registry-level defaults.
func (r *Registry) Defaults() SourceConfig {
	if r == nil {
		return defaultSourceConfig
	}
	return r.defaults
}

// FetchInterval is the target period between cycle starts.
func (c SourceConfig) FetchInterval() time.Duration {
	return time.Duration(c.FetchIntervalSeconds) * time.Second
}

// CycleDuration bounds the scroll/harvest phase of one cycle.
func (c SourceConfig) CycleDuration() time.Duration {
	return time.Duration(c.CycleDurationSeconds) * time.Second
}

// ScrollSettle is the pause after each scroll step.
func (c SourceConfig) ScrollSettle() time.Duration {
	return time.Duration(c.ScrollSettleMs) * time.Millisecond
}
