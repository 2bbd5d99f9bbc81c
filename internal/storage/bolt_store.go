package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/diralist-hq/diralist-harvester/internal/domain"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

const (
	recordBucket     = "records"
	processedBucket  = "processed"
	sessionBucket    = "sessions"
	expiryValueBytes = 8
)

// boltStore implements a Store backed by BoltDB.
type boltStore struct {
	db              *bolt.DB
	cleanupMu       sync.Mutex
	lastCleanup     atomic.Int64
	processedTTL    time.Duration
	cleanupInterval time.Duration
}

// openBolt initializes a BoltDB-backed Store.
func openBolt(path string, opts Options) (Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{recordBucket, processedBucket, sessionBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	store := &boltStore{
		db:              db,
		processedTTL:    opts.ProcessedTTL,
		cleanupInterval: opts.CleanupInterval,
	}
	store.lastCleanup.Store(time.Now().Unix())
	return store, nil
}

// Close closes the BoltDB store.
func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// SaveRecord writes the record and marks its item id processed for the source.
func (b *boltStore) SaveRecord(rec domain.Record) (string, error) {
	if b == nil || b.db == nil {
		return "", fmt.Errorf("store is not open")
	}

	now := time.Now()
	if err := b.maybeCleanupExpired(now); err != nil {
		return "", err
	}

	recordID := uuid.NewString()
	payload, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}

	err = b.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket([]byte(recordBucket))
		if records == nil {
			return fmt.Errorf("record bucket missing")
		}
		if err := records.Put([]byte(recordID), payload); err != nil {
			return err
		}

		if rec.ID == "" || rec.SourceID == "" {
			return nil
		}
		processed := tx.Bucket([]byte(processedBucket))
		if processed == nil {
			return fmt.Errorf("processed bucket missing")
		}
		perSource, err := processed.CreateBucketIfNotExists([]byte(rec.SourceID))
		if err != nil {
			return err
		}
		buf := make([]byte, expiryValueBytes)
		binary.BigEndian.PutUint64(buf, uint64(now.Add(b.processedTTL).Unix()))
		return perSource.Put([]byte(rec.ID), buf)
	})
	if err != nil {
		return "", err
	}
	return recordID, nil
}

// ProcessedIDs returns all unexpired item ids persisted for the source.
func (b *boltStore) ProcessedIDs(sourceID string) ([]string, error) {
	if b == nil || b.db == nil {
		return nil, nil
	}

	if err := b.maybeCleanupExpired(time.Now()); err != nil {
		return nil, err
	}

	var ids []string
	now := time.Now()
	err := b.db.View(func(tx *bolt.Tx) error {
		processed := tx.Bucket([]byte(processedBucket))
		if processed == nil {
			return fmt.Errorf("processed bucket missing")
		}
		perSource := processed.Bucket([]byte(sourceID))
		if perSource == nil {
			return nil
		}
		return perSource.ForEach(func(k, v []byte) error {
			expiry, ok := decodeExpiry(v)
			if ok && expiry.After(now) {
				ids = append(ids, string(k))
			}
			return nil
		})
	})
	return ids, err
}

// SessionSeed returns the stored session seed for the account, nil when absent.
func (b *boltStore) SessionSeed(accountID string) ([]byte, error) {
	if b == nil || b.db == nil {
		return nil, nil
	}

	var seed []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		sessions := tx.Bucket([]byte(sessionBucket))
		if sessions == nil {
			return fmt.Errorf("session bucket missing")
		}
		if value := sessions.Get([]byte(accountID)); value != nil {
			seed = append([]byte(nil), value...)
		}
		return nil
	})
	return seed, err
}

// PutSessionSeed stores the session seed for the account.
func (b *boltStore) PutSessionSeed(accountID string, seed []byte) error {
	if b == nil || b.db == nil {
		return fmt.Errorf("store is not open")
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		sessions := tx.Bucket([]byte(sessionBucket))
		if sessions == nil {
			return fmt.Errorf("session bucket missing")
		}
		return sessions.Put([]byte(accountID), seed)
	})
}

// maybeCleanupExpired removes expired processed ids on a fixed cadence to avoid unbounded growth.
func (b *boltStore) maybeCleanupExpired(now time.Time) error {
	if b == nil || b.db == nil {
		return nil
	}

	last := time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	b.cleanupMu.Lock()
	defer b.cleanupMu.Unlock()

	last = time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		processed := tx.Bucket([]byte(processedBucket))
		if processed == nil {
			return fmt.Errorf("processed bucket missing")
		}

		return processed.ForEachBucket(func(name []byte) error {
			perSource := processed.Bucket(name)
			if perSource == nil {
				return nil
			}
			cursor := perSource.Cursor()
			for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
				expiry, ok := decodeExpiry(v)
				if !ok || !expiry.After(now) {
					if err := cursor.Delete(); err != nil {
						return err
					}
				}
			}
			return nil
		})
	})
	if err == nil {
		b.lastCleanup.Store(now.Unix())
	}
	return err
}

// decodeExpiry decodes the expiry time from the stored byte slice.
func decodeExpiry(value []byte) (time.Time, bool) {
	if len(value) != expiryValueBytes {
		return time.Time{}, false
	}
	unix := int64(binary.BigEndian.Uint64(value))
	if unix <= 0 {
		return time.Time{}, false
	}
	return time.Unix(unix, 0), true
}
