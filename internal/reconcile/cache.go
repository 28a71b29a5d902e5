package reconcile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/agentx-labs/unitcore/internal/manifest"
)

var (
	fingerprintKey = []byte("fingerprint")
	entryPrefix    = []byte("unit/")
)

// CacheEntry is everything needed to recreate one unit without touching its
// jar, provided the jar has not changed since.
type CacheEntry struct {
	Record     Record               `msgpack:"record"`
	Origin     string               `msgpack:"origin"`
	OriginMod  time.Time            `msgpack:"origin_mod"`
	Descriptor *manifest.Descriptor `msgpack:"descriptor"`
}

// Cache is the binary fast path for startup. Losing it is harmless; the
// record files stay authoritative.
type Cache struct {
	db *badger.DB
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenCache opens the cache database in dir, or an in-memory one when dir
// is empty.
func OpenCache(dir string, logger *slog.Logger) (*Cache, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating cache directory %s: %w", dir, err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening status cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Load returns the cached entries if they were saved for fingerprint.
func (c *Cache) Load(fingerprint uint64) ([]CacheEntry, bool, error) {
	var entries []CacheEntry
	hit := false
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(fingerprintKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		stored, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if len(stored) != 8 || binary.BigEndian.Uint64(stored) != fingerprint {
			return nil
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = entryPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var e CacheEntry
			if err := it.Item().Value(func(v []byte) error {
				return msgpack.Unmarshal(v, &e)
			}); err != nil {
				return fmt.Errorf("decoding %s: %w", it.Item().Key(), err)
			}
			entries = append(entries, e)
		}
		hit = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("loading status cache: %w", err)
	}
	return entries, hit, nil
}

// Save replaces the cached entries and their fingerprint.
func (c *Cache) Save(fingerprint uint64, entries []CacheEntry) error {
	var stale [][]byte
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = entryPrefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving status cache: %w", err)
	}

	wb := c.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range stale {
		if err := wb.Delete(k); err != nil {
			return fmt.Errorf("saving status cache: %w", err)
		}
	}
	for _, e := range entries {
		v, err := msgpack.Marshal(&e)
		if err != nil {
			return fmt.Errorf("encoding cache entry %s: %w", e.Record.Name, err)
		}
		key := append(append([]byte(nil), entryPrefix...), e.Record.Name...)
		if err := wb.Set(key, v); err != nil {
			return fmt.Errorf("saving status cache: %w", err)
		}
	}
	fp := make([]byte, 8)
	binary.BigEndian.PutUint64(fp, fingerprint)
	if err := wb.Set(fingerprintKey, fp); err != nil {
		return fmt.Errorf("saving status cache: %w", err)
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("saving status cache: %w", err)
	}
	return nil
}

// Fingerprint digests the names, sizes and modification times of the
// record files in the store.
func Fingerprint(s *Store) (uint64, error) {
	paths, err := s.List()
	if err != nil {
		return 0, err
	}
	h := xxhash.New()
	buf := make([]byte, 16)
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return 0, fmt.Errorf("fingerprinting %s: %w", p, err)
		}
		_, _ = h.WriteString(p)
		binary.BigEndian.PutUint64(buf[:8], uint64(info.Size()))
		binary.BigEndian.PutUint64(buf[8:], uint64(info.ModTime().UnixNano()))
		_, _ = h.Write(buf)
	}
	return h.Sum64(), nil
}
