package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/dgraph-io/badger/v4"
)

const keyPrefix = "leak/"

var ErrNotFound = errors.New("analysis result not found")

type StoreConfig struct {
	// Path is the badger directory. Ignored when InMemory is true.
	Path     string
	InMemory bool

	SyncWrites bool

	// Logger receives badger's own log output. Nil silences it.
	Logger *slog.Logger
}

// Store keeps analysis results in badger, one JSON value per reference key.
type Store struct {
	db *badger.DB
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func OpenStore(config StoreConfig) (*Store, error) {
	if !config.InMemory && config.Path == "" {
		return nil, errors.New("store path is required unless in memory")
	}

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(config.Path, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create store directory %s: %w", config.Path, err)
		}
		opts = badger.DefaultOptions(config.Path)
	}

	opts = opts.WithSyncWrites(config.SyncWrites).WithNumVersionsToKeep(1)
	if config.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: config.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open result store: %w", err)
	}
	return &Store{db: db}, nil
}

func OpenInMemoryStore() (*Store, error) {
	return OpenStore(StoreConfig{InMemory: true})
}

func (s *Store) Save(result Result) error {
	if result.Key == "" {
		return errors.New("result key must not be empty")
	}

	value, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result %s: %w", result.Key, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+result.Key), value)
	})
	if err != nil {
		return fmt.Errorf("failed to save result %s: %w", result.Key, err)
	}
	return nil
}

func (s *Store) Get(key string) (Result, error) {
	var result Result
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &result)
		})
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to get result %s: %w", key, err)
	}
	return result, nil
}

// List returns up to limit results, newest first. limit <= 0 returns all.
func (s *Store) List(limit int) ([]Result, error) {
	var results []Result
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var result Result
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &result)
			})
			if err != nil {
				return fmt.Errorf("failed to decode %s: %w", it.Item().Key(), err)
			}
			results = append(results, result)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].AnalyzedAt.After(results[j].AnalyzedAt)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *Store) Delete(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete result %s: %w", key, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
