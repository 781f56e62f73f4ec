package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/kailas-cloud/rarity/internal/db"
)

// Compile-time check: Store implements db.KVStore.
var _ db.KVStore = (*Store)(nil)

// Config configures the embedded cache store.
type Config struct {
	// Dir holds data files. Required unless InMemory.
	Dir string
	// InMemory keeps everything in RAM (tests, single-process deployments).
	InMemory bool
	// GCInterval triggers value log GC for on-disk stores; 0 disables it.
	GCInterval time.Duration
}

// Store is an embedded TTL key-value store backed by BadgerDB.
type Store struct {
	db     *badgerdb.DB
	logger *zap.Logger
	stop   chan struct{}
	done   chan struct{}
}

// NewStore opens a Badger database. logger may be nil.
func NewStore(cfg Config, logger *zap.Logger) (*Store, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.New("badger: dir is required for on-disk mode")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := badgerdb.DefaultOptions(cfg.Dir).WithLogger(zapLogger{logger.Sugar()})
	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}

	bdb, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	s := &Store{db: bdb, logger: logger}
	if !cfg.InMemory && cfg.GCInterval > 0 {
		s.stop = make(chan struct{})
		s.done = make(chan struct{})
		go s.gcLoop(cfg.GCInterval)
	}
	return s, nil
}

// Get returns the value for key or db.ErrKeyNotFound when absent or expired.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	var val []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, db.ErrKeyNotFound
	}
	if err != nil {
		return nil, &db.Error{Op: db.OpGet, Err: err}
	}
	return val, nil
}

// SetWithTTL stores value under key; it expires after ttl.
func (s *Store) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return &db.Error{Op: db.OpSet, Err: fmt.Errorf("ttl must be positive, got %s", ttl)}
	}
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.SetEntry(badgerdb.NewEntry([]byte(key), value).WithTTL(ttl))
	})
	if err != nil {
		return &db.Error{Op: db.OpSet, Err: err}
	}
	return nil
}

// Del removes key. Missing keys are not an error.
func (s *Store) Del(_ context.Context, key string) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil && !errors.Is(err, badgerdb.ErrKeyNotFound) {
		return &db.Error{Op: db.OpDel, Err: err}
	}
	return nil
}

// Ping reports whether the database is open.
func (s *Store) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger: closed")
	}
	return nil
}

// Close stops background GC and closes the database.
func (s *Store) Close() {
	if s.stop != nil {
		close(s.stop)
		<-s.done
	}
	if err := s.db.Close(); err != nil {
		s.logger.Warn("Failed to close badger", zap.Error(err))
	}
}

func (s *Store) gcLoop(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			// RunValueLogGC rewrites at most one file per call; loop until nothing is left.
			for {
				if err := s.db.RunValueLogGC(0.5); err != nil {
					break
				}
			}
		}
	}
}

// zapLogger adapts zap to badger's logger interface; info and debug are dropped.
type zapLogger struct {
	s *zap.SugaredLogger
}

func (l zapLogger) Errorf(f string, v ...any)   { l.s.Errorf("[badger] "+f, v...) }
func (l zapLogger) Warningf(f string, v ...any) { l.s.Warnf("[badger] "+f, v...) }
func (zapLogger) Infof(string, ...any)          {}
func (zapLogger) Debugf(string, ...any)         {}
