// Package history keeps a journal of sent and received messages in bbolt.
// Keys are UUIDv7, so iteration order is chronological.
package history

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

const (
	EntriesBucket = "entries"
)

// Recorder is what the chat node needs from a journal.
type Recorder interface {
	Append(e *Entry) error
}

// Store журнал на bbolt
type Store struct {
	db         *bbolt.DB
	mu         sync.RWMutex
	serializer Serializer
	now        func() time.Time
}

// Config содержит конфигурацию для Store
type Config struct {
	Path       string
	FileMode   os.FileMode
	Options    *bbolt.Options
	Serializer Serializer
}

// Open открывает или создает журнал
func Open(cfg Config) (*Store, error) {
	const op = "history.Open"

	if cfg.Serializer == nil {
		cfg.Serializer = &JSONSerializer{}
	}
	if cfg.FileMode == 0 {
		cfg.FileMode = 0600
	}
	if cfg.Options == nil {
		cfg.Options = &bbolt.Options{Timeout: time.Second}
	}

	db, err := bbolt.Open(cfg.Path, cfg.FileMode, cfg.Options)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Создаем bucket при инициализации
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(EntriesBucket)); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Store{
		db:         db,
		serializer: cfg.Serializer,
		now:        time.Now,
	}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return ErrNilDB
	}
	return s.db.Close()
}

// Append сохраняет запись. Пустые ID и Time заполняются.
func (s *Store) Append(e *Entry) error {
	if e == nil {
		return ErrNilEntry
	}
	if s.db == nil {
		return ErrNilDB
	}

	if e.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("history.Append: id: %w", err)
		}
		e.ID = id.String()
	}
	if e.Time.IsZero() {
		e.Time = s.now()
	}

	key, err := uuid.Parse(e.ID)
	if err != nil {
		return fmt.Errorf("history.Append: bad id %q: %w", e.ID, err)
	}

	data, err := s.serializer.Serialize(e)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(EntriesBucket))
		if err != nil {
			return err
		}
		return bucket.Put(key[:], data)
	})
}

// List возвращает последние limit записей в хронологическом порядке.
// limit <= 0 означает все записи.
func (s *Store) List(limit int) ([]Entry, error) {
	if s.db == nil {
		return nil, ErrNilDB
	}

	var entries []Entry

	s.mu.RLock()
	defer s.mu.RUnlock()

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(EntriesBucket))
		if bucket == nil {
			return ErrBucketNotFound
		}

		c := bucket.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(entries) >= limit {
				break
			}
			var e Entry
			if err := s.serializer.Deserialize(v, &e); err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// курсор шел с конца
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Count returns the number of stored entries.
func (s *Store) Count() (int, error) {
	if s.db == nil {
		return 0, ErrNilDB
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(EntriesBucket))
		if bucket == nil {
			return ErrBucketNotFound
		}
		n = bucket.Stats().KeyN
		return nil
	})
	return n, err
}
