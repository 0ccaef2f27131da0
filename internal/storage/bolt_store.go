package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	BucketRuns  = "runs"
	BucketIndex = "runs_by_time"
)

var ErrNotFound = errors.New("history item not found")

type Store struct {
	db       *bbolt.DB
	filePath string
}

// DefaultPath is ~/.scopebench/history.db
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".scopebench", "history.db"), nil
}

func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}

	// Initialize Buckets
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(BucketRuns)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(BucketIndex))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:       db,
		filePath: path,
	}, nil
}

func (s *Store) Path() string {
	return s.filePath
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save stores item keyed by ID and indexes it by timestamp.
func (s *Store) Save(item HistoryItem) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(item)
		if err != nil {
			return err
		}
		if err := tx.Bucket([]byte(BucketRuns)).Put([]byte(item.ID), data); err != nil {
			return err
		}
		return tx.Bucket([]byte(BucketIndex)).Put(timeKey(item), []byte(item.ID))
	})
}

// List returns all items, newest first.
func (s *Store) List() ([]HistoryItem, error) {
	var items []HistoryItem

	err := s.db.View(func(tx *bbolt.Tx) error {
		runs := tx.Bucket([]byte(BucketRuns))
		c := tx.Bucket([]byte(BucketIndex)).Cursor()

		for k, id := c.Last(); k != nil; k, id = c.Prev() {
			v := runs.Get(id)
			if v == nil {
				continue
			}
			var item HistoryItem
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("decode history item %s: %w", id, err)
			}
			items = append(items, item)
		}
		return nil
	})
	return items, err
}

func (s *Store) Get(id string) (*HistoryItem, error) {
	var item HistoryItem
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketRuns))
		v := b.Get([]byte(id))
		if v == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(v, &item)
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) Delete(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		runs := tx.Bucket([]byte(BucketRuns))
		v := runs.Get([]byte(id))
		if v == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		var item HistoryItem
		if err := json.Unmarshal(v, &item); err != nil {
			return err
		}
		if err := tx.Bucket([]byte(BucketIndex)).Delete(timeKey(item)); err != nil {
			return err
		}
		return runs.Delete([]byte(id))
	})
}

// timeKey sorts by timestamp; the ID suffix keeps keys unique.
func timeKey(item HistoryItem) []byte {
	k := make([]byte, 8, 8+len(item.ID))
	binary.BigEndian.PutUint64(k, uint64(item.Timestamp.UnixNano()))
	return append(k, item.ID...)
}
