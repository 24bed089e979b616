// Package store keeps the dosing history and operator preferences in a local
// bbolt file, so both survive restarts of a single station.
package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"go.etcd.io/bbolt"

	"github.com/devadigapratham/microdose/dosing"
)

var preferencesBucket = []byte("preferences")

const sortOrderPrefix = "sort_order/"

// Preferences stores the manual sort order of listing pages.
type Preferences interface {
	SortOrder(ctx context.Context, page string) ([]string, error)
	SetSortOrder(ctx context.Context, page string, ids []string) error
}

// Store is a bbolt-backed dosing.EventLog and Preferences.
type Store struct {
	db      *bbolt.DB
	logName []byte
}

// Open opens (or creates) the store file at path. Events are kept in the
// bucket named logName.
func Open(path, logName string) (*Store, error) {
	if logName == "" {
		logName = dosing.DefaultLogName
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %v", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", path, err)
	}

	s := &Store{db: db, logName: []byte(logName)}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(s.logName); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(preferencesBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}
	return s, nil
}

// Append adds ev to the end of the log in one transaction.
func (s *Store) Append(ctx context.Context, ev dosing.DosingEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode dosing event: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.logName)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(sequenceKey(seq), data)
	})
}

// List returns every event in append order.
func (s *Store) List(ctx context.Context) ([]dosing.DosingEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []dosing.DosingEvent
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.logName).ForEach(func(k, v []byte) error {
			var ev dosing.DosingEvent
			if err := json.Unmarshal(v, &ev); err != nil {
				return fmt.Errorf("corrupt dosing event %d: %w", binary.BigEndian.Uint64(k), err)
			}
			out = append(out, ev)
			return nil
		})
	})
	return out, err
}

// SortOrder returns the saved order of item IDs for page, or nil if none was saved.
func (s *Store) SortOrder(ctx context.Context, page string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ids []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(preferencesBucket).Get([]byte(sortOrderPrefix + page))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &ids)
	})
	return ids, err
}

// SetSortOrder replaces the saved order for page.
func (s *Store) SetSortOrder(ctx context.Context, page string, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(preferencesBucket).Put([]byte(sortOrderPrefix+page), data)
	})
}

// Ping checks the file is still readable, for readiness probes.
func (s *Store) Ping() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(s.logName) == nil {
			return fmt.Errorf("bucket %s is missing", s.logName)
		}
		return nil
	})
}

// Close closes the underlying file.
func (s *Store) Close() error {
	return s.db.Close()
}

func sequenceKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}
