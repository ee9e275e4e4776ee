// Package boltstore persists per-participant preferences that outlive a
// connection, currently the social-spy set.
package boltstore

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	bbolt "go.etcd.io/bbolt"
)

// Store wraps a bbolt database.
type Store struct {
	bolt *bbolt.DB
}

// Open opens or creates a bbolt database file and ensures all buckets exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketSpies} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		meta := tx.Bucket(bucketMeta)
		if v := meta.Get(keySchema); v != nil && keyToInt(v) > schemaVersion {
			return fmt.Errorf("schema version %d is newer than supported %d", keyToInt(v), schemaVersion)
		}
		return meta.Put(keySchema, intToKey(schemaVersion))
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore: init: %w", err)
	}

	return &Store{bolt: db}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	if s.bolt != nil {
		return s.bolt.Close()
	}
	return nil
}

// Path returns the filesystem path of the underlying bbolt database.
func (s *Store) Path() string {
	if s.bolt != nil {
		return s.bolt.Path()
	}
	return ""
}

// PutSpy records that id has spying enabled.
func (s *Store) PutSpy(id uuid.UUID, name string) error {
	data, err := encodeSpy(&SpyRecord{Name: name, Since: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("boltstore: encode spy %s: %w", id, err)
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSpies).Put(idToKey(id), data)
	})
}

// DeleteSpy removes id from the spy set.
func (s *Store) DeleteSpy(id uuid.UUID) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSpies).Delete(idToKey(id))
	})
}

// Spy returns the stored record for id, or nil.
func (s *Store) Spy(id uuid.UUID) (*SpyRecord, error) {
	var rec *SpyRecord
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketSpies).Get(idToKey(id))
		if data == nil {
			return nil
		}
		var err error
		rec, err = decodeSpy(data)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: read spy %s: %w", id, err)
	}
	return rec, nil
}

// Spies returns every participant with spying enabled.
func (s *Store) Spies() ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSpies).ForEach(func(k, _ []byte) error {
			id, err := keyToID(k)
			if err != nil {
				return fmt.Errorf("bad key %x: %w", k, err)
			}
			ids = append(ids, id)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: list spies: %w", err)
	}
	return ids, nil
}
