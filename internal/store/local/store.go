// Package local implements the persistence contract against an on-device
// style store: one serialized JSON array per collection, held in a single
// bbolt file. Date fields round-trip through ISO-8601 strings, exactly as
// the collections were persisted on the device.
package local

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/tankerflow/booking-engine/internal/domain"
	"github.com/tankerflow/booking-engine/internal/domain/user"
)

// Collection keys the on-device store persists under.
const (
	CollectionBookings     = "bookings"
	CollectionUsers        = "users_collection"
	CollectionVehicles     = "vehicles_collection"
	CollectionBankAccounts = "bank_accounts_collection"
	KeyCurrentUser         = "current_user"
)

var bucketName = []byte("collections")

// Store is the shared bbolt file behind every local collection. Each
// mutation rewrites the whole collection blob inside one transaction; the
// read-modify-write lost-update race of the original device store does not
// survive the port (bbolt serializes writers).
type Store struct {
	db     *bolt.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the store file at path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to init local store: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying file.
func (s *Store) Close() error {
	return s.db.Close()
}

// readRows decodes the JSON array stored under key. A missing key is an
// empty collection.
func (s *Store) readRows(key string) ([]map[string]any, error) {
	var rows []map[string]any
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketName).Get([]byte(key))
		if raw == nil {
			return nil
		}
		return json.Unmarshal(raw, &rows)
	})
	if err != nil {
		return nil, domain.NewTransientStorageError(fmt.Errorf("read %s: %w", key, err))
	}
	return rows, nil
}

// mutate applies fn to the decoded collection under key and writes the
// result back, all inside one transaction.
func (s *Store) mutate(key string, fn func(rows []map[string]any) ([]map[string]any, error)) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		var rows []map[string]any
		if raw := bucket.Get([]byte(key)); raw != nil {
			if err := json.Unmarshal(raw, &rows); err != nil {
				return domain.NewTransientStorageError(fmt.Errorf("decode %s: %w", key, err))
			}
		}
		next, err := fn(rows)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(next)
		if err != nil {
			return domain.NewTransientStorageError(fmt.Errorf("encode %s: %w", key, err))
		}
		return bucket.Put([]byte(key), raw)
	})
	return err
}

// Snapshot returns the current contents of one collection. It implements
// realtime.Source so subscriptions against this store can be serviced by
// polling.
func (s *Store) Snapshot(table string) ([]map[string]any, error) {
	return s.readRows(table)
}

// CurrentUser returns the session record stored under current_user, or nil
// if no session is persisted.
func (s *Store) CurrentUser() (*user.User, error) {
	var u *user.User
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketName).Get([]byte(KeyCurrentUser))
		if raw == nil {
			return nil
		}
		u = &user.User{}
		return json.Unmarshal(raw, u)
	})
	if err != nil {
		return nil, domain.NewTransientStorageError(fmt.Errorf("read current_user: %w", err))
	}
	return u, nil
}

// SetCurrentUser persists the session record under current_user. A nil user
// clears the session.
func (s *Store) SetCurrentUser(u *user.User) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		if u == nil {
			return bucket.Delete([]byte(KeyCurrentUser))
		}
		raw, err := json.Marshal(u)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(KeyCurrentUser), raw)
	})
	if err != nil {
		return domain.NewTransientStorageError(fmt.Errorf("write current_user: %w", err))
	}
	return nil
}
