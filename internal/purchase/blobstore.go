package purchase

import (
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const snapshotBucketName = "snapshots"

// BlobStore defines the interface for keyed snapshot persistence
type BlobStore interface {
	// Load returns the blob stored under key, or nil if there is none
	Load(key string) ([]byte, error)

	// Save replaces the blob stored under key
	Save(key string, data []byte) error

	// Close closes the underlying storage
	Close() error
}

// BoltBlobStore implements the BlobStore interface using BoltDB
type BoltBlobStore struct {
	db *bbolt.DB
}

// NewBoltBlobStore opens (or creates) a BoltDB file at path
func NewBoltBlobStore(path string) (*BoltBlobStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(snapshotBucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltBlobStore{db: db}, nil
}

// Load returns a copy of the blob stored under key
func (b *BoltBlobStore) Load(key string) ([]byte, error) {
	var data []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(snapshotBucketName)).Get([]byte(key))
		if v != nil {
			// bolt memory is only valid inside the transaction
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", key, err)
	}
	return data, nil
}

// Save stores data under key
func (b *BoltBlobStore) Save(key string, data []byte) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(snapshotBucketName)).Put([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	return nil
}

// Close closes the database connection
func (b *BoltBlobStore) Close() error {
	return b.db.Close()
}
