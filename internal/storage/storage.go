package storage

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	dbFile        = "progd.db"
	bucketName    = "snapshots"
	dbPermissions = 0600

	// Keys of the persisted catalog lists
	KeyNative   = "native"
	KeyPackaged = "packaged"
)

var errNoValue = errors.New("no value stored")

// DB stores typed snapshots in a bbolt database
type DB struct {
	db   *bbolt.DB
	path string
}

// Open creates or opens the snapshot database inside dir
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dir, dbFile)
	db, err := bbolt.Open(dbPath, dbPermissions, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketName)); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db: db, path: dbPath}, nil
}

// Path returns the database file path
func (d *DB) Path() string {
	return d.path
}

// Close closes the database. It is safe to call more than once.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Save encodes v and stores it under key
func Save[T any](d *DB, key string, v T) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	return d.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucketName)
		}
		return b.Put([]byte(key), buf.Bytes())
	})
}

// Load decodes the value stored under key. Use IsMissing to tell an absent
// key from an unreadable value.
func Load[T any](d *DB, key string) (T, error) {
	var v T
	var raw []byte

	err := d.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return errNoValue
		}
		val := b.Get([]byte(key))
		if val == nil {
			return errNoValue
		}
		// val is only valid inside the transaction
		raw = bytes.Clone(val)
		return nil
	})
	if err != nil {
		return v, err
	}

	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&v); err != nil {
		return v, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return v, nil
}

// IsMissing reports whether err means nothing was stored under the key
func IsMissing(err error) bool {
	return errors.Is(err, errNoValue)
}
