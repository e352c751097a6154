package receipt

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/marcinparda/actual/internal/fault"
)

const receiptBucket = "receipts"

// Index defines the fileId to StoredReceipt mapping. Lookups are exact:
// one id resolves to at most one record, never by substring or prefix.
type Index interface {
	// Put stores a receipt record under its FileID.
	Put(rec *StoredReceipt) error

	// Get retrieves a record by exact FileID.
	Get(fileID string) (*StoredReceipt, error)

	// Delete removes a record by exact FileID.
	Delete(fileID string) error

	// Close closes the index.
	Close() error
}

// BoltIndex implements Index using bbolt.
type BoltIndex struct {
	db *bbolt.DB
}

// NewBoltIndex opens (or creates) the index database at path.
func NewBoltIndex(path string) (*BoltIndex, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening index database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(receiptBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating receipt bucket: %w", err)
	}

	return &BoltIndex{db: db}, nil
}

// Put stores a receipt record under its FileID.
func (b *BoltIndex) Put(rec *StoredReceipt) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptBucket))
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshaling receipt record: %w", err)
		}
		return bucket.Put([]byte(rec.FileID), data)
	})
}

// Get retrieves a record by exact FileID.
func (b *BoltIndex) Get(fileID string) (*StoredReceipt, error) {
	var rec *StoredReceipt
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptBucket))
		data := bucket.Get([]byte(fileID))
		if data == nil {
			return fault.Errorf(fault.KindNotFound, "receipt %s not found", fileID)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete removes a record by exact FileID.
func (b *BoltIndex) Delete(fileID string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptBucket))
		if bucket.Get([]byte(fileID)) == nil {
			return fault.Errorf(fault.KindNotFound, "receipt %s not found", fileID)
		}
		return bucket.Delete([]byte(fileID))
	})
}

// Close closes the index database.
func (b *BoltIndex) Close() error {
	return b.db.Close()
}
