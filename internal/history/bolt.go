// Package history persists conversation transcripts, one record per user.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pagesmith-dev/pagesmith/internal/models"
	bolt "go.etcd.io/bbolt"
)

const historyBucket = "history"

// Record is the persisted conversation for one user. Exactly one record
// exists per user key; every save overwrites it in place.
type Record struct {
	UserKey   string           `json:"userKey"`
	Messages  []models.Message `json:"messages"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// BoltStore implements transcript persistence on a BoltDB backend. Saves are
// upserts keyed on the user key, never an append-only log.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates, with 0600 permissions) the database at the
// given path and ensures the history bucket exists.
func NewBoltStore(path string) (BoltStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return BoltStore{}, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(historyBucket))
		return err
	})

	return BoltStore{db: db}, err
}

// Save upserts the full message list for a user: an existing record is
// overwritten along with its updatedAt timestamp, an absent one is created.
// At most one record per user exists at all times.
func (b BoltStore) Save(_ context.Context, userKey string, messages []models.Message) error {
	record := Record{
		UserKey:   userKey,
		Messages:  messages,
		UpdatedAt: time.Now(),
	}

	v, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal history record: %w", err)
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(historyBucket))
		if bkt == nil {
			return fmt.Errorf("history bucket is missing")
		}
		return bkt.Put([]byte(userKey), v)
	})
}

// Load returns the persisted transcript for a user, or an empty one when the
// user has no record yet.
func (b BoltStore) Load(_ context.Context, userKey string) ([]models.Message, error) {
	var messages []models.Message
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(historyBucket))
		if bkt == nil {
			return nil
		}

		v := bkt.Get([]byte(userKey))
		if v == nil {
			return nil
		}

		var record Record
		if err := json.Unmarshal(v, &record); err != nil {
			return fmt.Errorf("failed to unmarshal history record: %w", err)
		}
		messages = record.Messages
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// Close releases the underlying database file.
func (b BoltStore) Close() error {
	return b.db.Close()
}
