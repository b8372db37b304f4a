package feedstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/pointfeed-hq/pointfeed/internal/domain"
)

const feedBucket = "feeds"

// boltStore implements a Store backed by BoltDB. Each registration is kept
// under its ID key as JSON, so Get returns feeds in stable key order.
type boltStore struct {
	db *bolt.DB
}

func openBolt(path string) (Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(feedBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init bucket: %w", err)
	}

	return &boltStore{db: db}, nil
}

func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *boltStore) Get(ctx context.Context) ([]domain.FeedRegistration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b == nil || b.db == nil {
		return nil, nil
	}

	var feeds []domain.FeedRegistration
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(feedBucket))
		if bucket == nil {
			return fmt.Errorf("feed bucket missing")
		}
		return bucket.ForEach(func(k, v []byte) error {
			var f domain.FeedRegistration
			if err := json.Unmarshal(v, &f); err != nil {
				return fmt.Errorf("decode feed %q: %w", string(k), err)
			}
			feeds = append(feeds, f)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return feeds, nil
}

func (b *boltStore) Set(ctx context.Context, feeds []domain.FeedRegistration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b == nil || b.db == nil {
		return fmt.Errorf("bolt store is closed")
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(feedBucket))
		if bucket == nil {
			return fmt.Errorf("feed bucket missing")
		}

		// Replace the whole collection: feeds absent from the new set are
		// deletions.
		cursor := bucket.Cursor()
		for k, _ := cursor.First(); k != nil; k, _ = cursor.Next() {
			if err := cursor.Delete(); err != nil {
				return err
			}
		}

		for _, f := range feeds {
			if f.ID == "" {
				return fmt.Errorf("feed with empty id cannot be stored")
			}
			raw, err := json.Marshal(f)
			if err != nil {
				return fmt.Errorf("encode feed %q: %w", f.ID, err)
			}
			if err := bucket.Put([]byte(f.ID), raw); err != nil {
				return err
			}
		}
		return nil
	})
}
