package cache

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
)

var bucketEmbeddings = []byte("embeddings")

// EmbedCache memoizes embedding vectors on disk, keyed by the provider
// fingerprint plus the chunk text hash. Re-indexing a vault where most
// chunks are unchanged in content but shuffled across files then skips the
// provider entirely for those chunks.
//
// Vectors from one fingerprint are never returned for another; a provider or
// model switch simply misses and repopulates under the new key prefix.
type EmbedCache struct {
	db *bbolt.DB
}

func Open(path string) (*EmbedCache, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open embed cache: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEmbeddings)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &EmbedCache{db: db}, nil
}

func cacheKey(fingerprint, contentHash string) []byte {
	return []byte(fingerprint + "\x00" + contentHash)
}

// Get returns the cached vector for (fingerprint, contentHash), or false on
// a miss. A corrupt entry counts as a miss.
func (c *EmbedCache) Get(fingerprint, contentHash string) ([]float32, bool) {
	var vec []float32
	c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketEmbeddings).Get(cacheKey(fingerprint, contentHash))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &vec); err != nil {
			vec = nil
		}
		return nil
	})
	return vec, vec != nil
}

func (c *EmbedCache) Put(fingerprint, contentHash string, vec []float32) error {
	data, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEmbeddings).Put(cacheKey(fingerprint, contentHash), data)
	})
}

// Len reports the number of cached vectors across all fingerprints.
func (c *EmbedCache) Len() int {
	n := 0
	c.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketEmbeddings).Stats().KeyN
		return nil
	})
	return n
}

// Clear drops every cached vector.
func (c *EmbedCache) Clear() error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketEmbeddings); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketEmbeddings)
		return err
	})
}

func (c *EmbedCache) Close() error {
	return c.db.Close()
}
