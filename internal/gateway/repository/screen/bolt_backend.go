package screen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"sdui/internal/screen"
)

var screensBucket = []byte("screens")

// BoltBackend is a single-file backend for local and single-node deployments.
// Keys are "screen/variant".
type BoltBackend struct {
	db *bolt.DB
}

func NewBoltBackend(path string) (*BoltBackend, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("bolt path is required")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(screensBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltBackend{db: db}, nil
}

func boltKey(screenName, variant string) []byte {
	return []byte(screenName + "/" + variant)
}

func (b *BoltBackend) Load(_ context.Context) ([]Record, error) {
	var out []Record
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(screensBucket).ForEach(func(k, v []byte) error {
			name, variant, ok := strings.Cut(string(k), "/")
			if !ok {
				return nil
			}
			cfg, err := screen.Decode(v)
			if err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}
			out = append(out, Record{Screen: name, Variant: variant, Config: cfg})
			return nil
		})
	})
	return out, err
}

func (b *BoltBackend) Save(_ context.Context, rec Record) error {
	raw, err := json.Marshal(rec.Config)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(screensBucket).Put(boltKey(rec.Screen, rec.Variant), raw)
	})
}

func (b *BoltBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
