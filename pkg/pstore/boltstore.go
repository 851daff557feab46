// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package pstore

import (
	"context"
	"fmt"
	"log"
	"time"

	bolt "go.etcd.io/bbolt"
)

const BackendName_Bolt = "bolt"
const boltBucket = "pickle-state"

type BoltBackend struct {
	db *bolt.DB
}

func OpenBoltBackend(path string) (*BoltBackend, error) {
	log.Printf("[pstore] opening bolt db %s\n", path)
	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing bolt bucket: %w", err)
	}
	return &BoltBackend{db: db}, nil
}

func (b *BoltBackend) Name() string {
	return BackendName_Bolt
}

func (b *BoltBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rtn []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		val := tx.Bucket([]byte(boltBucket)).Get([]byte(key))
		if val == nil {
			return fmt.Errorf("bolt %q: %w", key, ErrNotFound)
		}
		// val is only valid for the life of the transaction
		rtn = append([]byte(nil), val...)
		return nil
	})
	return rtn, err
}

func (b *BoltBackend) Put(ctx context.Context, key string, val []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(boltBucket)).Put([]byte(key), val)
	})
}

func (b *BoltBackend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(boltBucket)).Delete([]byte(key))
	})
}

func (b *BoltBackend) Close() error {
	return b.db.Close()
}
