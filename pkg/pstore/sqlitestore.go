// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package pstore

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sawka/txwrap"

	dbfs "github.com/wavetermdev/pickle/db"
	"github.com/wavetermdev/pickle/pkg/util/migrateutil"
)

const BackendName_Sqlite = "sqlite"

// MemoryDBName opens a private in-memory database (tests).
const MemoryDBName = ":memory:"

type TxWrap = txwrap.TxWrap

type SqliteBackend struct {
	db            *sqlx.DB
	schemaVersion uint
}

type stateRow struct {
	Key   string `db:"key"`
	Data  []byte `db:"data"`
	ModTs int64  `db:"modts"`
	Size  int64  `db:"size"`
}

func OpenSqliteBackend(ctx context.Context, dbName string) (*SqliteBackend, error) {
	var db *sqlx.DB
	var err error
	if dbName == MemoryDBName {
		log.Printf("[db] using in-memory db\n")
		db, err = sqlx.Open("sqlite3", dbName)
	} else {
		log.Printf("[db] opening db %s\n", dbName)
		db, err = sqlx.Open("sqlite3", fmt.Sprintf("file:%s?mode=rwc&_journal_mode=WAL&_busy_timeout=5000", dbName))
	}
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}
	// one connection, so ":memory:" is a single database and writes never contend
	db.DB.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening db: %w", err)
	}
	version, err := migrateutil.Migrate("pstore", db.DB, dbfs.PstoreMigrationFS, "migrations-pstore")
	if err != nil {
		db.Close()
		return nil, err
	}
	return &SqliteBackend{db: db, schemaVersion: version}, nil
}

func (s *SqliteBackend) Name() string {
	return BackendName_Sqlite
}

func (s *SqliteBackend) SchemaVersion() uint {
	return s.schemaVersion
}

func (s *SqliteBackend) withTx(ctx context.Context, fn func(tx *TxWrap) error) error {
	return txwrap.WithTx(ctx, s.db, fn)
}

func (s *SqliteBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var row stateRow
	var found bool
	err := s.withTx(ctx, func(tx *TxWrap) error {
		query := "SELECT * FROM db_pstore WHERE key = ?"
		found = tx.Get(&row, query, key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("sqlite %q: %w", key, ErrNotFound)
	}
	return row.Data, nil
}

func (s *SqliteBackend) Put(ctx context.Context, key string, val []byte) error {
	return s.withTx(ctx, func(tx *TxWrap) error {
		query := `INSERT INTO db_pstore (key, data, modts, size) VALUES (?, ?, ?, ?)
                  ON CONFLICT (key) DO UPDATE SET data = excluded.data, modts = excluded.modts, size = excluded.size`
		tx.Exec(query, key, val, time.Now().UnixMilli(), len(val))
		return nil
	})
}

func (s *SqliteBackend) Delete(ctx context.Context, key string) error {
	return s.withTx(ctx, func(tx *TxWrap) error {
		query := "DELETE FROM db_pstore WHERE key = ?"
		tx.Exec(query, key)
		return nil
	})
}

// Keys lists the stored keys (autosave flags included).
func (s *SqliteBackend) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.withTx(ctx, func(tx *TxWrap) error {
		query := "SELECT key FROM db_pstore ORDER BY key"
		tx.Select(&keys, query)
		return nil
	})
	return keys, err
}

func (s *SqliteBackend) Close() error {
	return s.db.Close()
}
