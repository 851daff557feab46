// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package migrateutil

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	sqlite3migrate "github.com/golang-migrate/migrate/v4/database/sqlite3"
)

func getVersion(m *migrate.Migrate) (uint, bool, error) {
	curVersion, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return curVersion, dirty, err
}

func makeMigrate(storeName string, db *sql.DB, migrationFS fs.FS, migrationsDir string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationFS, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("opening %s migrations: %w", storeName, err)
	}
	driver, err := sqlite3migrate.WithInstance(db, &sqlite3migrate.Config{})
	if err != nil {
		return nil, fmt.Errorf("making %s migration driver: %w", storeName, err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("making %s migration: %w", storeName, err)
	}
	return m, nil
}

// Migrate runs every pending up migration in migrationsDir and returns the resulting schema
// version.  A dirty database is an error (a previous migration failed half way).
func Migrate(storeName string, db *sql.DB, migrationFS fs.FS, migrationsDir string) (uint, error) {
	m, err := makeMigrate(storeName, db, migrationFS, migrationsDir)
	if err != nil {
		return 0, err
	}
	curVersion, dirty, err := getVersion(m)
	if err != nil {
		return 0, fmt.Errorf("%s: cannot get current migration version: %w", storeName, err)
	}
	if dirty {
		return curVersion, fmt.Errorf("%s: database is dirty at version %d", storeName, curVersion)
	}
	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return curVersion, fmt.Errorf("migrating %s: %w", storeName, err)
	}
	newVersion, _, err := getVersion(m)
	if err != nil {
		return curVersion, fmt.Errorf("%s: cannot get new migration version: %w", storeName, err)
	}
	if newVersion != curVersion {
		log.Printf("[db] %s migrated, version %d -> %d\n", storeName, curVersion, newVersion)
	}
	return newVersion, nil
}
