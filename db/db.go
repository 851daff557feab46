// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package db

import "embed"

//go:embed migrations-pstore/*.sql
var PstoreMigrationFS embed.FS
