// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package whatsapp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"
)

const databaseName = "session.db"

// Store is the SQLite-backed credential store.
type Store struct {
	container *sqlstore.Container
	path      string
	log       zerolog.Logger
}

// OpenStore opens (and if needed creates) the credential database in dir.
func OpenStore(ctx context.Context, dir string, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create credential directory: %w", err)
	}
	path := filepath.Join(dir, databaseName)
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", path)
	container, err := sqlstore.New(ctx, "sqlite3", dsn, waLog.Zerolog(log.With().Str("component", "sqlstore").Logger()))
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	return &Store{
		container: container,
		path:      path,
		log:       log.With().Str("component", "credentials").Logger(),
	}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Purge deletes every stored device. The schema is kept, so the store is
// immediately usable for a fresh enrollment.
func (s *Store) Purge() error {
	ctx := context.Background()
	devices, err := s.container.GetAllDevices(ctx)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	for _, dev := range devices {
		if err := dev.Delete(ctx); err != nil {
			return fmt.Errorf("delete device %s: %w", dev.ID, err)
		}
		s.log.Info().Stringer("device", dev.ID).Msg("Deleted device credentials")
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.container.Close()
}
