// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package scratch hands out unique temporary artifact paths under a single
// scratch directory. It never removes anything on its own: whoever asked for
// a path owns the file and must remove it.
package scratch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.mau.fi/util/random"
)

const suffixLength = 10

// Manager allocates scratch paths.
type Manager struct {
	dir string
	now func() time.Time
}

// New creates the scratch directory if it is missing and returns a Manager
// rooted at it.
func New(dir string) (*Manager, error) {
	if dir == "" {
		return nil, errors.New("scratch directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve scratch directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}
	return &Manager{dir: abs, now: time.Now}, nil
}

// Dir returns the scratch directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Path returns a fresh path named <prefix>_<unix-nanos>_<random><ext>. The
// file is not created.
func (m *Manager) Path(prefix, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	name := fmt.Sprintf("%s_%d_%s%s", prefix, m.now().UnixNano(), random.String(suffixLength), ext)
	return filepath.Join(m.dir, name)
}

// Remove deletes the given paths. Paths that are already gone are not an
// error; every other failure is joined into the result.
func Remove(paths ...string) error {
	var errs []error
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
