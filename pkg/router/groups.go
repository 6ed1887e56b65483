// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package router

import (
	"context"
	"sync"
	"time"

	"github.com/aiku/wa-stickerbot/pkg/chat"
)

type cachedName struct {
	name    string
	expires time.Time
}

// groupNames caches group display names for a fixed TTL. Lookup failures
// are not cached.
type groupNames struct {
	dir chat.GroupDirectory
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]cachedName
}

func newGroupNames(dir chat.GroupDirectory, ttl time.Duration) *groupNames {
	return &groupNames{
		dir:     dir,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cachedName),
	}
}

func (g *groupNames) lookup(ctx context.Context, originID string) (string, error) {
	now := g.now()
	g.mu.Lock()
	entry, ok := g.entries[originID]
	g.mu.Unlock()
	if ok && now.Before(entry.expires) {
		return entry.name, nil
	}

	name, err := g.dir.LookupGroupName(ctx, originID)
	if err != nil {
		return "", err
	}
	if g.ttl > 0 {
		g.mu.Lock()
		g.entries[originID] = cachedName{name: name, expires: now.Add(g.ttl)}
		g.mu.Unlock()
	}
	return name, nil
}
