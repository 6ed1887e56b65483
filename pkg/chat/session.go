// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package chat

import (
	"context"
	"sync"
)

// DisconnectCause classifies why a transport connection closed.
type DisconnectCause int

const (
	CauseUnknown DisconnectCause = iota
	CauseLoggedOut
	CauseStreamError
	CauseRestartRequired
	CauseOtherRetryable
)

func (c DisconnectCause) String() string {
	switch c {
	case CauseLoggedOut:
		return "logged-out"
	case CauseStreamError:
		return "stream-error"
	case CauseRestartRequired:
		return "restart-required"
	case CauseOtherRetryable:
		return "other-retryable"
	default:
		return "unknown"
	}
}

// Transport status codes used to classify close events.
const (
	StatusLoggedOut       = 401
	StatusRestartRequired = 515
)

// CauseFromStatus maps a transport close status code to a DisconnectCause.
// Zero means the transport gave no code.
func CauseFromStatus(code int) DisconnectCause {
	switch {
	case code == 0:
		return CauseUnknown
	case code == StatusLoggedOut:
		return CauseLoggedOut
	case code == StatusRestartRequired:
		return CauseRestartRequired
	default:
		return CauseOtherRetryable
	}
}

// ConnectionState is the connectivity reported by a connection update.
type ConnectionState string

const (
	ConnectionConnecting ConnectionState = "connecting"
	ConnectionOpen       ConnectionState = "open"
	ConnectionClosed     ConnectionState = "close"
)

// ConnectionUpdate is emitted whenever the transport connection changes. QR
// is set when the transport needs the user to enroll the device; State may
// be empty in that case.
type ConnectionUpdate struct {
	State ConnectionState
	Cause DisconnectCause
	Err   error
	QR    string
}

// EventKind keys the session listener table.
type EventKind string

const (
	EventCredentialsUpdated EventKind = "credentials-updated"
	EventConnectionUpdate   EventKind = "connection-update"
	EventNotificationBatch  EventKind = "notification-batch"
)

// Event is a single session event. Exactly one of Connection or Batch is
// set, depending on Kind.
type Event struct {
	Kind       EventKind
	Connection *ConnectionUpdate
	Batch      []*InboundEvent
}

// Handler receives session events.
type Handler func(Event)

// Sender is the outbound half of a session.
type Sender interface {
	SendText(ctx context.Context, originID, text string) error
	SendSticker(ctx context.Context, originID string, sticker *Sticker) error
}

// MediaDownloader fetches the bytes behind a media reference.
type MediaDownloader interface {
	DownloadMedia(ctx context.Context, ref *MediaRef) ([]byte, error)
}

// GroupDirectory resolves group metadata.
type GroupDirectory interface {
	LookupGroupName(ctx context.Context, originID string) (string, error)
}

// Session is a live handle to the transport's authenticated connection. A
// Session is never reused: once closed, the supervisor opens a new one.
type Session interface {
	Sender
	MediaDownloader
	GroupDirectory

	// On registers a handler for the given event kind.
	On(kind EventKind, handler Handler)
	// ReleaseListeners drops every registered handler. Events emitted
	// afterwards are discarded.
	ReleaseListeners()
	// Connect starts the handshake. Progress is reported through
	// EventConnectionUpdate.
	Connect(ctx context.Context) error
	// Close tears the connection down and frees the session's resources.
	Close() error
}

// Opener constructs sessions from the persisted credential state.
type Opener interface {
	Open(ctx context.Context) (Session, error)
}

// CredentialStore owns the persisted credential state.
type CredentialStore interface {
	// Purge removes all credentials and leaves an empty, valid store behind.
	Purge() error
}

// Listeners is a handler table keyed by event kind. Session implementations
// embed it to provide On, ReleaseListeners and Emit. Safe for concurrent use.
type Listeners struct {
	mu       sync.RWMutex
	handlers map[EventKind][]Handler
}

// On registers a handler for kind.
func (l *Listeners) On(kind EventKind, handler Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handlers == nil {
		l.handlers = make(map[EventKind][]Handler)
	}
	l.handlers[kind] = append(l.handlers[kind], handler)
}

// ReleaseListeners removes all handlers.
func (l *Listeners) ReleaseListeners() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = nil
}

// Emit delivers evt to every handler registered for its kind and reports
// whether any handler received it.
func (l *Listeners) Emit(evt Event) bool {
	l.mu.RLock()
	handlers := l.handlers[evt.Kind]
	l.mu.RUnlock()
	for _, h := range handlers {
		h(evt)
	}
	return len(handlers) > 0
}
