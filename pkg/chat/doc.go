// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package chat defines the transport-neutral model shared by the sticker bot
// components.
//
// The chat transport itself (wire protocol, credential persistence) lives
// behind the [Session], [Opener] and [CredentialStore] contracts. The
// whatsapp package provides the production implementation; tests use
// in-memory fakes.
//
// # Events
//
// A [Session] delivers three kinds of events through its listener table:
// credential updates, connection state changes and notification batches.
// Listeners are registered per kind with [Session.On] and dropped in one go
// with [Session.ReleaseListeners], which the supervisor calls before it
// discards a session so that a stale session can never reach the new stack.
//
// # Errors
//
// Job-level failures are classified with the sentinel errors in errors.go and
// never escape the conversion pipeline. Connection-level failures are mapped
// to a [DisconnectCause] and handled by the supervisor only.
package chat
