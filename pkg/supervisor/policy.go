// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package supervisor

import (
	"errors"
	"strings"
	"time"

	"github.com/aiku/wa-stickerbot/pkg/chat"
)

const (
	RetryDelay         = 5 * time.Second
	StreamRetryDelay   = 10 * time.Second
	StartupStreamDelay = 15 * time.Second
)

// Action is what the supervisor does after a connection closes.
type Action int

const (
	ActionReconnect Action = iota
	// ActionPurge wipes the credential store and stops for good.
	ActionPurge
)

func (a Action) String() string {
	if a == ActionPurge {
		return "purge"
	}
	return "reconnect"
}

// Decision is the reconnect policy outcome for one disconnect cause.
type Decision struct {
	Action Action
	Delay  time.Duration
}

// Decide maps a disconnect cause to the reconnect policy.
func Decide(cause chat.DisconnectCause) Decision {
	switch cause {
	case chat.CauseLoggedOut:
		return Decision{Action: ActionPurge}
	case chat.CauseStreamError, chat.CauseRestartRequired:
		return Decision{Action: ActionReconnect, Delay: StreamRetryDelay}
	default:
		return Decision{Action: ActionReconnect, Delay: RetryDelay}
	}
}

// StartupDelay is the wait before retrying after a failure to open or
// connect a session. Stream-layer failures back off longer.
func StartupDelay(err error) time.Duration {
	if err != nil && (errors.Is(err, chat.ErrStream) || strings.Contains(strings.ToLower(err.Error()), "stream")) {
		return StartupStreamDelay
	}
	return RetryDelay
}
