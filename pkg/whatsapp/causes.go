// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package whatsapp

import (
	"fmt"

	"go.mau.fi/whatsmeow/types/events"

	"github.com/aiku/wa-stickerbot/pkg/chat"
)

const restartRequiredCode = "515"

// connectionUpdate translates whatsmeow connection events. It returns false
// for events that say nothing about connectivity.
func connectionUpdate(rawEvt any) (*chat.ConnectionUpdate, bool) {
	closed := func(cause chat.DisconnectCause, err error) (*chat.ConnectionUpdate, bool) {
		return &chat.ConnectionUpdate{State: chat.ConnectionClosed, Cause: cause, Err: err}, true
	}
	switch evt := rawEvt.(type) {
	case *events.Connected:
		return &chat.ConnectionUpdate{State: chat.ConnectionOpen}, true
	case *events.LoggedOut:
		return closed(chat.CauseLoggedOut, fmt.Errorf("%w: logged out (%s)", chat.ErrTransport, evt.Reason))
	case *events.ConnectFailure:
		err := fmt.Errorf("%w: connect failure %d: %s", chat.ErrTransport, int(evt.Reason), evt.Message)
		if evt.Reason.IsLoggedOut() {
			return closed(chat.CauseLoggedOut, err)
		}
		return closed(chat.CauseFromStatus(int(evt.Reason)), err)
	case *events.StreamError:
		err := fmt.Errorf("%w: code %s", chat.ErrStream, evt.Code)
		if evt.Code == restartRequiredCode {
			return closed(chat.CauseRestartRequired, err)
		}
		return closed(chat.CauseStreamError, err)
	case *events.ManualLoginReconnect:
		return closed(chat.CauseRestartRequired, fmt.Errorf("%w: restart required after pairing", chat.ErrStream))
	case *events.StreamReplaced:
		return closed(chat.CauseOtherRetryable, fmt.Errorf("%w: stream replaced by another connection", chat.ErrTransport))
	case *events.TemporaryBan:
		return closed(chat.CauseOtherRetryable, fmt.Errorf("%w: temporary ban: %s", chat.ErrTransport, evt.String()))
	case *events.Disconnected:
		return closed(chat.CauseOtherRetryable, fmt.Errorf("%w: disconnected", chat.ErrTransport))
	case *events.ClientOutdated:
		return closed(chat.CauseUnknown, fmt.Errorf("%w: client outdated", chat.ErrTransport))
	default:
		return nil, false
	}
}
