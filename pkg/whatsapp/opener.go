// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package whatsapp

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/aiku/wa-stickerbot/pkg/chat"
)

// Config configures the Opener.
type Config struct {
	// DeviceName is shown in the phone's linked devices list.
	DeviceName string
	// FetchLatestVersion asks the web client endpoint for the current
	// protocol version before every session.
	FetchLatestVersion bool
}

// Opener builds whatsmeow sessions from the credential store.
type Opener struct {
	store      *Store
	cfg        Config
	httpClient *http.Client
	log        zerolog.Logger
}

// NewOpener returns an Opener backed by st.
func NewOpener(st *Store, cfg Config, log zerolog.Logger) *Opener {
	if cfg.DeviceName != "" {
		store.DeviceProps.Os = proto.String(cfg.DeviceName)
	}
	return &Opener{
		store:      st,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        log,
	}
}

// Open loads the stored device (or a blank one) and wraps a new client.
func (o *Opener) Open(ctx context.Context) (chat.Session, error) {
	if o.cfg.FetchLatestVersion {
		ver, err := whatsmeow.GetLatestVersion(ctx, o.httpClient)
		if err != nil {
			return nil, fmt.Errorf("%w: fetch latest version: %w", chat.ErrTransport, err)
		}
		store.SetWAVersion(*ver)
		o.log.Debug().Stringer("version", ver).Msg("Using latest protocol version")
	}

	device, err := o.store.container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("load device: %w", err)
	}
	client := whatsmeow.NewClient(device, waLog.Zerolog(o.log.With().Str("component", "whatsmeow").Logger()))
	// Reconnects are driven by the supervisor.
	client.EnableAutoReconnect = false
	client.DisableLoginAutoReconnect = true
	return newSession(client, o.log), nil
}
