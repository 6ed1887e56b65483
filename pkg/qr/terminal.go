// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package qr shows the device enrollment QR code, on the terminal and
// optionally on a small web page.
package qr

import (
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"
)

// Presenter receives enrollment codes.
type Presenter interface {
	PresentQR(code string)
	ClearQR()
}

// Terminal prints QR codes as half-block text.
type Terminal struct {
	out io.Writer
	log zerolog.Logger

	mu   sync.Mutex
	last string
}

// NewTerminal returns a Terminal writing to out.
func NewTerminal(out io.Writer, log zerolog.Logger) *Terminal {
	return &Terminal{out: out, log: log.With().Str("component", "qr").Logger()}
}

// PresentQR prints code unless it is the one already shown.
func (t *Terminal) PresentQR(code string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if code == t.last {
		return
	}
	q, err := qrcode.New(code, qrcode.Low)
	if err != nil {
		t.log.Err(err).Msg("Failed to render QR code")
		return
	}
	t.last = code
	fmt.Fprintln(t.out, "Scan this QR code with WhatsApp (Linked devices > Link a device):")
	fmt.Fprintln(t.out, q.ToSmallString(false))
}

// ClearQR forgets the last printed code.
func (t *Terminal) ClearQR() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = ""
}

// Multi fans codes out to several presenters.
type Multi []Presenter

func (m Multi) PresentQR(code string) {
	for _, p := range m {
		p.PresentQR(code)
	}
}

func (m Multi) ClearQR() {
	for _, p := range m {
		p.ClearQR()
	}
}
