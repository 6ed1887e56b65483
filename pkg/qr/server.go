// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package qr

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"
)

const pngSize = 320

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="pt-BR">
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="5">
<title>Bot de Figurinhas</title>
</head>
<body style="font-family: sans-serif; text-align: center">
<h1>Bot de Figurinhas</h1>
<p>Estado: {{.State}}</p>
{{if .PendingQR}}<img src="/qr.png?t={{.Stamp}}" alt="QR code" width="320" height="320">
<p>Escaneie com o WhatsApp em Aparelhos conectados.</p>
{{else}}<p>Nenhum QR code pendente.</p>{{end}}
</body>
</html>
`))

// Status is the JSON body of GET /status.
type Status struct {
	State     string `json:"state"`
	PendingQR bool   `json:"pending_qr"`
}

// Server serves the current enrollment code over HTTP.
type Server struct {
	addr string
	log  zerolog.Logger

	mu      sync.RWMutex
	code    string
	state   string
	updated time.Time

	server *http.Server
}

// NewServer returns a Server that will listen on addr.
func NewServer(addr string, log zerolog.Logger) *Server {
	s := &Server{
		addr:  addr,
		log:   log.With().Str("component", "qr_http").Logger(),
		state: "disconnected",
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handlePage)
	mux.HandleFunc("GET /qr.png", s.handlePNG)
	mux.HandleFunc("GET /status", s.handleStatus)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves in the background until Stop is called.
func (s *Server) Start() {
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("Starting QR web page")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Err(err).Msg("QR web page server error")
		}
	}()
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) PresentQR(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.code = code
	s.updated = time.Now()
}

func (s *Server) ClearQR() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.code = ""
	s.updated = time.Now()
}

// SetState records the connection state shown on the page.
func (s *Server) SetState(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Server) snapshot() (code, state string, updated time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.code, s.state, s.updated
}

func (s *Server) handlePage(w http.ResponseWriter, _ *http.Request) {
	code, state, updated := s.snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	err := pageTemplate.Execute(w, struct {
		State     string
		PendingQR bool
		Stamp     int64
	}{state, code != "", updated.UnixNano()})
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to render QR page")
	}
}

func (s *Server) handlePNG(w http.ResponseWriter, _ *http.Request) {
	code, _, _ := s.snapshot()
	if code == "" {
		http.Error(w, "no QR code pending", http.StatusNotFound)
		return
	}
	png, err := qrcode.Encode(code, qrcode.Medium, pngSize)
	if err != nil {
		s.log.Err(err).Msg("Failed to encode QR code")
		http.Error(w, "failed to encode QR code", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(png); err != nil {
		s.log.Warn().Err(err).Msg("Failed to write QR code")
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	code, state, _ := s.snapshot()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(Status{State: state, PendingQR: code != ""}); err != nil {
		s.log.Warn().Err(err).Msg("Failed to write status response")
	}
}
