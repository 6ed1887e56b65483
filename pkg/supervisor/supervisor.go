// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package supervisor owns the chat session. It opens sessions, reacts to
// connection updates and reconnects according to a fixed policy, building a
// fresh dispatch stack for every session it opens.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/wa-stickerbot/pkg/chat"
)

// State is the supervisor's connectivity state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateClosing      State = "closing"
	StateTerminated   State = "terminated"
)

// Stack is the per-session message handling stack.
type Stack interface {
	// Dispatch hands an inbound batch to the stack.
	Dispatch(batch []*chat.InboundEvent)
	// Stop shuts the stack down. Batches dispatched afterwards are dropped.
	Stop()
}

// StackBuilder builds the handling stack for a freshly opened session.
type StackBuilder func(sess chat.Session) Stack

// Presenter shows the device enrollment QR code to the user.
type Presenter interface {
	PresentQR(code string)
	ClearQR()
}

// Config tunes the supervisor.
type Config struct {
	// MaxStartupFailures terminates the supervisor after that many
	// consecutive failures to open a session. Zero retries forever.
	MaxStartupFailures int
	// OnStateChange is called on every state transition.
	OnStateChange func(State)
	Clock         Clock
}

type eventKind int

const (
	evConnection eventKind = iota
	evCredentials
	evReconnect
)

type event struct {
	kind eventKind
	gen  uint64
	conn *chat.ConnectionUpdate
}

// Supervisor runs the connection lifecycle. All state is owned by the Run
// goroutine; transport callbacks only post events to it.
type Supervisor struct {
	opener    chat.Opener
	creds     chat.CredentialStore
	build     StackBuilder
	presenter Presenter
	cfg       Config
	log       zerolog.Logger

	events chan event
	done   chan struct{}

	stateMu sync.RWMutex
	state   State

	session         chat.Session
	stack           Stack
	gen             uint64
	timer           Timer
	startupFailures int
	termErr         error
}

// New returns a Supervisor in the Disconnected state.
func New(opener chat.Opener, creds chat.CredentialStore, build StackBuilder, presenter Presenter, cfg Config, log zerolog.Logger) *Supervisor {
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	return &Supervisor{
		opener:    opener,
		creds:     creds,
		build:     build,
		presenter: presenter,
		cfg:       cfg,
		log:       log.With().Str("component", "supervisor").Logger(),
		events:    make(chan event, 32),
		done:      make(chan struct{}),
		state:     StateDisconnected,
	}
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Run connects and keeps the session alive until ctx is done or the
// supervisor terminates. It returns chat.ErrLoggedOut after the device was
// logged out, or the last startup error once the failure limit is hit.
func (s *Supervisor) Run(ctx context.Context) error {
	defer close(s.done)
	s.connect(ctx)
	for s.State() != StateTerminated {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case evt := <-s.events:
			s.handle(ctx, evt)
		}
	}
	return s.termErr
}

func (s *Supervisor) post(evt event) {
	select {
	case s.events <- evt:
	case <-s.done:
	}
}

func (s *Supervisor) setState(state State) {
	s.stateMu.Lock()
	prev := s.state
	s.state = state
	s.stateMu.Unlock()
	if prev == state {
		return
	}
	s.log.Debug().Str("from", string(prev)).Str("to", string(state)).Msg("State changed")
	if s.cfg.OnStateChange != nil {
		s.cfg.OnStateChange(state)
	}
}

func (s *Supervisor) connect(ctx context.Context) {
	s.setState(StateConnecting)
	s.log.Info().Msg("Opening session")

	sess, err := s.opener.Open(ctx)
	if err != nil {
		s.startupFailed(err)
		return
	}

	s.gen++
	gen := s.gen
	stack := s.build(sess)
	sess.On(chat.EventConnectionUpdate, func(evt chat.Event) {
		s.post(event{kind: evConnection, gen: gen, conn: evt.Connection})
	})
	sess.On(chat.EventCredentialsUpdated, func(chat.Event) {
		s.post(event{kind: evCredentials, gen: gen})
	})
	sess.On(chat.EventNotificationBatch, func(evt chat.Event) {
		stack.Dispatch(evt.Batch)
	})
	s.session, s.stack = sess, stack

	if err := sess.Connect(ctx); err != nil {
		s.discard()
		s.startupFailed(err)
	}
}

func (s *Supervisor) startupFailed(err error) {
	s.startupFailures++
	log := s.log.With().Err(err).Int("failures", s.startupFailures).Logger()
	if limit := s.cfg.MaxStartupFailures; limit > 0 && s.startupFailures >= limit {
		log.Error().Msg("Too many consecutive startup failures, giving up")
		s.terminate(fmt.Errorf("%w: %d consecutive startup failures: %w", chat.ErrTransport, s.startupFailures, err))
		return
	}
	delay := StartupDelay(err)
	log.Error().Dur("retry_in", delay).Msg("Failed to start session")
	s.setState(StateDisconnected)
	s.scheduleReconnect(delay)
}

func (s *Supervisor) handle(ctx context.Context, evt event) {
	switch evt.kind {
	case evReconnect:
		s.timer = nil
		s.connect(ctx)
	case evCredentials:
		if evt.gen == s.gen {
			s.log.Debug().Msg("Credentials updated")
		}
	case evConnection:
		if evt.gen != s.gen || s.session == nil || evt.conn == nil {
			s.log.Debug().Uint64("gen", evt.gen).Msg("Dropping event from discarded session")
			return
		}
		s.handleConnection(evt.conn)
	}
}

func (s *Supervisor) handleConnection(u *chat.ConnectionUpdate) {
	if u.QR != "" {
		s.log.Info().Msg("Device enrollment required, presenting QR code")
		s.presenter.PresentQR(u.QR)
		return
	}
	switch u.State {
	case chat.ConnectionConnecting:
		s.setState(StateConnecting)
	case chat.ConnectionOpen:
		s.startupFailures = 0
		s.presenter.ClearQR()
		s.setState(StateOpen)
		s.log.Info().Msg("Session open, ready to receive media")
	case chat.ConnectionClosed:
		s.handleClose(u)
	}
}

func (s *Supervisor) handleClose(u *chat.ConnectionUpdate) {
	decision := Decide(u.Cause)
	s.log.Warn().
		Err(u.Err).
		Stringer("cause", u.Cause).
		Stringer("action", decision.Action).
		Dur("delay", decision.Delay).
		Msg("Connection closed")

	s.setState(StateClosing)
	s.discard()
	s.setState(StateDisconnected)

	if decision.Action == ActionPurge {
		if err := s.creds.Purge(); err != nil {
			s.log.Err(err).Msg("Failed to purge credential store")
		} else {
			s.log.Info().Msg("Credential store purged, link the device again to continue")
		}
		s.terminate(chat.ErrLoggedOut)
		return
	}
	s.scheduleReconnect(decision.Delay)
}

// scheduleReconnect arms the reconnect timer unless one is already pending.
func (s *Supervisor) scheduleReconnect(delay time.Duration) {
	if s.timer != nil {
		s.log.Debug().Msg("Reconnect already scheduled")
		return
	}
	s.log.Info().Dur("delay", delay).Msg("Scheduling reconnect")
	s.timer = s.cfg.Clock.AfterFunc(delay, func() {
		s.post(event{kind: evReconnect})
	})
}

// discard releases the current session's listeners, then stops its stack
// and closes it.
func (s *Supervisor) discard() {
	if s.session == nil {
		return
	}
	s.session.ReleaseListeners()
	s.gen++
	s.stack.Stop()
	if err := s.session.Close(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to close session")
	}
	s.session, s.stack = nil, nil
}

func (s *Supervisor) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Supervisor) terminate(err error) {
	s.stopTimer()
	s.discard()
	s.termErr = err
	s.setState(StateTerminated)
}

func (s *Supervisor) shutdown() {
	s.log.Info().Msg("Shutting down")
	s.stopTimer()
	s.setState(StateClosing)
	s.discard()
	s.setState(StateDisconnected)
}
