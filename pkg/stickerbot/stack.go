// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package stickerbot

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aiku/wa-stickerbot/pkg/chat"
	"github.com/aiku/wa-stickerbot/pkg/pipeline"
	"github.com/aiku/wa-stickerbot/pkg/router"
)

// sessionStack is the router and pipeline bound to one session.
type sessionStack struct {
	router *router.Router
	cancel context.CancelFunc
	done   chan struct{}
	log    zerolog.Logger
}

func (b *Bot) newStack(ctx context.Context, sess chat.Session) *sessionStack {
	log := b.Log.With().Str("stack", "session").Logger()
	p := pipeline.New(sess, b.converter, b.scratch, b.pipelineConfig(), log)
	r := router.New(sess, sess, p, b.routerConfig(), log)

	ctx, cancel := context.WithCancel(ctx)
	st := &sessionStack{
		router: r,
		cancel: cancel,
		done:   make(chan struct{}),
		log:    log,
	}
	go func() {
		defer close(st.done)
		r.Run(ctx)
	}()
	return st
}

func (st *sessionStack) Dispatch(batch []*chat.InboundEvent) {
	if err := st.router.Enqueue(batch); err != nil {
		evt := st.log.Warn().Err(err).Int("events", len(batch))
		if len(batch) > 0 && batch[0] != nil {
			evt = evt.Str("origin", batch[0].OriginID).Str("message_id", batch[0].ID)
		}
		evt.Msg("Dropped inbound batch")
	}
}

// Stop cancels in-flight work and waits for the router loop to exit.
func (st *sessionStack) Stop() {
	st.router.Stop()
	st.cancel()
	<-st.done
}
