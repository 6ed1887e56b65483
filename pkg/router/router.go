// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package router filters inbound notification batches and dispatches each
// accepted event to the conversion pipeline or to a command reply. Batches
// are handled one at a time, in arrival order.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/wa-stickerbot/pkg/chat"
	"github.com/aiku/wa-stickerbot/pkg/pipeline"
)

// DefaultSelfPrefix is the message ID prefix of messages this client sends.
const DefaultSelfPrefix = "3EB0"

var (
	ErrStopped   = errors.New("router stopped")
	ErrQueueFull = errors.New("router queue full")
)

// BatchProcessor converts a batch of media jobs.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, jobs []*pipeline.MediaJob) pipeline.BatchResult
}

// SelfFilter reports whether an event is an echo of the bot's own message.
type SelfFilter func(evt *chat.InboundEvent) bool

// PrefixSelfFilter matches events sent from this account whose ID starts
// with prefix. An empty prefix matches every event sent from this account.
func PrefixSelfFilter(prefix string) SelfFilter {
	return func(evt *chat.InboundEvent) bool {
		return evt.FromMe && strings.HasPrefix(evt.ID, prefix)
	}
}

// Config configures a Router.
type Config struct {
	// TargetGroup is the display name of the only group served. Empty
	// accepts every non-broadcast origin.
	TargetGroup  string
	IsSelf       SelfFilter
	QueueSize    int
	GroupNameTTL time.Duration
}

// Router is bound to a single chat session.
type Router struct {
	sender   chat.Sender
	pipeline BatchProcessor
	groups   *groupNames
	cfg      Config
	log      zerolog.Logger

	queue    chan []*chat.InboundEvent
	stopOnce sync.Once
	stopChan chan struct{}
}

// New returns a Router. Call Run to start consuming enqueued batches.
func New(sender chat.Sender, groups chat.GroupDirectory, proc BatchProcessor, cfg Config, log zerolog.Logger) *Router {
	if cfg.IsSelf == nil {
		cfg.IsSelf = PrefixSelfFilter(DefaultSelfPrefix)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	return &Router{
		sender:   sender,
		pipeline: proc,
		groups:   newGroupNames(groups, cfg.GroupNameTTL),
		cfg:      cfg,
		log:      log.With().Str("component", "router").Logger(),
		queue:    make(chan []*chat.InboundEvent, cfg.QueueSize),
		stopChan: make(chan struct{}),
	}
}

// Enqueue hands a batch to the dispatch loop without blocking. The caller is
// the transport's event goroutine, so a full queue drops the batch instead of
// stalling connection events.
func (r *Router) Enqueue(batch []*chat.InboundEvent) error {
	if len(batch) == 0 {
		return nil
	}
	select {
	case <-r.stopChan:
		return ErrStopped
	default:
	}
	select {
	case r.queue <- batch:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run handles enqueued batches sequentially until ctx is done or Stop is
// called.
func (r *Router) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopChan:
			return
		case batch := <-r.queue:
			r.safeHandle(ctx, batch)
		}
	}
}

// Stop ends the dispatch loop. Batches still queued are dropped.
func (r *Router) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
	})
}

func (r *Router) safeHandle(ctx context.Context, batch []*chat.InboundEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().
				Str("panic", fmt.Sprint(rec)).
				Int("events", len(batch)).
				Msg("Panic while handling notification batch")
		}
	}()
	r.HandleBatch(ctx, batch)
}

// HandleBatch handles every event in batch, waiting for any conversions
// it starts.
func (r *Router) HandleBatch(ctx context.Context, batch []*chat.InboundEvent) {
	for _, evt := range batch {
		if ctx.Err() != nil {
			return
		}
		r.handleEvent(ctx, evt)
	}
}

func (r *Router) handleEvent(ctx context.Context, evt *chat.InboundEvent) {
	if evt == nil {
		return
	}
	log := r.log.With().
		Str("message_id", evt.ID).
		Str("origin", evt.OriginID).
		Logger()

	if !r.accept(ctx, log, evt) {
		return
	}

	content := evt.Content
	if ref := content.MediaContent(); ref != nil {
		log.Info().Str("kind", string(ref.Kind)).Str("content", string(content.Kind)).Msg("Media received")
		r.pipeline.ProcessBatch(ctx, []*pipeline.MediaJob{pipeline.NewJob(ref, evt.OriginID)})
		return
	}

	switch content.Kind {
	case chat.KindText, chat.KindExtendedText:
		name, reply := commandReply(content.Text)
		log.Info().Str("command", name).Msg("Text command received")
		if err := r.sender.SendText(ctx, evt.OriginID, reply); err != nil {
			log.Err(err).Str("command", name).Msg("Failed to send reply")
		}
	case chat.KindContext:
		log.Debug().Str("raw_type", content.RawType).Msg("Ignoring context notification")
	default:
		log.Debug().
			Str("kind", string(content.Kind)).
			Str("raw_type", content.RawType).
			Msg("Ignoring unsupported message kind")
	}
}

func (r *Router) accept(ctx context.Context, log zerolog.Logger, evt *chat.InboundEvent) bool {
	if r.cfg.IsSelf(evt) {
		log.Debug().Msg("Ignoring own message")
		return false
	}
	if !evt.HasPayload() {
		log.Debug().Msg("Ignoring message without content")
		return false
	}
	if evt.IsBroadcastOrigin {
		log.Debug().Msg("Ignoring broadcast or newsletter message")
		return false
	}
	if r.cfg.TargetGroup == "" {
		return true
	}
	if !evt.IsGroupOrigin {
		log.Debug().Msg("Ignoring message outside groups")
		return false
	}
	name, err := r.groups.lookup(ctx, evt.OriginID)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to resolve group name")
		return false
	}
	if !strings.EqualFold(name, r.cfg.TargetGroup) {
		log.Debug().Str("group", name).Msg("Ignoring message from other group")
		return false
	}
	return true
}
