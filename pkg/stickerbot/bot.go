// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package stickerbot wires the configuration, the WhatsApp transport and the
// conversion stack together.
package stickerbot

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/wa-stickerbot/pkg/chat"
	"github.com/aiku/wa-stickerbot/pkg/pipeline"
	"github.com/aiku/wa-stickerbot/pkg/qr"
	"github.com/aiku/wa-stickerbot/pkg/router"
	"github.com/aiku/wa-stickerbot/pkg/scratch"
	"github.com/aiku/wa-stickerbot/pkg/sticker"
	"github.com/aiku/wa-stickerbot/pkg/supervisor"
	"github.com/aiku/wa-stickerbot/pkg/whatsapp"
)

// Bot is the sticker bot process.
type Bot struct {
	Config *Config
	Log    zerolog.Logger
	// QROutput receives the terminal QR code.
	QROutput io.Writer

	scratch   *scratch.Manager
	converter *sticker.Converter
}

// New returns a Bot for cfg.
func New(cfg *Config, log zerolog.Logger, qrOut io.Writer) *Bot {
	return &Bot{Config: cfg, Log: log, QROutput: qrOut}
}

// Run starts the bot and blocks until ctx is done or the session is
// permanently lost.
func (b *Bot) Run(ctx context.Context) error {
	var err error
	b.scratch, err = scratch.New(b.Config.ScratchDir)
	if err != nil {
		return err
	}
	b.converter = sticker.NewConverter(sticker.Options{
		Size: b.Config.Sticker.Size,
		Encoding: sticker.Encoding{
			Quality:  float32(b.Config.Sticker.Quality),
			Lossless: b.Config.Sticker.Lossless,
		},
		Video: sticker.VideoOptions{
			FFmpegPath:  b.Config.Video.FFmpegPath,
			ClipSeconds: b.Config.Video.ClipSeconds,
			FPS:         b.Config.Video.FPS,
			FrameWidth:  b.Config.Video.FrameWidth,
		},
	}, b.scratch, b.Log)

	store, err := whatsapp.OpenStore(ctx, b.Config.CredentialDir, b.Log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			b.Log.Warn().Err(err).Msg("Failed to close credential store")
		}
	}()
	opener := whatsapp.NewOpener(store, whatsapp.Config{
		DeviceName:         b.Config.DeviceName,
		FetchLatestVersion: b.Config.FetchLatestVersion,
	}, b.Log)

	var presenters qr.Multi
	if b.Config.QR.Terminal {
		presenters = append(presenters, qr.NewTerminal(b.QROutput, b.Log))
	}
	supCfg := supervisor.Config{MaxStartupFailures: b.Config.MaxStartupFailures}
	if b.Config.QR.HTTPAddr != "" {
		srv := qr.NewServer(b.Config.QR.HTTPAddr, b.Log)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				b.Log.Warn().Err(err).Msg("Failed to stop QR web page")
			}
		}()
		presenters = append(presenters, srv)
		supCfg.OnStateChange = func(state supervisor.State) {
			srv.SetState(string(state))
		}
	}

	b.Log.Info().
		Str("target_group", b.Config.TargetGroup).
		Str("scratch_dir", b.scratch.Dir()).
		Str("credentials", store.Path()).
		Msg("Starting sticker bot")

	build := func(sess chat.Session) supervisor.Stack {
		return b.newStack(ctx, sess)
	}
	sup := supervisor.New(opener, store, build, presenters, supCfg, b.Log)
	return sup.Run(ctx)
}

// Logout removes the stored credentials without connecting.
func (b *Bot) Logout(ctx context.Context) error {
	store, err := whatsapp.OpenStore(ctx, b.Config.CredentialDir, b.Log)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Purge(); err != nil {
		return fmt.Errorf("purge credentials: %w", err)
	}
	return nil
}

func (b *Bot) pipelineConfig() pipeline.Config {
	return pipeline.Config{
		ImageTimeout:      b.Config.Downloads.ImageTimeout,
		VideoTimeout:      b.Config.Downloads.VideoTimeout,
		MaxConcurrentJobs: b.Config.MaxConcurrentJobs,
		StickerSize:       b.converter.Size(),
	}
}

func (b *Bot) routerConfig() router.Config {
	return router.Config{
		TargetGroup:  b.Config.TargetGroup,
		IsSelf:       router.PrefixSelfFilter(b.Config.SelfMessagePrefix),
		QueueSize:    b.Config.QueueSize,
		GroupNameTTL: b.Config.GroupNameTTL,
	}
}
