// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package pipeline downloads inbound media, converts each item into a
// sticker and delivers it back to the originating conversation. Jobs in a
// batch run concurrently up to a fixed limit and fail independently.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aiku/wa-stickerbot/pkg/chat"
	"github.com/aiku/wa-stickerbot/pkg/scratch"
)

const stickerMimeType = "image/webp"

// Transport is the part of a chat session the pipeline needs.
type Transport interface {
	chat.Sender
	chat.MediaDownloader
}

// Transformer converts the media file at in into a sticker file at out.
type Transformer interface {
	Transform(ctx context.Context, kind chat.MediaKind, in, out string) error
}

// PathAllocator hands out scratch paths.
type PathAllocator interface {
	Path(prefix, ext string) string
}

// Config holds the pipeline limits.
type Config struct {
	ImageTimeout      time.Duration
	VideoTimeout      time.Duration
	MaxConcurrentJobs int
	StickerSize       int
}

// DefaultConfig returns the limits used when none are configured.
func DefaultConfig() Config {
	return Config{
		ImageTimeout:      10 * time.Second,
		VideoTimeout:      30 * time.Second,
		MaxConcurrentJobs: 4,
		StickerSize:       512,
	}
}

// Pipeline runs conversion batches against one chat session.
type Pipeline struct {
	transport   Transport
	transformer Transformer
	scratch     PathAllocator
	cfg         Config
	log         zerolog.Logger
}

// New returns a Pipeline bound to transport.
func New(transport Transport, transformer Transformer, alloc PathAllocator, cfg Config, log zerolog.Logger) *Pipeline {
	def := DefaultConfig()
	if cfg.ImageTimeout <= 0 {
		cfg.ImageTimeout = def.ImageTimeout
	}
	if cfg.VideoTimeout <= 0 {
		cfg.VideoTimeout = def.VideoTimeout
	}
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = def.MaxConcurrentJobs
	}
	if cfg.StickerSize <= 0 {
		cfg.StickerSize = def.StickerSize
	}
	return &Pipeline{
		transport:   transport,
		transformer: transformer,
		scratch:     alloc,
		cfg:         cfg,
		log:         log.With().Str("component", "pipeline").Logger(),
	}
}

// ProcessBatch runs jobs that share one destination origin and reports the
// aggregate outcome to that origin. It returns once every job has settled.
func (p *Pipeline) ProcessBatch(ctx context.Context, jobs []*MediaJob) BatchResult {
	if len(jobs) == 0 {
		return BatchResult{}
	}
	origin := jobs[0].OriginID
	log := p.log.With().Str("origin", origin).Int("jobs", len(jobs)).Logger()

	if err := p.transport.SendText(ctx, origin, progressText(len(jobs))); err != nil {
		log.Warn().Err(err).Msg("Failed to send progress notice")
	}

	var g errgroup.Group
	g.SetLimit(p.cfg.MaxConcurrentJobs)
	for _, job := range jobs {
		g.Go(func() error {
			job.settle(p.runJob(ctx, job))
			return nil
		})
	}
	_ = g.Wait()

	res := tally(jobs)
	log.Info().
		Int("succeeded", res.Succeeded).
		Int("failed", res.Failed).
		Msg("Batch settled")

	if len(jobs) == 1 && jobs[0].Err != nil {
		if err := p.transport.SendText(ctx, origin, apologyText(jobs[0].Err)); err != nil {
			log.Warn().Err(err).Msg("Failed to send failure notice")
		}
	}
	if text, ok := summaryText(res); ok {
		if err := p.transport.SendText(ctx, origin, text); err != nil {
			log.Warn().Err(err).Msg("Failed to send batch summary")
		}
	}
	return res
}

func (p *Pipeline) runJob(ctx context.Context, job *MediaJob) (err error) {
	log := p.log.With().
		Str("job_id", job.ID).
		Str("kind", string(job.Kind)).
		Str("origin", job.OriginID).
		Logger()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in conversion job: %v", r)
		}
		if err != nil {
			log.Err(err).Dur("elapsed", time.Since(start)).Msg("Conversion job failed")
		} else {
			log.Info().Dur("elapsed", time.Since(start)).Msg("Sticker delivered")
		}
	}()
	defer p.cleanup(log, job)

	data, err := p.download(ctx, job)
	if err != nil {
		return err
	}
	job.ScratchInputPath = p.scratch.Path(string(job.Kind), inputExtension(job.Kind, data, job.SourceRef.MimeType))
	if err := os.WriteFile(job.ScratchInputPath, data, 0o600); err != nil {
		return fmt.Errorf("%w: %w", chat.ErrFileSystem, err)
	}
	log.Debug().Int("bytes", len(data)).Str("path", job.ScratchInputPath).Msg("Media persisted")

	job.ScratchOutputPath = p.scratch.Path("sticker", ".webp")
	if err := p.transformer.Transform(ctx, job.Kind, job.ScratchInputPath, job.ScratchOutputPath); err != nil {
		return fmt.Errorf("%w: %w", chat.ErrCodec, err)
	}

	out, err := readOutput(job.ScratchOutputPath)
	if err != nil {
		return err
	}

	sticker := &chat.Sticker{
		Data:     out,
		MimeType: stickerMimeType,
		Width:    p.cfg.StickerSize,
		Height:   p.cfg.StickerSize,
		Animated: job.Kind == chat.MediaVideo,
	}
	if err := p.transport.SendSticker(ctx, job.OriginID, sticker); err != nil {
		return fmt.Errorf("%w: %w", chat.ErrDelivery, err)
	}
	return nil
}

func (p *Pipeline) download(ctx context.Context, job *MediaJob) ([]byte, error) {
	timeout := p.cfg.ImageTimeout
	if job.Kind == chat.MediaVideo {
		timeout = p.cfg.VideoTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	data, err := p.transport.DownloadMedia(ctx, job.SourceRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", chat.ErrDownload, err)
	}
	if len(data) == 0 {
		return nil, chat.ErrEmptyPayload
	}
	return data, nil
}

func (p *Pipeline) cleanup(log zerolog.Logger, job *MediaJob) {
	if err := scratch.Remove(job.ScratchInputPath, job.ScratchOutputPath); err != nil {
		log.Warn().Err(err).Msg("Failed to remove scratch files")
	}
}

// readOutput loads the transformed artifact, treating a missing or empty
// file as a conversion failure.
func readOutput(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: output not produced: %w", chat.ErrCodec, err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: output is empty", chat.ErrCodec)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", chat.ErrFileSystem, err)
	}
	return data, nil
}

// inputExtension picks the scratch input extension from the detected content
// type, falling back to the declared type and then to a per-kind default.
func inputExtension(kind chat.MediaKind, data []byte, declared string) string {
	family := string(kind) + "/"
	if mt := mimetype.Detect(data); strings.HasPrefix(mt.String(), family) && mt.Extension() != "" {
		return mt.Extension()
	}
	if declared != "" {
		if mt := mimetype.Lookup(strings.TrimSpace(strings.SplitN(declared, ";", 2)[0])); mt != nil &&
			strings.HasPrefix(mt.String(), family) && mt.Extension() != "" {
			return mt.Extension()
		}
	}
	if kind == chat.MediaVideo {
		return ".mp4"
	}
	return ".jpg"
}
