// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package sticker

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/rs/zerolog"
	_ "golang.org/x/image/webp"

	"github.com/aiku/wa-stickerbot/pkg/chat"
	"github.com/aiku/wa-stickerbot/pkg/scratch"
)

// PathAllocator hands out scratch paths for intermediate artifacts.
type PathAllocator interface {
	Path(prefix, ext string) string
}

// Options configures a Converter.
type Options struct {
	Size     int
	Encoding Encoding
	Video    VideoOptions
}

// Converter transforms downloaded media files into WebP sticker files.
type Converter struct {
	size    int
	enc     Encoding
	video   VideoOptions
	scratch PathAllocator
	log     zerolog.Logger
}

// NewConverter returns a Converter. Intermediate files produced while
// converting video are allocated from alloc.
func NewConverter(opts Options, alloc PathAllocator, log zerolog.Logger) *Converter {
	size := opts.Size
	if size <= 0 {
		size = DefaultSize
	}
	return &Converter{
		size:    size,
		enc:     opts.Encoding,
		video:   opts.Video.withDefaults(),
		scratch: alloc,
		log:     log.With().Str("component", "sticker").Logger(),
	}
}

// Size returns the sticker edge length in pixels.
func (c *Converter) Size() int {
	return c.size
}

// Transform converts the file at in to a sticker written to out.
func (c *Converter) Transform(ctx context.Context, kind chat.MediaKind, in, out string) error {
	switch kind {
	case chat.MediaImage:
		return c.ConvertImage(ctx, in, out)
	case chat.MediaVideo:
		return c.ConvertVideo(ctx, in, out)
	default:
		return fmt.Errorf("%w: %s", chat.ErrUnsupportedMedia, kind)
	}
}

// ConvertImage fits a still image onto the sticker canvas.
func (c *Converter) ConvertImage(ctx context.Context, in, out string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.Open(in)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	src, format, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	c.log.Debug().
		Str("format", format).
		Int("width", src.Bounds().Dx()).
		Int("height", src.Bounds().Dy()).
		Msg("Decoded image")

	return writeFile(out, func(f *os.File) error {
		return EncodeStatic(f, Fit(src, c.size), c.enc)
	})
}

// ConvertVideo reduces a clip to a short GIF with ffmpeg, then re-encodes
// its frames as an animated sticker.
func (c *Converter) ConvertVideo(ctx context.Context, in, out string) error {
	gifPath := c.scratch.Path("frames", ".gif")
	defer func() {
		if err := scratch.Remove(gifPath); err != nil {
			c.log.Warn().Err(err).Str("path", gifPath).Msg("Failed to remove intermediate GIF")
		}
	}()

	if err := extractGIF(ctx, c.video, in, gifPath); err != nil {
		return err
	}

	f, err := os.Open(gifPath)
	if err != nil {
		return fmt.Errorf("open intermediate gif: %w", err)
	}
	g, err := gif.DecodeAll(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("decode intermediate gif: %w", err)
	}

	frames, delays, err := composeGIF(g, c.video.frameDelay())
	if err != nil {
		return err
	}
	for i, frame := range frames {
		frames[i] = Fit(frame, c.size)
	}
	c.log.Debug().Int("frames", len(frames)).Msg("Extracted video frames")

	if err := ctx.Err(); err != nil {
		return err
	}
	return writeFile(out, func(f *os.File) error {
		return EncodeAnimated(f, frames, delays, c.enc)
	})
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	werr := write(f)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		return err
	}
	return nil
}
