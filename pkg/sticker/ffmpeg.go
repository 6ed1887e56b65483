// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package sticker

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// VideoOptions controls how a clip is reduced to frames.
type VideoOptions struct {
	FFmpegPath  string
	ClipSeconds int
	FPS         int
	FrameWidth  int
}

// DefaultVideoOptions returns the settings used when none are configured.
func DefaultVideoOptions() VideoOptions {
	return VideoOptions{
		FFmpegPath:  "ffmpeg",
		ClipSeconds: 3,
		FPS:         12,
		FrameWidth:  256,
	}
}

func (o VideoOptions) withDefaults() VideoOptions {
	def := DefaultVideoOptions()
	if o.FFmpegPath == "" {
		o.FFmpegPath = def.FFmpegPath
	}
	if o.ClipSeconds <= 0 {
		o.ClipSeconds = def.ClipSeconds
	}
	if o.FPS <= 0 {
		o.FPS = def.FPS
	}
	if o.FrameWidth <= 0 {
		o.FrameWidth = def.FrameWidth
	}
	return o
}

// frameDelay is the per-frame display time in milliseconds.
func (o VideoOptions) frameDelay() int {
	return max(1, 1000/o.FPS)
}

func (o VideoOptions) ffmpegArgs(in, out string) []string {
	filter := fmt.Sprintf(
		"fps=%d,scale=%d:-1:flags=lanczos,split[s0][s1];[s0]palettegen[p];[s1][p]paletteuse",
		o.FPS, o.FrameWidth,
	)
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-t", strconv.Itoa(o.ClipSeconds),
		"-i", in,
		"-an",
		"-vf", filter,
		"-loop", "0",
		out,
	}
}

// extractGIF trims the clip at in and writes it as a palette-optimized GIF
// to out.
func extractGIF(ctx context.Context, opts VideoOptions, in, out string) error {
	cmd := exec.CommandContext(ctx, opts.FFmpegPath, opts.ffmpegArgs(in, out)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("ffmpeg: %w: %s", err, msg)
		}
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}
