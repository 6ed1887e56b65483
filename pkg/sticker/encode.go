// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package sticker

import (
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/HugoSmits86/nativewebp"
	"github.com/chai2010/webp"
	"golang.org/x/image/draw"
)

// DefaultSize is the edge length of the sticker canvas.
const DefaultSize = 512

// DefaultQuality is the lossy WebP quality factor.
const DefaultQuality = 80

// disposeToBackground clears the frame area before the next frame is drawn,
// so transparent pixels never show the previous frame.
const disposeToBackground = 1

// Fit scales src to fit inside a size x size transparent canvas, preserving
// the aspect ratio and centering the result.
func Fit(src image.Image, size int) *image.NRGBA {
	canvas := image.NewNRGBA(image.Rect(0, 0, size, size))
	b := src.Bounds()
	if b.Empty() {
		return canvas
	}
	w, h := b.Dx(), b.Dy()
	nw, nh := size, size
	if w > h {
		nh = max(1, (h*size+w/2)/w)
	} else if h > w {
		nw = max(1, (w*size+h/2)/h)
	}
	offX, offY := (size-nw)/2, (size-nh)/2
	target := image.Rect(offX, offY, offX+nw, offY+nh)
	draw.CatmullRom.Scale(canvas, target, src, b, draw.Src, nil)
	return canvas
}

// Encoding selects the WebP flavor written for stickers.
type Encoding struct {
	// Quality is the lossy quality factor, 1 to 100.
	Quality float32
	// Lossless writes VP8L instead. Quality is ignored.
	Lossless bool
}

func (e Encoding) quality() float32 {
	if e.Quality <= 0 || e.Quality > 100 {
		return DefaultQuality
	}
	return e.Quality
}

// EncodeStatic writes img as a single-frame WebP.
func EncodeStatic(w io.Writer, img image.Image, enc Encoding) error {
	var err error
	if enc.Lossless {
		err = nativewebp.Encode(w, img, nil)
	} else {
		err = webp.Encode(w, img, &webp.Options{Quality: enc.quality()})
	}
	if err != nil {
		return fmt.Errorf("encode webp: %w", err)
	}
	return nil
}

// EncodeAnimated writes frames as a looping animated WebP. delays holds the
// display time of each frame in milliseconds.
func EncodeAnimated(w io.Writer, frames []image.Image, delays []int, enc Encoding) error {
	if len(frames) == 0 {
		return errors.New("no frames to encode")
	}
	if len(delays) != len(frames) {
		return fmt.Errorf("got %d delays for %d frames", len(delays), len(frames))
	}
	durations := make([]uint, len(frames))
	for i, d := range delays {
		durations[i] = uint(max(d, 1))
	}
	if !enc.Lossless {
		if err := encodeLossyAnimation(w, frames, durations, enc.quality()); err != nil {
			return fmt.Errorf("encode animated webp: %w", err)
		}
		return nil
	}
	disposals := make([]uint, len(frames))
	for i := range disposals {
		disposals[i] = disposeToBackground
	}
	ani := &nativewebp.Animation{
		Images:          frames,
		Durations:       durations,
		Disposals:       disposals,
		LoopCount:       0,
		BackgroundColor: 0x00000000,
	}
	if err := nativewebp.EncodeAll(w, ani, nil); err != nil {
		return fmt.Errorf("encode animated webp: %w", err)
	}
	return nil
}
