// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package sticker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"golang.org/x/image/webp"

	"github.com/aiku/wa-stickerbot/pkg/chat"
	"github.com/aiku/wa-stickerbot/pkg/scratch"
)

func solid(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestFit(t *testing.T) {
	t.Parallel()
	red := color.NRGBA{R: 255, A: 255}

	tests := []struct {
		name    string
		w, h    int
		inside  image.Point
		outside []image.Point
	}{
		{"landscape", 800, 400, image.Pt(256, 256), []image.Point{{0, 0}, {256, 100}, {256, 400}}},
		{"portrait", 300, 600, image.Pt(256, 256), []image.Point{{0, 256}, {100, 256}, {400, 256}}},
		{"square upscaled", 64, 64, image.Pt(5, 5), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Fit(solid(tt.w, tt.h, red), DefaultSize)
			if got.Bounds() != image.Rect(0, 0, DefaultSize, DefaultSize) {
				t.Fatalf("bounds: got %v", got.Bounds())
			}
			if a := got.NRGBAAt(tt.inside.X, tt.inside.Y).A; a != 255 {
				t.Errorf("pixel %v alpha: got %d, want 255", tt.inside, a)
			}
			for _, p := range tt.outside {
				if a := got.NRGBAAt(p.X, p.Y).A; a != 0 {
					t.Errorf("pixel %v alpha: got %d, want transparent", p, a)
				}
			}
		})
	}
}

func TestFit_EmptySource(t *testing.T) {
	t.Parallel()
	got := Fit(image.NewNRGBA(image.Rect(0, 0, 0, 0)), 16)
	if got.Bounds().Dx() != 16 || got.NRGBAAt(8, 8).A != 0 {
		t.Error("empty source should yield a blank canvas")
	}
}

// chunks lists the fourCCs of the top-level chunks of a WebP file, and the
// payloads of those chunks keyed by fourCC.
func chunks(t *testing.T, data []byte) ([]string, map[string][][]byte) {
	t.Helper()
	if len(data) < 12 || !bytes.HasPrefix(data, []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WEBP")) {
		t.Fatal("output is not a RIFF WEBP container")
	}
	if got := int(binary.LittleEndian.Uint32(data[4:8])); got != len(data)-8 {
		t.Fatalf("RIFF size: got %d, want %d", got, len(data)-8)
	}
	return walkChunks(t, data[12:])
}

func walkChunks(t *testing.T, data []byte) ([]string, map[string][][]byte) {
	t.Helper()
	var names []string
	payloads := make(map[string][][]byte)
	for len(data) >= 8 {
		name := string(data[:4])
		size := int(binary.LittleEndian.Uint32(data[4:8]))
		if 8+size > len(data) {
			t.Fatalf("chunk %q overruns the file", name)
		}
		names = append(names, name)
		payloads[name] = append(payloads[name], data[8:8+size])
		data = data[min(8+size+size&1, len(data)):]
	}
	return names, payloads
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func TestEncodeStatic(t *testing.T) {
	t.Parallel()
	img := Fit(solid(300, 200, color.NRGBA{G: 180, A: 255}), 64)

	tests := []struct {
		name    string
		enc     Encoding
		want    string
		notWant string
	}{
		{"lossy default quality", Encoding{}, "VP8 ", "VP8L"},
		{"lossy quality 50", Encoding{Quality: 50}, "VP8 ", "VP8L"},
		{"lossless", Encoding{Lossless: true}, "VP8L", "VP8 "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			if err := EncodeStatic(&buf, img, tt.enc); err != nil {
				t.Fatalf("EncodeStatic: %v", err)
			}
			names, _ := chunks(t, buf.Bytes())
			if !contains(names, tt.want) || contains(names, tt.notWant) {
				t.Errorf("chunks: got %q, want %q without %q", names, tt.want, tt.notWant)
			}
			if contains(names, "ANIM") {
				t.Error("static sticker has an ANIM chunk")
			}
			decoded, err := webp.Decode(bytes.NewReader(buf.Bytes()))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if decoded.Bounds().Dx() != 64 {
				t.Errorf("decoded size: got %v", decoded.Bounds())
			}
		})
	}
}

func TestEncoding_Quality(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want float32
	}{
		{0, DefaultQuality},
		{-5, DefaultQuality},
		{101, DefaultQuality},
		{1, 1},
		{65, 65},
		{100, 100},
	}
	for _, tt := range tests {
		if got := (Encoding{Quality: tt.in}).quality(); got != tt.want {
			t.Errorf("quality(%v): got %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestEncodeAnimated_Validation(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if err := EncodeAnimated(&buf, nil, nil, Encoding{}); err == nil {
		t.Error("expected error for zero frames")
	}
	frames := []image.Image{solid(4, 4, color.White)}
	if err := EncodeAnimated(&buf, frames, []int{10, 20}, Encoding{}); err == nil {
		t.Error("expected error for mismatched delays")
	}
	mixed := []image.Image{solid(4, 4, color.White), solid(8, 8, color.White)}
	if err := EncodeAnimated(&buf, mixed, []int{10, 20}, Encoding{}); err == nil {
		t.Error("expected error for frames of different sizes")
	}
}

func TestEncodeAnimated_LossyContainer(t *testing.T) {
	t.Parallel()
	frames := []image.Image{
		Fit(solid(16, 8, color.NRGBA{R: 255, A: 255}), 16),
		Fit(solid(16, 8, color.NRGBA{B: 255, A: 255}), 16),
	}
	var buf bytes.Buffer
	if err := EncodeAnimated(&buf, frames, []int{100, 0}, Encoding{Quality: 80}); err != nil {
		t.Fatalf("EncodeAnimated: %v", err)
	}
	names, payloads := chunks(t, buf.Bytes())
	want := []string{"VP8X", "ANIM", "ANMF", "ANMF"}
	if len(names) != len(want) {
		t.Fatalf("chunks: got %q, want %q", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("chunks: got %q, want %q", names, want)
		}
	}

	vp8x := payloads["VP8X"][0]
	if vp8x[0]&vp8xAnimation == 0 || vp8x[0]&vp8xAlpha == 0 {
		t.Errorf("VP8X flags: got %#x", vp8x[0])
	}
	if w := int(vp8x[4]) | int(vp8x[5])<<8 | int(vp8x[6])<<16; w != 15 {
		t.Errorf("canvas width minus one: got %d", w)
	}
	if loop := binary.LittleEndian.Uint16(payloads["ANIM"][0][4:6]); loop != 0 {
		t.Errorf("loop count: got %d, want 0 (forever)", loop)
	}

	wantDurations := []int{100, 1}
	for i, anmf := range payloads["ANMF"] {
		if d := int(anmf[12]) | int(anmf[13])<<8 | int(anmf[14])<<16; d != wantDurations[i] {
			t.Errorf("frame %d duration: got %d, want %d", i, d, wantDurations[i])
		}
		if anmf[15] != anmfFlags {
			t.Errorf("frame %d flags: got %#x", i, anmf[15])
		}
		inner, _ := walkChunks(t, anmf[16:])
		if !contains(inner, "VP8 ") || contains(inner, "VP8L") {
			t.Errorf("frame %d bitstream: got %q, want lossy VP8", i, inner)
		}
	}
}

func TestEncodeAnimated_Lossless(t *testing.T) {
	t.Parallel()
	frames := []image.Image{
		solid(8, 8, color.NRGBA{R: 255, A: 255}),
		solid(8, 8, color.NRGBA{B: 255, A: 255}),
	}
	var buf bytes.Buffer
	if err := EncodeAnimated(&buf, frames, []int{100, 0}, Encoding{Lossless: true}); err != nil {
		t.Fatalf("EncodeAnimated: %v", err)
	}
	data := buf.Bytes()
	for _, chunk := range []string{"ANIM", "ANMF", "VP8L"} {
		if !bytes.Contains(data, []byte(chunk)) {
			t.Errorf("missing %s chunk", chunk)
		}
	}
}

func TestFrameBitstream(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if err := EncodeStatic(&buf, solid(8, 8, color.NRGBA{R: 10, A: 255}), Encoding{}); err != nil {
		t.Fatal(err)
	}
	data, err := frameBitstream(buf.Bytes())
	if err != nil {
		t.Fatalf("frameBitstream: %v", err)
	}
	inner, _ := walkChunks(t, data)
	if !contains(inner, "VP8 ") {
		t.Errorf("bitstream chunks: got %q", inner)
	}

	bad := map[string][]byte{
		"short":     []byte("RIFF"),
		"not webp":  append([]byte("RIFF\x04\x00\x00\x00WAVE"), make([]byte, 8)...),
		"no image":  append([]byte("RIFF\x12\x00\x00\x00WEBPEXIF\x02\x00\x00\x00"), 0, 0),
		"truncated": []byte("RIFF\x10\x00\x00\x00WEBPVP8 \xff\x00\x00\x00"),
	}
	for name, in := range bad {
		if _, err := frameBitstream(in); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestComposeGIF(t *testing.T) {
	t.Parallel()
	pal := color.Palette{color.Transparent, color.NRGBA{R: 255, A: 255}, color.NRGBA{G: 255, A: 255}}

	// Frame 0 paints the whole screen red, frame 1 paints a green patch and
	// is disposed to background, frame 2 is an empty patch elsewhere.
	f0 := image.NewPaletted(image.Rect(0, 0, 4, 4), pal)
	for i := range f0.Pix {
		f0.Pix[i] = 1
	}
	f1 := image.NewPaletted(image.Rect(0, 0, 2, 2), pal)
	for i := range f1.Pix {
		f1.Pix[i] = 2
	}
	f2 := image.NewPaletted(image.Rect(3, 3, 4, 4), pal)

	g := &gif.GIF{
		Image:    []*image.Paletted{f0, f1, f2},
		Delay:    []int{5, 0, 10},
		Disposal: []byte{gif.DisposalNone, gif.DisposalBackground, gif.DisposalNone},
		Config:   image.Config{Width: 4, Height: 4},
	}
	frames, delays, err := composeGIF(g, 83)
	if err != nil {
		t.Fatalf("composeGIF: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("frames: got %d, want 3", len(frames))
	}
	wantDelays := []int{50, 83, 100}
	for i, d := range delays {
		if d != wantDelays[i] {
			t.Errorf("delay %d: got %d, want %d", i, d, wantDelays[i])
		}
	}

	at := func(i, x, y int) color.NRGBA {
		return frames[i].(*image.NRGBA).NRGBAAt(x, y)
	}
	if c := at(1, 0, 0); c.G != 255 || c.R != 0 {
		t.Errorf("frame 1 patch: got %v, want green", c)
	}
	if c := at(1, 3, 3); c.R != 255 {
		t.Errorf("frame 1 background: got %v, want red", c)
	}
	if c := at(2, 0, 0); c.A != 0 {
		t.Errorf("frame 2 disposed area: got %v, want transparent", c)
	}
	if c := at(2, 3, 3); c.R != 255 {
		t.Errorf("frame 2 untouched area: got %v, want red", c)
	}
}

func TestComposeGIF_NoFrames(t *testing.T) {
	t.Parallel()
	if _, _, err := composeGIF(&gif.GIF{}, 10); err == nil {
		t.Error("expected error for empty gif")
	}
}

func newTestConverter(t *testing.T) (*Converter, *scratch.Manager) {
	t.Helper()
	m, err := scratch.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return NewConverter(Options{}, m, zerolog.Nop()), m
}

func TestConvertImage(t *testing.T) {
	t.Parallel()

	encoders := map[string]func(f *os.File, img image.Image) error{
		".jpg": func(f *os.File, img image.Image) error { return jpeg.Encode(f, img, nil) },
		".png": func(f *os.File, img image.Image) error { return png.Encode(f, img) },
	}
	for ext, encode := range encoders {
		t.Run(ext, func(t *testing.T) {
			t.Parallel()
			c, m := newTestConverter(t)
			in := m.Path("input", ext)
			out := m.Path("output", ".webp")

			f, err := os.Create(in)
			if err != nil {
				t.Fatal(err)
			}
			if err := encode(f, solid(640, 320, color.NRGBA{B: 200, A: 255})); err != nil {
				t.Fatal(err)
			}
			f.Close()

			if err := c.Transform(context.Background(), chat.MediaImage, in, out); err != nil {
				t.Fatalf("Transform: %v", err)
			}
			rf, err := os.Open(out)
			if err != nil {
				t.Fatal(err)
			}
			defer rf.Close()
			img, err := webp.Decode(rf)
			if err != nil {
				t.Fatalf("output is not valid webp: %v", err)
			}
			if b := img.Bounds(); b.Dx() != DefaultSize || b.Dy() != DefaultSize {
				t.Errorf("output size: got %v", b)
			}
			if _, _, _, a := img.At(0, 0).RGBA(); a != 0 {
				t.Error("letterbox area should be transparent")
			}
		})
	}
}

func TestConvertImage_SquareJPEG(t *testing.T) {
	t.Parallel()
	c, m := newTestConverter(t)
	in := m.Path("input", ".jpg")
	out := m.Path("output", ".webp")

	f, err := os.Create(in)
	if err != nil {
		t.Fatal(err)
	}
	if err := jpeg.Encode(f, solid(512, 512, color.NRGBA{R: 200, G: 120, B: 40, A: 255}), nil); err != nil {
		t.Fatal(err)
	}
	f.Close()

	if err := c.Transform(context.Background(), chat.MediaImage, in, out); err != nil {
		t.Fatalf("Transform: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	names, _ := chunks(t, data)
	if contains(names, "ANIM") || contains(names, "ANMF") {
		t.Errorf("single image produced an animation: %q", names)
	}
	if !contains(names, "VP8 ") {
		t.Errorf("chunks: got %q, want a lossy VP8 frame", names)
	}
	img, err := webp.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not valid webp: %v", err)
	}
	if b := img.Bounds(); b.Dx() != DefaultSize || b.Dy() != DefaultSize {
		t.Errorf("output size: got %v", b)
	}
	for _, p := range []image.Point{{0, 0}, {256, 256}, {511, 511}} {
		if _, _, _, a := img.At(p.X, p.Y).RGBA(); a != 0xffff {
			t.Errorf("pixel %v should be opaque, alpha %d", p, a)
		}
	}
}

func TestConvertImage_Errors(t *testing.T) {
	t.Parallel()
	c, m := newTestConverter(t)

	garbage := m.Path("input", ".jpg")
	if err := os.WriteFile(garbage, []byte("not an image"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := c.ConvertImage(context.Background(), garbage, m.Path("output", ".webp")); err == nil {
		t.Error("expected decode error")
	}
	if err := c.ConvertImage(context.Background(), filepath.Join(m.Dir(), "missing.jpg"), m.Path("output", ".webp")); err == nil {
		t.Error("expected open error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.ConvertImage(ctx, garbage, m.Path("output", ".webp")); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled context: got %v", err)
	}
}

func TestTransform_UnsupportedKind(t *testing.T) {
	t.Parallel()
	c, m := newTestConverter(t)
	err := c.Transform(context.Background(), chat.MediaKind("audio"), m.Path("in", ""), m.Path("out", ""))
	if !errors.Is(err, chat.ErrUnsupportedMedia) {
		t.Errorf("got %v, want ErrUnsupportedMedia", err)
	}
}

func TestVideoOptions_Args(t *testing.T) {
	t.Parallel()
	opts := VideoOptions{FPS: 10}.withDefaults()
	if opts.FFmpegPath != "ffmpeg" || opts.ClipSeconds != 3 || opts.FrameWidth != 256 || opts.FPS != 10 {
		t.Errorf("defaults not applied: %+v", opts)
	}
	if opts.frameDelay() != 100 {
		t.Errorf("frameDelay: got %d", opts.frameDelay())
	}
	args := opts.ffmpegArgs("in.mp4", "out.gif")
	if args[len(args)-1] != "out.gif" {
		t.Errorf("output path should be last: %v", args)
	}
	found := false
	for i, a := range args {
		if a == "-t" && args[i+1] == "3" {
			found = true
		}
	}
	if !found {
		t.Errorf("clip duration missing: %v", args)
	}
}

func TestConvertVideo(t *testing.T) {
	t.Parallel()
	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not available")
	}
	m, err := scratch.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	in := m.Path("input", ".mp4")
	gen := exec.Command(ffmpeg, "-hide_banner", "-loglevel", "error", "-y",
		"-f", "lavfi", "-i", "testsrc=duration=5:size=320x240:rate=25",
		"-pix_fmt", "yuv420p", in)
	if out, err := gen.CombinedOutput(); err != nil {
		t.Skipf("cannot generate test clip: %v: %s", err, out)
	}

	c := NewConverter(Options{Video: VideoOptions{FFmpegPath: ffmpeg, ClipSeconds: 1, FPS: 5}}, m, zerolog.Nop())
	out := m.Path("output", ".webp")
	if err := c.Transform(context.Background(), chat.MediaVideo, in, out); err != nil {
		t.Fatalf("Transform: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte("ANMF")) {
		t.Error("output is not an animated webp")
	}
	if bytes.Contains(data, []byte("VP8L")) {
		t.Error("animated sticker should use lossy frames")
	}

	// Only input and output remain; the intermediate GIF is gone.
	entries, err := os.ReadDir(m.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("scratch dir has %d entries, want 2", len(entries))
	}
}

func TestConvertVideo_FFmpegFailure(t *testing.T) {
	t.Parallel()
	m, err := scratch.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	c := NewConverter(Options{Video: VideoOptions{FFmpegPath: filepath.Join(m.Dir(), "no-such-ffmpeg")}}, m, zerolog.Nop())
	if err := c.ConvertVideo(context.Background(), m.Path("in", ".mp4"), m.Path("out", ".webp")); err == nil {
		t.Error("expected error when ffmpeg is missing")
	}
}
