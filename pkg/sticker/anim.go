// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package sticker

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/chai2010/webp"
)

// VP8X feature flags.
const (
	vp8xAlpha     = 0x10
	vp8xAnimation = 0x02
)

// ANMF flags: dispose to background, do not blend. Every frame covers the
// whole canvas.
const anmfFlags = 0x03

// maxUint24 bounds every 24-bit field of the extended format.
const maxUint24 = 1<<24 - 1

// encodeLossyAnimation encodes each frame as a lossy still and muxes the
// resulting bitstreams into an animated container looping forever.
func encodeLossyAnimation(w io.Writer, frames []image.Image, durations []uint, quality float32) error {
	canvas := frames[0].Bounds()
	if canvas.Empty() || canvas.Dx() > maxUint24+1 || canvas.Dy() > maxUint24+1 {
		return fmt.Errorf("invalid canvas size %v", canvas.Size())
	}

	var body bytes.Buffer
	body.WriteString("WEBP")

	vp8x := make([]byte, 10)
	vp8x[0] = vp8xAlpha | vp8xAnimation
	putUint24(vp8x[4:], uint32(canvas.Dx()-1))
	putUint24(vp8x[7:], uint32(canvas.Dy()-1))
	writeChunk(&body, "VP8X", vp8x)

	// Background color and loop count are both zero.
	writeChunk(&body, "ANIM", make([]byte, 6))

	var still bytes.Buffer
	for i, frame := range frames {
		if frame.Bounds().Size() != canvas.Size() {
			return fmt.Errorf("frame %d is %v, canvas is %v", i, frame.Bounds().Size(), canvas.Size())
		}
		still.Reset()
		if err := webp.Encode(&still, frame, &webp.Options{Quality: quality}); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		data, err := frameBitstream(still.Bytes())
		if err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		anmf := make([]byte, 16, 16+len(data))
		putUint24(anmf[6:], uint32(canvas.Dx()-1))
		putUint24(anmf[9:], uint32(canvas.Dy()-1))
		putUint24(anmf[12:], uint32(min(durations[i], maxUint24)))
		anmf[15] = anmfFlags
		writeChunk(&body, "ANMF", append(anmf, data...))
	}

	header := make([]byte, 8)
	copy(header, "RIFF")
	binary.LittleEndian.PutUint32(header[4:], uint32(body.Len()))
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := body.WriteTo(w)
	return err
}

// frameBitstream extracts the ALPH and VP8 chunks of a still WebP file, ready
// to be embedded in an ANMF chunk.
func frameBitstream(file []byte) ([]byte, error) {
	if len(file) < 12 || string(file[:4]) != "RIFF" || string(file[8:12]) != "WEBP" {
		return nil, errors.New("not a webp file")
	}
	var out []byte
	found := false
	for rest := file[12:]; len(rest) >= 8; {
		size := int(binary.LittleEndian.Uint32(rest[4:8]))
		end := 8 + size + size&1
		if 8+size > len(rest) {
			return nil, errors.New("truncated webp chunk")
		}
		end = min(end, len(rest))
		switch string(rest[:4]) {
		case "ALPH":
			out = append(out, rest[:end]...)
		case "VP8 ", "VP8L":
			out = append(out, rest[:end]...)
			found = true
		}
		rest = rest[end:]
	}
	if !found {
		return nil, errors.New("no image bitstream in webp file")
	}
	return out, nil
}

func writeChunk(buf *bytes.Buffer, fourCC string, payload []byte) {
	var hdr [8]byte
	copy(hdr[:4], fourCC)
	binary.LittleEndian.PutUint32(hdr[4:], uint32(len(payload)))
	buf.Write(hdr[:])
	buf.Write(payload)
	if len(payload)%2 == 1 {
		buf.WriteByte(0)
	}
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}
