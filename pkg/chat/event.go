// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package chat

// ContentKind classifies the payload of an inbound notification.
type ContentKind string

const (
	KindImage        ContentKind = "image"
	KindVideo        ContentKind = "video"
	KindText         ContentKind = "text"
	KindExtendedText ContentKind = "extended-text"
	KindViewOnce     ContentKind = "view-once"
	// KindContext covers context and protocol notifications that carry no
	// user content (receipts, edits, key distribution).
	KindContext ContentKind = "context"
	KindOther   ContentKind = "other"
)

// MediaKind is the kind of media a conversion job handles.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// MediaRef points at downloadable media inside an inbound notification.
// Source is owned by the transport and handed back to it for download.
type MediaRef struct {
	Kind     MediaKind
	MimeType string
	Source   any
}

// Content is the payload of an inbound notification. Inner is only set for
// wrapped content such as view-once messages.
type Content struct {
	Kind  ContentKind
	Text  string
	Media *MediaRef
	Inner *Content
	// RawType is the transport's own name for the payload, kept for logging.
	RawType string
}

// InboundEvent is a single received notification. It is never mutated after
// the transport hands it over.
type InboundEvent struct {
	ID                string
	OriginID          string
	IsGroupOrigin     bool
	IsBroadcastOrigin bool
	SenderParticipant string
	FromMe            bool
	Content           *Content
}

// HasPayload reports whether the event carries any content at all.
func (evt *InboundEvent) HasPayload() bool {
	return evt != nil && evt.Content != nil
}

// MediaContent returns the media reference for image and video content,
// unwrapping view-once envelopes. It returns nil for anything else.
func (c *Content) MediaContent() *MediaRef {
	if c == nil {
		return nil
	}
	switch c.Kind {
	case KindImage, KindVideo:
		return c.Media
	case KindViewOnce:
		if c.Inner != nil && (c.Inner.Kind == KindImage || c.Inner.Kind == KindVideo) {
			return c.Inner.Media
		}
	}
	return nil
}

// Sticker is an encoded sticker ready for delivery.
type Sticker struct {
	Data     []byte
	MimeType string
	Width    int
	Height   int
	Animated bool
}
