// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package whatsapp

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/aiku/wa-stickerbot/pkg/chat"
)

// Session adapts one whatsmeow client to chat.Session.
type Session struct {
	chat.Listeners

	client    *whatsmeow.Client
	handlerID uint32
	log       zerolog.Logger

	qrCancel  context.CancelFunc
	closeOnce sync.Once
}

var _ chat.Session = (*Session)(nil)

func newSession(client *whatsmeow.Client, log zerolog.Logger) *Session {
	s := &Session{
		client: client,
		log:    log.With().Str("component", "session").Logger(),
	}
	s.handlerID = client.AddEventHandler(s.handleEvent)
	return s
}

// Connect dials the server. Unpaired devices get a QR channel first, whose
// codes are emitted as connection updates.
func (s *Session) Connect(ctx context.Context) error {
	if s.client.Store.ID == nil {
		qrCtx, cancel := context.WithCancel(context.Background())
		s.qrCancel = cancel
		qrChan, err := s.client.GetQRChannel(qrCtx)
		if err != nil {
			cancel()
			return fmt.Errorf("%w: get QR channel: %w", chat.ErrTransport, err)
		}
		go s.forwardQR(qrChan)
	}
	s.emitConnection(chat.ConnectionUpdate{State: chat.ConnectionConnecting})
	if err := s.client.Connect(); err != nil {
		return fmt.Errorf("%w: connect: %w", chat.ErrTransport, err)
	}
	return nil
}

func (s *Session) forwardQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			s.emitConnection(chat.ConnectionUpdate{QR: item.Code})
		case whatsmeow.QRChannelSuccess.Event:
			s.log.Info().Msg("Device paired")
		case whatsmeow.QRChannelTimeout.Event:
			s.emitConnection(chat.ConnectionUpdate{
				State: chat.ConnectionClosed,
				Cause: chat.CauseOtherRetryable,
				Err:   fmt.Errorf("%w: QR code scan timed out", chat.ErrTransport),
			})
		default:
			s.log.Warn().Str("event", item.Event).Err(item.Error).Msg("Unexpected QR channel event")
		}
	}
}

// Close removes the event handler and disconnects. Safe to call twice.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.client.RemoveEventHandler(s.handlerID)
		if s.qrCancel != nil {
			s.qrCancel()
		}
		s.client.Disconnect()
	})
	return nil
}

func (s *Session) handleEvent(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		s.Emit(chat.Event{Kind: chat.EventNotificationBatch, Batch: []*chat.InboundEvent{convertMessage(evt)}})
	case *events.PairSuccess:
		s.log.Info().Stringer("jid", evt.ID).Str("platform", evt.Platform).Msg("Pairing succeeded")
		s.Emit(chat.Event{Kind: chat.EventCredentialsUpdated})
	default:
		if u, ok := connectionUpdate(rawEvt); ok {
			s.emitConnection(*u)
		}
	}
}

func (s *Session) emitConnection(u chat.ConnectionUpdate) {
	s.Emit(chat.Event{Kind: chat.EventConnectionUpdate, Connection: &u})
}

// SendText sends a plain text message.
func (s *Session) SendText(ctx context.Context, originID, text string) error {
	jid, err := types.ParseJID(originID)
	if err != nil {
		return fmt.Errorf("parse origin %q: %w", originID, err)
	}
	_, err = s.client.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)})
	if err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	return nil
}

// SendSticker uploads the sticker and sends it.
func (s *Session) SendSticker(ctx context.Context, originID string, sticker *chat.Sticker) error {
	jid, err := types.ParseJID(originID)
	if err != nil {
		return fmt.Errorf("parse origin %q: %w", originID, err)
	}
	uploaded, err := s.client.Upload(ctx, sticker.Data, whatsmeow.MediaImage)
	if err != nil {
		return fmt.Errorf("upload sticker: %w", err)
	}
	msg := &waE2E.Message{StickerMessage: &waE2E.StickerMessage{
		URL:           proto.String(uploaded.URL),
		DirectPath:    proto.String(uploaded.DirectPath),
		MediaKey:      uploaded.MediaKey,
		FileEncSHA256: uploaded.FileEncSHA256,
		FileSHA256:    uploaded.FileSHA256,
		FileLength:    proto.Uint64(uploaded.FileLength),
		Mimetype:      proto.String(sticker.MimeType),
		Width:         proto.Uint32(uint32(sticker.Width)),
		Height:        proto.Uint32(uint32(sticker.Height)),
		IsAnimated:    proto.Bool(sticker.Animated),
	}}
	if _, err := s.client.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("send sticker: %w", err)
	}
	return nil
}

// DownloadMedia downloads and decrypts the media behind ref.
func (s *Session) DownloadMedia(ctx context.Context, ref *chat.MediaRef) ([]byte, error) {
	msg, ok := ref.Source.(whatsmeow.DownloadableMessage)
	if !ok {
		return nil, fmt.Errorf("%w: %T", chat.ErrUnsupportedMedia, ref.Source)
	}
	return s.client.Download(ctx, msg)
}

// LookupGroupName returns the group's subject.
func (s *Session) LookupGroupName(ctx context.Context, originID string) (string, error) {
	jid, err := types.ParseJID(originID)
	if err != nil {
		return "", fmt.Errorf("parse origin %q: %w", originID, err)
	}
	info, err := s.client.GetGroupInfo(ctx, jid)
	if err != nil {
		return "", fmt.Errorf("get group info: %w", err)
	}
	return info.Name, nil
}
