// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package whatsapp

import (
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/aiku/wa-stickerbot/pkg/chat"
)

func convertMessage(evt *events.Message) *chat.InboundEvent {
	chatJID := evt.Info.Chat
	ie := &chat.InboundEvent{
		ID:                string(evt.Info.ID),
		OriginID:          chatJID.String(),
		IsGroupOrigin:     chatJID.Server == types.GroupServer,
		IsBroadcastOrigin: chatJID.Server == types.BroadcastServer || chatJID.Server == types.NewsletterServer,
		SenderParticipant: evt.Info.Sender.String(),
		FromMe:            evt.Info.IsFromMe,
	}
	if evt.Message == nil {
		return ie
	}
	content := classify(evt.Message)
	if evt.IsViewOnce || evt.IsViewOnceV2 || evt.IsViewOnceV2Extension {
		content = &chat.Content{Kind: chat.KindViewOnce, Inner: content, RawType: "viewOnceMessage"}
	}
	ie.Content = content
	return ie
}

// classify maps an unwrapped message to transport-neutral content.
func classify(msg *waE2E.Message) *chat.Content {
	switch {
	case msg.GetImageMessage() != nil:
		img := msg.GetImageMessage()
		return &chat.Content{
			Kind:    chat.KindImage,
			Text:    img.GetCaption(),
			Media:   &chat.MediaRef{Kind: chat.MediaImage, MimeType: img.GetMimetype(), Source: img},
			RawType: "imageMessage",
		}
	case msg.GetVideoMessage() != nil:
		vid := msg.GetVideoMessage()
		return &chat.Content{
			Kind:    chat.KindVideo,
			Text:    vid.GetCaption(),
			Media:   &chat.MediaRef{Kind: chat.MediaVideo, MimeType: vid.GetMimetype(), Source: vid},
			RawType: "videoMessage",
		}
	case msg.Conversation != nil:
		return &chat.Content{Kind: chat.KindText, Text: msg.GetConversation(), RawType: "conversation"}
	case msg.GetExtendedTextMessage() != nil:
		return &chat.Content{
			Kind:    chat.KindExtendedText,
			Text:    msg.GetExtendedTextMessage().GetText(),
			RawType: "extendedTextMessage",
		}
	}

	raw := rawType(msg)
	switch raw {
	case "", "messageContextInfo", "protocolMessage", "senderKeyDistributionMessage":
		return &chat.Content{Kind: chat.KindContext, RawType: raw}
	default:
		return &chat.Content{Kind: chat.KindOther, RawType: raw}
	}
}

// rawType names the first populated payload field, preferring anything over
// the context info that rides along with most messages.
func rawType(msg *waE2E.Message) string {
	var name string
	msg.ProtoReflect().Range(func(fd protoreflect.FieldDescriptor, _ protoreflect.Value) bool {
		name = fd.JSONName()
		return name == "messageContextInfo"
	})
	return name
}
