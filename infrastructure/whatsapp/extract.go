package whatsapp

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow/proto/waE2E"

	"github.com/agentwa/wabridge/config"
	"github.com/agentwa/wabridge/pkg/envelope"
	"github.com/agentwa/wabridge/pkg/waid"
)

// Unwrap peels view-once, ephemeral, and edit wrappers off a message.
// Wrappers can nest, but never deeper than a few levels.
func Unwrap(msg *waE2E.Message) *waE2E.Message {
	if msg == nil {
		return nil
	}
	peel := func(m *waE2E.Message) *waE2E.Message {
		if v := m.GetViewOnceMessage(); v != nil {
			return v.GetMessage()
		}
		if v := m.GetViewOnceMessageV2(); v != nil {
			return v.GetMessage()
		}
		if v := m.GetViewOnceMessageV2Extension(); v != nil {
			return v.GetMessage()
		}
		if v := m.GetEphemeralMessage(); v != nil {
			return v.GetMessage()
		}
		if p := m.GetProtocolMessage(); p != nil && p.GetEditedMessage() != nil {
			return p.GetEditedMessage()
		}
		return nil
	}
	for i := 0; i < 3; i++ {
		if next := peel(msg); next != nil {
			msg = next
		} else {
			break
		}
	}
	return msg
}

// ExtractText pulls the user-visible text out of an unwrapped message:
// plain conversation, extended text, a media caption, or a location
// descriptor.
func ExtractText(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if c := msg.GetConversation(); c != "" {
		return c
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil && ext.GetText() != "" {
		return ext.GetText()
	}
	if img := msg.GetImageMessage(); img != nil {
		return img.GetCaption()
	}
	if vid := msg.GetVideoMessage(); vid != nil {
		return vid.GetCaption()
	}
	if doc := msg.GetDocumentMessage(); doc != nil {
		return doc.GetCaption()
	}
	if loc := msg.GetLocationMessage(); loc != nil {
		text := fmt.Sprintf("[Location: %f, %f]", loc.GetDegreesLatitude(), loc.GetDegreesLongitude())
		if name := loc.GetName(); name != "" {
			text = fmt.Sprintf("[Location: %f, %f — %s]", loc.GetDegreesLatitude(), loc.GetDegreesLongitude(), name)
		}
		return text
	}
	return ""
}

// ExtractMedia builds an attachment descriptor for an unwrapped
// message, or nil when the message carries none. Oversized attachments
// are dropped so the agent never sees blobs beyond the download cap.
func ExtractMedia(msg *waE2E.Message) *envelope.MediaRef {
	if msg == nil {
		return nil
	}

	var ref *envelope.MediaRef
	switch {
	case msg.GetImageMessage() != nil:
		img := msg.GetImageMessage()
		ref = &envelope.MediaRef{
			Kind:     "image",
			MimeType: img.GetMimetype(),
			Caption:  img.GetCaption(),
			FileSize: img.GetFileLength(),
			Width:    img.GetWidth(),
			Height:   img.GetHeight(),
		}
	case msg.GetVideoMessage() != nil:
		vid := msg.GetVideoMessage()
		ref = &envelope.MediaRef{
			Kind:     "video",
			MimeType: vid.GetMimetype(),
			Caption:  vid.GetCaption(),
			FileSize: vid.GetFileLength(),
			Seconds:  vid.GetSeconds(),
			Width:    vid.GetWidth(),
			Height:   vid.GetHeight(),
		}
	case msg.GetAudioMessage() != nil:
		aud := msg.GetAudioMessage()
		ref = &envelope.MediaRef{
			Kind:     "audio",
			MimeType: aud.GetMimetype(),
			FileSize: aud.GetFileLength(),
			Seconds:  aud.GetSeconds(),
			Voice:    aud.GetPTT(),
		}
	case msg.GetDocumentMessage() != nil:
		doc := msg.GetDocumentMessage()
		ref = &envelope.MediaRef{
			Kind:     "document",
			MimeType: doc.GetMimetype(),
			Caption:  doc.GetCaption(),
			FileName: doc.GetFileName(),
			FileSize: doc.GetFileLength(),
		}
	case msg.GetStickerMessage() != nil:
		stk := msg.GetStickerMessage()
		ref = &envelope.MediaRef{
			Kind:     "sticker",
			MimeType: stk.GetMimetype(),
			FileSize: stk.GetFileLength(),
		}
	case msg.GetLocationMessage() != nil:
		ref = &envelope.MediaRef{Kind: "location"}
	}

	if ref != nil && config.WhatsappMaxDownloadSize > 0 && ref.FileSize > uint64(config.WhatsappMaxDownloadSize) {
		logrus.Warnf("[BRIDGE] Dropping %s attachment of %s, over the %s limit",
			ref.Kind, humanize.Bytes(ref.FileSize), humanize.Bytes(uint64(config.WhatsappMaxDownloadSize)))
		return nil
	}
	return ref
}

// contextInfo finds whichever payload carries the quoted/mention
// context for this message.
func contextInfo(msg *waE2E.Message) *waE2E.ContextInfo {
	if msg == nil {
		return nil
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil && ext.GetContextInfo() != nil {
		return ext.GetContextInfo()
	}
	if img := msg.GetImageMessage(); img != nil && img.GetContextInfo() != nil {
		return img.GetContextInfo()
	}
	if vid := msg.GetVideoMessage(); vid != nil && vid.GetContextInfo() != nil {
		return vid.GetContextInfo()
	}
	if doc := msg.GetDocumentMessage(); doc != nil && doc.GetContextInfo() != nil {
		return doc.GetContextInfo()
	}
	if aud := msg.GetAudioMessage(); aud != nil && aud.GetContextInfo() != nil {
		return aud.GetContextInfo()
	}
	return nil
}

// IsBotMentioned compares the mention list against the bot's primary
// and alternative IDs by their leading digit segments, since servers
// and device sub-ids differ per event.
func IsBotMentioned(msg *waE2E.Message, botID, botAlt string) bool {
	ci := contextInfo(msg)
	if ci == nil {
		return false
	}
	botHead := waid.DigitHead(botID)
	altHead := waid.DigitHead(botAlt)
	for _, mentioned := range ci.GetMentionedJID() {
		head := waid.DigitHead(mentioned)
		if head == "" {
			continue
		}
		if (botHead != "" && head == botHead) || (altHead != "" && head == altHead) {
			return true
		}
	}
	return false
}

// QuotedText returns the text of the message being replied to, if any.
func QuotedText(msg *waE2E.Message) string {
	ci := contextInfo(msg)
	if ci == nil {
		return ""
	}
	quoted := ci.GetQuotedMessage()
	if quoted == nil {
		return ""
	}
	if c := quoted.GetConversation(); c != "" {
		return strings.TrimSpace(c)
	}
	if ext := quoted.GetExtendedTextMessage(); ext != nil {
		return strings.TrimSpace(ext.GetText())
	}
	return ""
}
