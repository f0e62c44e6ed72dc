package whatsapp

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"golang.org/x/image/webp"
	"google.golang.org/protobuf/proto"

	"github.com/agentwa/wabridge/config"
)

// OutboundMedia is a file to deliver ahead of the text portion of an
// outbound message.
type OutboundMedia struct {
	Data     []byte
	MimeType string
	FileName string
	Caption  string
}

// sendMedia uploads and sends one media message, returning its wire id.
// Images are normalized before upload; everything else goes out as a
// document.
func (b *Bridge) sendMedia(ctx context.Context, to types.JID, media *OutboundMedia) (string, error) {
	if media == nil || len(media.Data) == 0 {
		return "", fmt.Errorf("empty media payload")
	}

	if strings.HasPrefix(media.MimeType, "image/") {
		return b.sendImage(ctx, to, media)
	}
	return b.sendDocument(ctx, to, media)
}

func (b *Bridge) sendImage(ctx context.Context, to types.JID, media *OutboundMedia) (string, error) {
	data, err := normalizeImage(media.Data, media.MimeType)
	if err != nil {
		return "", fmt.Errorf("image normalization failed: %w", err)
	}

	uploaded, err := b.sock.Upload(ctx, data, whatsmeow.MediaImage)
	if err != nil {
		return "", fmt.Errorf("image upload failed: %w", err)
	}

	msg := &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
		Caption:       proto.String(media.Caption),
		Mimetype:      proto.String("image/jpeg"),
		URL:           proto.String(uploaded.URL),
		DirectPath:    proto.String(uploaded.DirectPath),
		MediaKey:      uploaded.MediaKey,
		FileEncSHA256: uploaded.FileEncSHA256,
		FileSHA256:    uploaded.FileSHA256,
		FileLength:    proto.Uint64(uploaded.FileLength),
	}}

	resp, err := b.sock.SendMessage(ctx, to, msg)
	if err != nil {
		return "", err
	}
	return string(resp.ID), nil
}

func (b *Bridge) sendDocument(ctx context.Context, to types.JID, media *OutboundMedia) (string, error) {
	uploaded, err := b.sock.Upload(ctx, media.Data, whatsmeow.MediaDocument)
	if err != nil {
		return "", fmt.Errorf("document upload failed: %w", err)
	}

	msg := &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
		Caption:       proto.String(media.Caption),
		FileName:      proto.String(media.FileName),
		Mimetype:      proto.String(media.MimeType),
		URL:           proto.String(uploaded.URL),
		DirectPath:    proto.String(uploaded.DirectPath),
		MediaKey:      uploaded.MediaKey,
		FileEncSHA256: uploaded.FileEncSHA256,
		FileSHA256:    uploaded.FileSHA256,
		FileLength:    proto.Uint64(uploaded.FileLength),
	}}

	resp, err := b.sock.SendMessage(ctx, to, msg)
	if err != nil {
		return "", err
	}
	return string(resp.ID), nil
}

// normalizeImage decodes any supported image (webp included), scales it
// down to the outbound width cap, and re-encodes as JPEG.
func normalizeImage(data []byte, mimeType string) ([]byte, error) {
	var img image.Image
	var err error
	if mimeType == "image/webp" {
		img, err = webp.Decode(bytes.NewReader(data))
	} else {
		img, err = imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	}
	if err != nil {
		return nil, err
	}

	if img.Bounds().Dx() > config.MaxImageWidth {
		img = imaging.Resize(img, config.MaxImageWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
