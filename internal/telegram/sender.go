package telegram

import (
	"bytes"
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"tg_community_bot/internal/broadcast"
)

// CopyRef points at a stored message to re-deliver verbatim. Copying keeps
// whatever media the admin sent without the bot re-uploading it.
type CopyRef struct {
	FromChatID int64
	MessageID  int
}

// Transport adapts the raw bot API to the delivery interfaces the
// broadcast dispatcher and export task consume.
type Transport struct {
	api botAPI
}

// SendPayload delivers one broadcast payload to a recipient. Transport
// failures are wrapped so the dispatcher can classify them by the API
// error text.
func (t *Transport) SendPayload(ctx context.Context, recipientID int64, payload any) error {
	ref, ok := payload.(CopyRef)
	if !ok {
		return fmt.Errorf("unsupported broadcast payload type %T", payload)
	}

	if _, err := t.api.CopyMessage(ctx, &bot.CopyMessageParams{
		ChatID:     recipientID,
		FromChatID: ref.FromChatID,
		MessageID:  ref.MessageID,
	}); err != nil {
		return &broadcast.SendError{Signal: err.Error()}
	}

	return nil
}

// SendDocument uploads an in-memory file to a chat.
func (t *Transport) SendDocument(ctx context.Context, recipientID int64, data []byte, filename, caption string) error {
	if _, err := t.api.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID: recipientID,
		Document: &models.InputFileUpload{
			Filename: filename,
			Data:     bytes.NewReader(data),
		},
		Caption: caption,
	}); err != nil {
		return fmt.Errorf("send document to %d: %w", recipientID, err)
	}

	return nil
}
