package bot

import (
	"context"
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"

	"github.com/leeineian/singularity/internal/errs"
	"github.com/leeineian/singularity/internal/logger"
)

const stickerURLFmt = "https://media.discordapp.net/stickers/%s.png"

// SendMessage posts msg to channelID. Failures are returned as
// *errs.MessageSendingError.
func (b *Bot) SendMessage(ctx context.Context, channelID snowflake.ID, msg discord.MessageCreate) (*discord.Message, error) {
	if b.sender == nil {
		return nil, errs.SendFailed(b.target(channelID), errs.New("no message sender configured", nil))
	}
	m, err := b.sender.CreateMessage(channelID, msg, rest.WithCtx(ctx))
	if err != nil {
		return nil, errs.SendFailed(b.target(channelID), err)
	}
	return m, nil
}

func (b *Bot) target(channelID snowflake.ID) errs.Target {
	t := errs.Target{ID: channelID}
	if b.Client == nil || b.Client.Caches == nil {
		return t
	}
	if ch, ok := b.Client.Caches.Channel(channelID); ok {
		t.Name = ch.Name()
	}
	return t
}

func dmFromMessage(m discord.Message) logger.DMMessage {
	dm := logger.DMMessage{
		AuthorName: m.Author.Username,
		AuthorID:   m.Author.ID.String(),
		Content:    m.Content,
	}
	for _, a := range m.Attachments {
		contentType := "unknown"
		if a.ContentType != nil {
			contentType = *a.ContentType
		}
		dm.Attachments = append(dm.Attachments, logger.DMAttachment{
			ContentType: contentType,
			Filename:    a.Filename,
			URL:         a.URL,
		})
	}
	for _, s := range m.StickerItems {
		dm.Stickers = append(dm.Stickers, logger.DMSticker{
			Name: s.Name,
			URL:  stickerURL(s.ID),
		})
	}
	return dm
}

func stickerURL(id snowflake.ID) string {
	return fmt.Sprintf(stickerURLFmt, id)
}
