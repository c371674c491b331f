package logger

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"golang.org/x/time/rate"

	"github.com/leeineian/singularity/internal/ui"
)

// MaxRemoteMessageLength is the longest message, in characters, sent inline
// as an embed.
// Longer messages are uploaded as a text attachment.
const MaxRemoteMessageLength = 4000

// ChannelSender is the part of the REST client the remote sink needs.
// *rest.Client from disgo satisfies it.
type ChannelSender interface {
	CreateMessage(channelID snowflake.ID, messageCreate discord.MessageCreate, opts ...rest.RequestOpt) (*discord.Message, error)
}

// RemoteSink posts records to a logging channel.
type RemoteSink struct {
	sender    ChannelSender
	channelID snowflake.ID
	limiter   *rate.Limiter
	timeout   time.Duration
}

func NewRemoteSink(sender ChannelSender, channelID snowflake.ID) *RemoteSink {
	return &RemoteSink{
		sender:    sender,
		channelID: channelID,
		limiter:   rate.NewLimiter(rate.Limit(1), 5),
		timeout:   15 * time.Second,
	}
}

func (s *RemoteSink) Write(ctx context.Context, r Record) error {
	if s == nil || s.sender == nil || s.channelID == 0 {
		return nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.sender.CreateMessage(s.channelID, RemoteMessage(r), rest.WithCtx(ctx))
	if err != nil {
		return fmt.Errorf("send log to channel %s: %w", s.channelID, err)
	}
	return nil
}

// RemoteMessage builds the channel message for a record.
func RemoteMessage(r Record) discord.MessageCreate {
	message := StripANSI(r.Message)
	if utf8.RuneCountInString(message) > MaxRemoteMessageLength {
		stamp := r.Time.UTC().Format(TimestampFormat)
		body := fmt.Sprintf("%s [%s]\n%s", stamp, r.Type, message)
		return discord.MessageCreate{
			Content: fmt.Sprintf("%s - message too long..", r.Type),
			Files: []*discord.File{
				discord.NewFile(fmt.Sprintf("log_%s_%s.txt", r.Type, stamp), "", strings.NewReader(body)),
			},
		}
	}
	return discord.MessageCreate{Embeds: []discord.Embed{RemoteEmbed(r, message)}}
}

// RemoteEmbed renders a record as a log embed.
func RemoteEmbed(r Record, message string) discord.Embed {
	ts := r.Time
	inline := false
	embed := discord.Embed{
		Author:      &discord.EmbedAuthor{Name: fmt.Sprintf("%s Log", r.Type)},
		Description: message,
		Color:       TypeColour(r.Type),
		Timestamp:   &ts,
	}
	for i, e := range r.Extras {
		if i == ui.MaxEmbedFields {
			break
		}
		embed.Fields = append(embed.Fields, discord.EmbedField{
			Name:   e.Key,
			Value:  ui.Truncate(fmt.Sprintf("%v", e.Value), 1024),
			Inline: &inline,
		})
	}
	return embed
}

// TypeColour maps a log type to its embed colour.
func TypeColour(t Type) int {
	switch t {
	case TypeError:
		return ui.ColourError
	case TypeWarning, TypeMinorWarning:
		return ui.ColourWarning
	case TypeDMReceived:
		return ui.ColourGreen
	default:
		return ui.ColourPrimaryAccent
	}
}
