package bot

import (
	"errors"
	"fmt"

	"github.com/disgoorg/disgo/discord"
)

// Replier is the three-step route an error reply can take.
type Replier interface {
	Respond(msg discord.MessageCreate) error
	Followup(msg discord.MessageCreate) error
	SendToChannel(msg discord.MessageCreate) error
}

// ReplyWithFallback tries the initial response, then a followup, then a
// plain channel message, and stops at the first that succeeds. The channel
// message is never ephemeral.
func ReplyWithFallback(r Replier, msg discord.MessageCreate) error {
	respondErr := r.Respond(msg)
	if respondErr == nil {
		return nil
	}
	followupErr := r.Followup(msg)
	if followupErr == nil {
		return nil
	}

	plain := msg
	plain.Flags &^= discord.MessageFlagEphemeral
	channelErr := r.SendToChannel(plain)
	if channelErr == nil {
		return nil
	}
	return fmt.Errorf("all reply routes failed: %w", errors.Join(respondErr, followupErr, channelErr))
}
