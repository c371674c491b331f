package bot

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"

	"github.com/leeineian/singularity/internal/logger"
	"github.com/leeineian/singularity/internal/permissions"
)

const (
	MsgGuildOnly = "This command can only be used in a server."
	// DefaultErrorMessage is sent when no more specific error text applies.
	DefaultErrorMessage = "An error occurred while processing your command. We've been informed of the issue and we'll get to fixing it ASAP."
)

// Interaction is the response surface of an incoming interaction.
type Interaction interface {
	// CreateMessage sends the initial response.
	CreateMessage(msg discord.MessageCreate) error
	DeferCreateMessage(ephemeral bool) error
	// UpdateMessage edits the message a component is attached to.
	UpdateMessage(msg discord.MessageUpdate) error
	DeferUpdateMessage() error
	// CreateFollowup sends a message after the initial response.
	CreateFollowup(msg discord.MessageCreate) error
	// SendToChannel posts a plain message in the interaction's channel.
	SendToChannel(msg discord.MessageCreate) error
	// EditOriginal edits the initial response after it was sent.
	EditOriginal(msg discord.MessageUpdate) error
}

// Context is the per-interaction view handed to handlers.
type Context struct {
	context.Context

	User        discord.User
	Member      *discord.ResolvedMember
	GuildID     *snowflake.ID
	ChannelID   snowflake.ID
	CommandName string
	CustomID    string
	// BotPermissions are the bot's permissions in the interaction channel.
	BotPermissions discord.Permissions
	SlashData      discord.SlashCommandInteractionData
	// Message is the message a component interaction belongs to.
	Message *discord.Message

	Interaction Interaction
	Bot         *Bot

	lookup    permissions.Lookup
	info      *logger.Logger
	errLog    *logger.Logger
	responded atomic.Bool
}

func (c *Context) IsDM() bool { return c.GuildID == nil }

// Responded reports whether the interaction has been acknowledged.
func (c *Context) Responded() bool { return c.responded.Load() }

// QualifiedName joins a command with its subcommand group and subcommand.
func QualifiedName(data discord.SlashCommandInteractionData) string {
	parts := []string{data.CommandName()}
	if data.SubCommandGroupName != nil {
		parts = append(parts, *data.SubCommandGroupName)
	}
	if data.SubCommandName != nil {
		parts = append(parts, *data.SubCommandName)
	}
	return strings.Join(parts, " ")
}

// Actor returns the permission state used for the command check.
func (c *Context) Actor() permissions.Actor {
	a := permissions.Actor{InGuild: !c.IsDM(), Bot: c.BotPermissions}
	if c.Member != nil {
		a.HasMember = true
		a.Member = c.Member.Permissions
	}
	return a
}

// CheckPermissions returns the permissions the member and the bot lack for
// the current command.
func (c *Context) CheckPermissions() (missingUser, missingBot []string) {
	lookup := c.lookup
	if lookup == nil {
		lookup = permissions.NewTable(nil)
	}
	return permissions.Check(lookup, c.CommandName, c.Actor())
}

// Validate runs the guild-only and permission checks. On failure the user
// has already been told why and false is returned.
func (c *Context) Validate(guildOnly bool) bool {
	if guildOnly && c.IsDM() {
		c.deny(MsgGuildOnly)
		return false
	}

	missingUser, missingBot := c.CheckPermissions()
	if desc := permissions.Describe(missingUser, missingBot); desc != "" {
		c.deny(desc)
		return false
	}

	c.logCommand()
	return true
}

// deny tells the user why the command was refused and logs a failure of
// the whole fallback chain.
func (c *Context) deny(reason string) {
	if err := c.ErrorReply(reason); err != nil {
		c.errLog.Log("Could not tell user why `"+c.CommandName+"` was refused: "+err.Error(),
			logger.With("command_name", c.CommandName),
			logger.With("user_id", c.User.ID.String()),
			logger.With("reason", reason),
		)
	}
}

func (c *Context) logCommand() {
	guildID := ""
	if c.GuildID != nil {
		guildID = c.GuildID.String()
	}
	c.info.Log(
		"Slash handler for `"+c.CommandName+"` called by user: "+c.User.Username+" ("+c.User.ID.String()+").",
		logger.WithType(logger.TypeSlashCommand),
		logger.ToDiscord(false),
		logger.With("command_name", c.CommandName),
		logger.With("guild_id", guildID),
		logger.With("user_id", c.User.ID.String()),
	)
}

// SendAsEphemeral decides whether a response is ephemeral. Responses in DMs
// never are. Without embed_links the response is forced ephemeral.
func (c *Context) SendAsEphemeral(makeVisible bool) bool {
	if c.IsDM() {
		return false
	}
	if !c.BotPermissions.Has(discord.PermissionEmbedLinks) && !c.BotPermissions.Has(discord.PermissionAdministrator) {
		return true
	}
	return !makeVisible
}

func (c *Context) Reply(msg discord.MessageCreate) error {
	if err := c.Interaction.CreateMessage(msg); err != nil {
		return err
	}
	c.responded.Store(true)
	return nil
}

func (c *Context) Defer(ephemeral bool) error {
	if err := c.Interaction.DeferCreateMessage(ephemeral); err != nil {
		return err
	}
	c.responded.Store(true)
	return nil
}

func (c *Context) Update(msg discord.MessageUpdate) error {
	if err := c.Interaction.UpdateMessage(msg); err != nil {
		return err
	}
	c.responded.Store(true)
	return nil
}

func (c *Context) DeferUpdate() error {
	if err := c.Interaction.DeferUpdateMessage(); err != nil {
		return err
	}
	c.responded.Store(true)
	return nil
}

func (c *Context) Followup(msg discord.MessageCreate) error {
	return c.Interaction.CreateFollowup(msg)
}

func (c *Context) EditOriginal(msg discord.MessageUpdate) error {
	return c.Interaction.EditOriginal(msg)
}

// ErrorReply sends message as an ephemeral error through the fallback
// chain. An empty message sends DefaultErrorMessage.
func (c *Context) ErrorReply(message string) error {
	if message == "" {
		message = DefaultErrorMessage
	}
	return ReplyWithFallback(contextReplier{c}, discord.NewMessageCreate().WithContent(message).WithEphemeral(true))
}

// contextReplier adapts a Context to the fallback chain and records the
// initial response.
type contextReplier struct{ c *Context }

func (r contextReplier) Respond(msg discord.MessageCreate) error {
	if r.c.Responded() {
		return errAlreadyResponded
	}
	return r.c.Reply(msg)
}

func (r contextReplier) Followup(msg discord.MessageCreate) error { return r.c.Followup(msg) }

func (r contextReplier) SendToChannel(msg discord.MessageCreate) error {
	return r.c.Interaction.SendToChannel(msg)
}
