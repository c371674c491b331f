// Package owner implements the text-command console available to the bot
// owners in any channel the bot can read.
package owner

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sahilm/fuzzy"

	"github.com/leeineian/singularity/internal/logger"
	"github.com/leeineian/singularity/internal/permissions"
	"github.com/leeineian/singularity/internal/ui"
	"github.com/leeineian/singularity/internal/worker"
)

const (
	MsgInvalidGuild   = "Invalid ID or guild not found."
	MsgSyncRequested  = "Slashes sync requested"
	MsgUnknownCommand = "Unknown owner command."
	MsgOwnerCommand   = "Owner command %q from %s in %s"
)

// Message is the part of a chat message the console needs.
type Message struct {
	AuthorID  snowflake.ID
	ChannelID snowflake.ID
	GuildID   *snowflake.ID
	Content   string
}

// Backend is the platform surface used by owner commands.
type Backend interface {
	Send(ctx context.Context, channelID snowflake.ID, embed discord.Embed) error
	Guild(id snowflake.ID) (GuildInfo, bool)
	Guilds() []GuildInfo
	LeaveGuild(ctx context.Context, id snowflake.ID) error
	// SyncCommands pushes slash commands globally, or to guildID when set.
	SyncCommands(ctx context.Context, guildID *snowflake.ID) error
}

// PermissionDump is the read-only view of the permission table shown by
// "debug permissions".
type PermissionDump interface {
	Commands() []string
	Get(command string) permissions.Entry
}

type Options struct {
	Prefix      string
	Owners      []snowflake.ID
	Backend     Backend
	Workers     func() []worker.Status
	Permissions PermissionDump
	Usage       UsageSampler
	StartedAt   time.Time
}

type handlerFunc func(ctx context.Context, req request) error

type command struct {
	name string
	// prefix commands accept arguments after their name.
	prefix bool
	run    handlerFunc
}

type request struct {
	msg  Message
	args string
}

// Console routes owner messages to their command.
type Console struct {
	prefix      string
	owners      []snowflake.ID
	backend     Backend
	workers     func() []worker.Status
	permissions PermissionDump
	usage       UsageSampler
	startedAt   time.Time
	commands    []command
}

func NewConsole(opts Options) *Console {
	if opts.Usage == nil {
		opts.Usage = SampleUsage
	}
	if opts.StartedAt.IsZero() {
		opts.StartedAt = time.Now()
	}
	c := &Console{
		prefix:      strings.ToLower(opts.Prefix),
		owners:      opts.Owners,
		backend:     opts.Backend,
		workers:     opts.Workers,
		permissions: opts.Permissions,
		usage:       opts.Usage,
		startedAt:   opts.StartedAt,
	}
	c.commands = []command{
		{name: "help", run: c.help},
		{name: "usage", run: c.usageCommand},
		{name: "guild leave", prefix: true, run: c.guildLeave},
		{name: "guild info", prefix: true, run: c.guildInfo},
		{name: "stats", run: c.stats},
		{name: "sync slashes", prefix: true, run: c.syncSlashes},
		{name: "debug runtime", run: c.debugRuntime},
		{name: "debug workers", run: c.debugWorkers},
		{name: "debug gc", run: c.debugGC},
		{name: "debug permissions", run: c.debugPermissions},
	}
	return c
}

// CommandNames lists the owner commands in declaration order.
func (c *Console) CommandNames() []string {
	names := make([]string, len(c.commands))
	for i, cmd := range c.commands {
		names[i] = cmd.name
	}
	return names
}

// Matches reports whether m is an owner command.
func (c *Console) Matches(m Message) bool {
	if c.prefix == "" || !slices.Contains(c.owners, m.AuthorID) {
		return false
	}
	return strings.HasPrefix(strings.ToLower(m.Content), c.prefix)
}

// Handle runs the owner command in m. Callers check Matches first.
func (c *Console) Handle(ctx context.Context, m Message) error {
	input := strings.TrimSpace(strings.ToLower(m.Content)[len(c.prefix):])
	logger.LogOwner(MsgOwnerCommand, input, m.AuthorID, m.ChannelID)

	for _, cmd := range c.commands {
		if input == cmd.name {
			return cmd.run(ctx, request{msg: m})
		}
		if cmd.prefix && strings.HasPrefix(input, cmd.name+" ") {
			return cmd.run(ctx, request{msg: m, args: strings.TrimSpace(input[len(cmd.name):])})
		}
	}
	return c.reply(ctx, m, ui.QuickEmbed(c.suggest(input), ui.ColourWhite))
}

func (c *Console) suggest(input string) string {
	if input == "" {
		return MsgUnknownCommand + " Use **help** to list them."
	}
	matches := fuzzy.Find(input, c.CommandNames())
	if len(matches) == 0 {
		return MsgUnknownCommand + " Use **help** to list them."
	}
	return fmt.Sprintf("%s Did you mean **%s**?", MsgUnknownCommand, matches[0].Str)
}

func (c *Console) reply(ctx context.Context, m Message, embed discord.Embed) error {
	return c.backend.Send(ctx, m.ChannelID, embed)
}

func (c *Console) help(ctx context.Context, req request) error {
	list := "**" + strings.Join(c.CommandNames(), "**\n**") + "**"
	return c.reply(ctx, req.msg, ui.QuickEmbed("Owner commands:\n"+list, ui.ColourWhite))
}

func (c *Console) syncSlashes(ctx context.Context, req request) error {
	var guildID *snowflake.ID
	switch req.args {
	case "":
	case "guild":
		if req.msg.GuildID == nil {
			return c.reply(ctx, req.msg, ui.QuickEmbed("Guild sync needs to be requested from a server.", ui.ColourWhite))
		}
		guildID = req.msg.GuildID
	default:
		return c.reply(ctx, req.msg, ui.QuickEmbed(c.suggest("sync slashes "+req.args), ui.ColourWhite))
	}

	if err := c.backend.SyncCommands(ctx, guildID); err != nil {
		return fmt.Errorf("sync slashes: %w", err)
	}
	return c.reply(ctx, req.msg, ui.QuickEmbed(MsgSyncRequested, ui.ColourWhite))
}

var idPattern = regexp.MustCompile(`\d{15,20}`)

// idFromText returns the first snowflake-looking number in s.
func idFromText(s string) (snowflake.ID, bool) {
	match := idPattern.FindString(s)
	if match == "" {
		return 0, false
	}
	id, err := snowflake.Parse(match)
	if err != nil {
		return 0, false
	}
	return id, true
}
