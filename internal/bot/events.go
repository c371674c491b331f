package bot

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"

	"github.com/leeineian/singularity/internal/logger"
	"github.com/leeineian/singularity/internal/owner"
	"github.com/leeineian/singularity/internal/worker"
)

var errNotComponent = errors.New("only component interactions can update a message")

// safeGo runs f on its own goroutine and reports a panic as an error of
// the named event.
func (b *Bot) safeGo(event string, f func()) {
	go b.recoverEvent(event, f)
}

func (b *Bot) recoverEvent(event string, f func()) {
	defer func() {
		if r := recover(); r != nil {
			b.OnError(event, fmt.Errorf("panic: %v", r), debug.Stack())
		}
	}()
	f()
}

// OnError logs an error raised outside an interaction handler.
func (b *Bot) OnError(event string, err error, stack []byte) {
	opts := []logger.Option{logger.With("event", event)}
	if len(stack) > 0 {
		opts = append(opts, logger.With("traceback", string(stack)))
	}
	b.errLog.Log(fmt.Sprintf("event=%s %v", event, err), opts...)
}

func (b *Bot) onReady(e *events.Ready) {
	b.setSelfID(e.User.ID)
	logger.LogGateway("Logged in as %s (%s)", e.User.Username, e.User.ID)
	b.readyOnce.Do(func() {
		b.info.Log(MsgBotUp, logger.ToDiscord(true))
		if b.Client != nil {
			if err := b.SetStatus(b.appCtx, worker.DefaultStatus); err != nil {
				logger.LogWarn("Failed to set presence: %v", err)
			}
		}
		b.startWorkers()
		b.info.Log(MsgBotReady)
	})
}

func (b *Bot) startWorkers() {
	if b.Workers == nil {
		return
	}
	b.workersWG.Add(1)
	go func() {
		defer b.workersWG.Done()
		if err := b.Workers.Run(b.appCtx); err != nil && !errors.Is(err, context.Canceled) {
			b.OnError("workers", err, nil)
		}
	}()
}

func (b *Bot) onMessageCreate(e *events.MessageCreate) {
	b.safeGo("on_message", func() {
		if err := b.handleMessage(b.appCtx, e.Message, e.GuildID); err != nil {
			b.OnError("on_message", err, nil)
		}
	})
}

// handleMessage routes owner commands and answers direct messages.
func (b *Bot) handleMessage(ctx context.Context, m discord.Message, guildID *snowflake.ID) error {
	if m.Author.ID == b.SelfID() || m.Author.Bot {
		return nil
	}

	if b.Owner != nil {
		om := owner.Message{AuthorID: m.Author.ID, ChannelID: m.ChannelID, GuildID: guildID, Content: m.Content}
		if b.Owner.Matches(om) {
			return b.Owner.Handle(ctx, om)
		}
	}

	if guildID != nil {
		return nil
	}
	b.dm.LogDM(dmFromMessage(m))
	_, err := b.SendMessage(ctx, m.ChannelID, discord.NewMessageCreate().WithContent(MsgBeepBoop))
	return err
}

func (b *Bot) onApplicationCommand(e *events.ApplicationCommandInteractionCreate) {
	data, ok := e.Data.(discord.SlashCommandInteractionData)
	if !ok {
		return
	}
	cmd, ok := b.Registry.Command(data.CommandName())
	if !ok {
		return
	}

	c := b.newContext(b.appCtx, commandInteraction(e))
	c.User = e.User()
	c.Member = e.Member()
	c.GuildID = e.GuildID()
	c.ChannelID = e.Channel().ID()
	c.SlashData = data
	c.CommandName = QualifiedName(data)
	c.BotPermissions = b.botPermissions(c.GuildID, c.ChannelID, e.AppPermissions())

	b.safeGo("on_interaction", func() { b.dispatchCommand(c, cmd) })
}

// dispatchCommand runs the checks and then the handler of cmd.
func (b *Bot) dispatchCommand(c *Context, cmd Command) {
	if !c.Validate(cmd.GuildOnly) {
		metricInteractions.WithLabelValues(kindCommand, c.CommandName, "denied").Inc()
		return
	}
	b.guard(c, kindCommand, c.CommandName, cmd.Handler)
}

func (b *Bot) onComponent(e *events.ComponentInteractionCreate) {
	if e.Message.Author.ID != b.SelfID() {
		return
	}
	customID := e.Data.CustomID()
	h, ok := b.Registry.Component(customID)
	if !ok {
		return
	}

	c := b.newContext(b.appCtx, componentInteraction(e))
	c.User = e.User()
	c.Member = e.Member()
	c.GuildID = e.GuildID()
	c.ChannelID = e.Channel().ID()
	c.CustomID = customID
	c.Message = &e.Message
	c.BotPermissions = b.botPermissions(c.GuildID, c.ChannelID, e.AppPermissions())

	b.safeGo("on_interaction", func() { b.dispatchComponent(c, h) })
}

func (b *Bot) dispatchComponent(c *Context, h HandlerFunc) {
	c.info.Log(fmt.Sprintf("Component %s used by %s (%s).", c.CustomID, c.User.Username, c.User.ID),
		logger.WithType(logger.TypeInteractionCallback),
		logger.ToDiscord(false),
		logger.With("custom_id", c.CustomID),
		logger.With("user_id", c.User.ID.String()),
	)
	b.guard(c, kindComponent, c.CustomID, h)
}

func (b *Bot) onAutocomplete(e *events.AutocompleteInteractionCreate) {
	h, ok := b.Registry.Autocomplete(e.Data.CommandName)
	if !ok {
		return
	}
	b.safeGo("on_autocomplete", func() {
		if err := h(e); err != nil {
			b.OnError("on_autocomplete", err, nil)
		}
	})
}

func (b *Bot) newContext(ctx context.Context, ia Interaction) *Context {
	return &Context{
		Context:     ctx,
		Interaction: ia,
		Bot:         b,
		lookup:      b.Permissions,
		info:        b.events,
		errLog:      b.handlers,
	}
}

// botPermissions prefers the permissions sent with the interaction and
// falls back to computing them from the cache.
func (b *Bot) botPermissions(guildID *snowflake.ID, channelID snowflake.ID, app *discord.Permissions) discord.Permissions {
	if app != nil {
		return *app
	}
	if guildID == nil || b.Client == nil {
		return 0
	}
	self, ok := b.Client.Caches.Member(*guildID, b.SelfID())
	if !ok {
		return 0
	}
	var overwrites []discord.PermissionOverwrite
	if ch, ok := b.Client.Caches.Channel(channelID); ok {
		overwrites = ch.PermissionOverwrites()
	}
	return MemberPermissions(b.Client.Caches, *guildID, self, overwrites)
}

// eventInteraction adapts a gateway interaction event to Interaction.
type eventInteraction struct {
	createMessage func(discord.MessageCreate, ...rest.RequestOpt) error
	deferCreate   func(bool, ...rest.RequestOpt) error
	updateMessage func(discord.MessageUpdate, ...rest.RequestOpt) error
	deferUpdate   func(...rest.RequestOpt) error

	rest      rest.Rest
	appID     snowflake.ID
	token     string
	channelID snowflake.ID
}

func commandInteraction(e *events.ApplicationCommandInteractionCreate) *eventInteraction {
	return &eventInteraction{
		createMessage: e.CreateMessage,
		deferCreate:   e.DeferCreateMessage,
		rest:          e.Client().Rest,
		appID:         e.ApplicationID(),
		token:         e.Token(),
		channelID:     e.Channel().ID(),
	}
}

func componentInteraction(e *events.ComponentInteractionCreate) *eventInteraction {
	return &eventInteraction{
		createMessage: e.CreateMessage,
		deferCreate:   e.DeferCreateMessage,
		updateMessage: e.UpdateMessage,
		deferUpdate:   e.DeferUpdateMessage,
		rest:          e.Client().Rest,
		appID:         e.ApplicationID(),
		token:         e.Token(),
		channelID:     e.Channel().ID(),
	}
}

func (i *eventInteraction) CreateMessage(msg discord.MessageCreate) error {
	return i.createMessage(msg)
}

func (i *eventInteraction) DeferCreateMessage(ephemeral bool) error {
	return i.deferCreate(ephemeral)
}

func (i *eventInteraction) UpdateMessage(msg discord.MessageUpdate) error {
	if i.updateMessage == nil {
		return errNotComponent
	}
	return i.updateMessage(msg)
}

func (i *eventInteraction) DeferUpdateMessage() error {
	if i.deferUpdate == nil {
		return errNotComponent
	}
	return i.deferUpdate()
}

func (i *eventInteraction) CreateFollowup(msg discord.MessageCreate) error {
	_, err := i.rest.CreateFollowupMessage(i.appID, i.token, msg)
	return err
}

func (i *eventInteraction) SendToChannel(msg discord.MessageCreate) error {
	_, err := i.rest.CreateMessage(i.channelID, msg)
	return err
}

// EditOriginal edits the first response of the interaction.
func (i *eventInteraction) EditOriginal(msg discord.MessageUpdate) error {
	_, err := i.rest.UpdateInteractionResponse(i.appID, i.token, msg)
	return err
}
