// Package bot connects the command registry, the owner console and the
// worker manager to the platform client and routes its events.
package bot

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disgoorg/disgo"
	disgobot "github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"

	"github.com/leeineian/singularity/internal/config"
	"github.com/leeineian/singularity/internal/logger"
	"github.com/leeineian/singularity/internal/owner"
	"github.com/leeineian/singularity/internal/permissions"
	"github.com/leeineian/singularity/internal/worker"
)

const (
	MsgBotUp       = "Bot is up. Setting up..."
	MsgBotReady    = "Bot is ready."
	MsgBeepBoop    = "BeepBoop"
	MsgBotShutdown = "Shutting down..."
)

var errMalformedToken = errors.New("malformed bot token")

// ConfigStore keeps the command sync state.
type ConfigStore interface {
	GetBotConfig(ctx context.Context, key string) (string, error)
	SetBotConfig(ctx context.Context, key, value string) error
}

// WorkerRunner is the part of the worker manager the bot drives.
type WorkerRunner interface {
	Run(ctx context.Context) error
	Trigger(name string) error
	Snapshot() []worker.Status
}

type Options struct {
	Config      *config.Config
	Registry    *Registry
	Store       ConfigStore
	Permissions permissions.Lookup
	Workers     WorkerRunner
	Hub         *logger.Hub
	StartedAt   time.Time
}

// Bot owns the platform client and everything wired to its events.
type Bot struct {
	Config      *config.Config
	Client      *disgobot.Client
	Registry    *Registry
	Store       ConfigStore
	Permissions permissions.Lookup
	Workers     WorkerRunner
	Owner       *owner.Console
	Hub         *logger.Hub

	info      *logger.Logger
	errLog    *logger.Logger
	handlers  *logger.Logger
	events    *logger.Logger
	dm        *logger.DMLogger
	sender    logger.ChannelSender
	selfID    atomic.Uint64
	syncLog   *logger.Logger
	startedAt time.Time

	appCtx    context.Context
	readyOnce sync.Once
	workersWG sync.WaitGroup
}

// New builds the bot and its platform client. The gateway is not opened.
func New(ctx context.Context, opts Options) (*Bot, error) {
	b := newBot(ctx, opts)

	client, err := disgo.New(opts.Config.Token,
		disgobot.WithGatewayConfigOpts(
			gateway.WithIntents(
				gateway.IntentGuilds,
				gateway.IntentGuildMessages,
				gateway.IntentGuildMembers,
				gateway.IntentDirectMessages,
				gateway.IntentMessageContent,
			),
			gateway.WithPresenceOpts(
				gateway.WithPlayingActivity("Loading..."),
				gateway.WithOnlineStatus(discord.OnlineStatusOnline),
			),
		),
		disgobot.WithCacheConfigOpts(
			cache.WithCaches(cache.FlagGuilds, cache.FlagMembers, cache.FlagRoles, cache.FlagChannels),
		),
		disgobot.WithEventListenerFunc(b.onReady),
		disgobot.WithEventListenerFunc(b.onMessageCreate),
		disgobot.WithEventListenerFunc(b.onApplicationCommand),
		disgobot.WithEventListenerFunc(b.onComponent),
		disgobot.WithEventListenerFunc(b.onAutocomplete),
		disgobot.WithLogger(slog.Default()),
		disgobot.WithRestClientConfigOpts(
			rest.WithHTTPClient(&http.Client{
				Timeout: 60 * time.Second,
				Transport: &http.Transport{
					MaxIdleConns:        100,
					MaxIdleConnsPerHost: 50,
					IdleConnTimeout:     90 * time.Second,
				},
			}),
		),
	)
	if err != nil {
		return nil, err
	}

	b.Client = client
	b.sender = client.Rest
	if id, err := botIDFromToken(opts.Config.Token); err == nil {
		b.setSelfID(id)
	} else {
		logger.LogWarn("Could not read the bot ID from the token: %v", err)
	}
	if opts.Hub != nil {
		opts.Hub.SetRemote(logger.NewRemoteSink(client.Rest, opts.Config.LoggingChannelID))
	}
	b.Owner = owner.NewConsole(owner.Options{
		Prefix:      opts.Config.OwnerPrefix,
		Owners:      opts.Config.OwnerIDs,
		Backend:     ownerBackend{b},
		Workers:     b.workerSnapshot,
		Permissions: permissionDump(opts.Permissions),
		StartedAt:   b.startedAt,
	})
	return b, nil
}

// newBot sets up everything that does not need the platform client.
func newBot(ctx context.Context, opts Options) *Bot {
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.Permissions == nil {
		opts.Permissions = permissions.NewTable(nil)
	}
	if opts.StartedAt.IsZero() {
		opts.StartedAt = time.Now()
	}
	hub := opts.Hub
	if hub == nil {
		hub = logger.NewHub(logger.HubOptions{})
	}
	return &Bot{
		Config:      opts.Config,
		Registry:    opts.Registry,
		Store:       opts.Store,
		Permissions: opts.Permissions,
		Workers:     opts.Workers,
		Hub:         hub,
		info:        hub.Info("ON_READY_EVENT"),
		errLog:      hub.Error("ON_ERROR"),
		handlers:    hub.Error("InteractionsHandler"),
		events:      hub.Info("InteractionsHandler"),
		dm:          hub.DM("ON_MESSAGE"),
		syncLog:     hub.Component("COMMAND_SYNC"),
		startedAt:   opts.StartedAt,
		appCtx:      ctx,
	}
}

// botIDFromToken decodes the bot user ID from the first segment of a bot
// token. Older applications have an application ID that differs from it.
func botIDFromToken(token string) (snowflake.ID, error) {
	first, _, _ := strings.Cut(strings.TrimPrefix(token, "Bot "), ".")
	if first == "" {
		return 0, errMalformedToken
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(first, "="))
	if err != nil {
		if raw, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(first, "=")); err != nil {
			return 0, fmt.Errorf("%w: %v", errMalformedToken, err)
		}
	}
	id, err := snowflake.Parse(string(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errMalformedToken, err)
	}
	return id, nil
}

// SelfID is the bot's user ID.
func (b *Bot) SelfID() snowflake.ID { return snowflake.ID(b.selfID.Load()) }

func (b *Bot) setSelfID(id snowflake.ID) { b.selfID.Store(uint64(id)) }

func (b *Bot) workerSnapshot() []worker.Status {
	if b.Workers == nil {
		return nil
	}
	return b.Workers.Snapshot()
}

func permissionDump(lookup permissions.Lookup) owner.PermissionDump {
	if d, ok := lookup.(owner.PermissionDump); ok {
		return d
	}
	return nil
}

// Open connects to the gateway.
func (b *Bot) Open(ctx context.Context) error {
	return b.Client.OpenGateway(ctx)
}

// Close waits for the workers to stop, delivers pending log records while
// the REST client is still usable and closes the client.
func (b *Bot) Close(ctx context.Context) {
	b.info.Log(MsgBotShutdown, logger.ToDiscord(true))

	done := make(chan struct{})
	go func() {
		b.workersWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.LogWarn("Timed out waiting for workers to stop")
	}

	if err := b.Hub.Flush(ctx); err != nil {
		logger.LogWarn("Log records still pending at shutdown: %v", err)
	}
	if b.Client != nil {
		b.Client.Close(ctx)
	}
}

// SetStatus shows text as the bot's activity.
func (b *Bot) SetStatus(ctx context.Context, text string) error {
	return b.Client.SetPresence(ctx,
		gateway.WithPlayingActivity(text),
		gateway.WithOnlineStatus(discord.OnlineStatusOnline),
	)
}

// Latency is the current gateway heartbeat latency.
func (b *Bot) Latency() time.Duration {
	if b.Client == nil || b.Client.Gateway == nil {
		return 0
	}
	return b.Client.Gateway.Latency()
}

// StartedAt is when the process started.
func (b *Bot) StartedAt() time.Time { return b.startedAt }
