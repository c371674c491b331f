package bot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"golang.org/x/sync/errgroup"

	"github.com/leeineian/singularity/internal/logger"
	"github.com/leeineian/singularity/internal/store"
)

const (
	modeGlobal = "global"
	modeGuild  = "guild"
)

// syncPlan lists what a command sync has to do.
type syncPlan struct {
	Mode     string
	Register bool
	// ScanGuilds clears the commands of every guild the bot is in, except
	// the target guild in guild mode.
	ScanGuilds  bool
	ClearGlobal bool
	// ClearGuild is a previously targeted guild whose commands are stale.
	ClearGuild string
}

// CommandHash fingerprints a command payload.
func CommandHash(cmds []discord.ApplicationCommandCreate) string {
	data, err := json.Marshal(cmds)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

type syncState struct {
	Hash, Mode, GuildID string
}

func planSync(current, last syncState, force bool) syncPlan {
	p := syncPlan{Mode: current.Mode, Register: true}
	if current.Hash != "" && current.Hash == last.Hash && current.Mode == last.Mode && current.GuildID == last.GuildID && !force {
		p.Register = false
	}

	modeChanged := current.Mode != last.Mode
	if current.Mode == modeGlobal {
		p.ScanGuilds = force || modeChanged
		p.ClearGuild = last.GuildID
		return p
	}

	p.ClearGlobal = force || modeChanged
	p.ScanGuilds = force
	if last.GuildID != "" && last.GuildID != current.GuildID {
		p.ClearGuild = last.GuildID
	}
	return p
}

// SyncCommands pushes the registered commands to guildID, or globally when
// guildID is nil. Unchanged payloads are skipped unless force is set.
func (b *Bot) SyncCommands(ctx context.Context, guildID *snowflake.ID, force bool) error {
	cmds := b.Registry.Creates()
	current := syncState{Hash: CommandHash(cmds), Mode: modeGlobal}
	if guildID != nil {
		current.Mode = modeGuild
		current.GuildID = guildID.String()
	}

	last := b.loadSyncState(ctx)
	plan := planSync(current, last, force)
	logger.LogInfo("Syncing commands (%s)", strings.ToUpper(plan.Mode))
	logger.LogDebug("Sync plan: register=%t clear_global=%t clear_guild=%q scan_guilds=%t",
		plan.Register, plan.ClearGlobal, plan.ClearGuild, plan.ScanGuilds)

	appID := b.Client.ApplicationID
	r := b.Client.Rest
	if plan.Register {
		var (
			created []discord.ApplicationCommand
			err     error
		)
		if guildID == nil {
			created, err = r.SetGlobalCommands(appID, cmds, rest.WithCtx(ctx))
		} else {
			created, err = r.SetGuildCommands(appID, *guildID, cmds, rest.WithCtx(ctx))
		}
		if err != nil {
			return fmt.Errorf("failed to register %s commands: %w", plan.Mode, err)
		}
		for _, cmd := range created {
			logger.LogInfo("Registered command: %s", cmd.Name())
		}
		b.syncLog.Logf("Registered %d %s commands.", len(created), plan.Mode)
	} else if len(current.Hash) >= 8 {
		logger.LogInfo("Commands are up to date. (Hash: %s)", current.Hash[:8])
	}

	if plan.ClearGlobal {
		if existing, err := r.GetGlobalCommands(appID, false, rest.WithCtx(ctx)); err == nil && len(existing) > 0 {
			logger.LogInfo("Clearing global commands")
			if _, err := r.SetGlobalCommands(appID, []discord.ApplicationCommandCreate{}, rest.WithCtx(ctx)); err != nil {
				logger.LogWarn("Failed to clear global commands: %v", err)
			}
		}
	}

	if plan.ClearGuild != "" {
		if id, err := snowflake.Parse(plan.ClearGuild); err == nil {
			b.clearGuildCommands(ctx, id, plan.ClearGuild)
		}
	}

	if plan.ScanGuilds {
		b.scanGuildCommands(ctx, guildID)
	}

	b.saveSyncState(ctx, current)
	return nil
}

// loadSyncState reads the last sync from the store. Unreadable keys are
// logged and treated as unset, which forces a registration.
func (b *Bot) loadSyncState(ctx context.Context) syncState {
	var last syncState
	if b.Store == nil {
		return last
	}
	for key, dst := range map[string]*string{
		store.KeyLastCommandHash: &last.Hash,
		store.KeyLastRegMode:     &last.Mode,
		store.KeyLastGuildID:     &last.GuildID,
	} {
		v, err := b.Store.GetBotConfig(ctx, key)
		if err != nil {
			logger.LogDatabase("Failed to read %s: %v", key, err)
			continue
		}
		*dst = v
	}
	return last
}

func (b *Bot) saveSyncState(ctx context.Context, current syncState) {
	if b.Store == nil {
		return
	}
	values := [][2]string{
		{store.KeyLastRegMode, current.Mode},
		{store.KeyLastGuildID, current.GuildID},
	}
	if current.Hash != "" {
		values = append(values, [2]string{store.KeyLastCommandHash, current.Hash})
	}
	for _, kv := range values {
		if err := b.Store.SetBotConfig(ctx, kv[0], kv[1]); err != nil {
			logger.LogDatabase("Failed to save %s: %v", kv[0], err)
		}
	}
}

func (b *Bot) clearGuildCommands(ctx context.Context, id snowflake.ID, name string) {
	r := b.Client.Rest
	existing, err := r.GetGuildCommands(b.Client.ApplicationID, id, false, rest.WithCtx(ctx))
	if err != nil || len(existing) == 0 {
		return
	}
	logger.LogInfo("Cleared commands in %s (%s)", name, id)
	_, _ = r.SetGuildCommands(b.Client.ApplicationID, id, []discord.ApplicationCommandCreate{}, rest.WithCtx(ctx))
}

// scanGuildCommands clears leftover commands in every guild except keep.
func (b *Bot) scanGuildCommands(ctx context.Context, keep *snowflake.ID) {
	logger.LogInfo("Scanning guilds for stale commands")
	guilds, err := b.Client.Rest.GetCurrentUserGuilds("", 0, 0, 100, false, rest.WithCtx(ctx))
	if err != nil {
		logger.LogWarn("Failed to list guilds: %v", err)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(5)
	for _, guild := range guilds {
		if keep != nil && guild.ID == *keep {
			continue
		}
		g.Go(func() error {
			b.clearGuildCommands(gctx, guild.ID, guild.Name)
			return nil
		})
	}
	_ = g.Wait()
}
