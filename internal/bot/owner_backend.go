package bot

import (
	"context"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"

	"github.com/leeineian/singularity/internal/owner"
)

// ownerBackend serves the owner console from the client cache and REST API.
type ownerBackend struct{ b *Bot }

func (o ownerBackend) Send(ctx context.Context, channelID snowflake.ID, embed discord.Embed) error {
	_, err := o.b.SendMessage(ctx, channelID, discord.NewMessageCreate().WithEmbeds(embed))
	return err
}

func (o ownerBackend) Guild(id snowflake.ID) (owner.GuildInfo, bool) {
	g, ok := o.b.Client.Caches.Guild(id)
	if !ok {
		return owner.GuildInfo{}, false
	}
	return o.guildInfo(g), true
}

func (o ownerBackend) Guilds() []owner.GuildInfo {
	var out []owner.GuildInfo
	for g := range o.b.Client.Caches.Guilds() {
		out = append(out, o.guildInfo(g))
	}
	return out
}

func (o ownerBackend) LeaveGuild(ctx context.Context, id snowflake.ID) error {
	return o.b.Client.Rest.LeaveGuild(id, rest.WithCtx(ctx))
}

// SyncCommands always re-registers since the owner asked for it.
func (o ownerBackend) SyncCommands(ctx context.Context, guildID *snowflake.ID) error {
	return o.b.SyncCommands(ctx, guildID, true)
}

func (o ownerBackend) guildInfo(g discord.Guild) owner.GuildInfo {
	caches := o.b.Client.Caches

	var members []discord.Member
	for m := range caches.Members(g.ID) {
		members = append(members, m)
	}
	channels := 0
	for ch := range caches.Channels() {
		if ch.GuildID() == g.ID {
			channels++
		}
	}
	ownerName := ""
	if m, ok := caches.Member(g.ID, g.OwnerID); ok {
		ownerName = m.User.Username
	}
	botAdmin := false
	if self, ok := caches.Member(g.ID, o.b.SelfID()); ok {
		botAdmin = MemberPermissions(caches, g.ID, self, nil).Has(discord.PermissionAdministrator)
	}
	return buildGuildInfo(g, members, channels, ownerName, botAdmin)
}

func buildGuildInfo(g discord.Guild, members []discord.Member, channels int, ownerName string, botAdmin bool) owner.GuildInfo {
	info := owner.GuildInfo{
		ID:           g.ID,
		Name:         g.Name,
		OwnerID:      g.OwnerID,
		OwnerName:    ownerName,
		MemberCount:  len(members),
		ChannelCount: channels,
		BotIsAdmin:   botAdmin,
	}
	for _, m := range members {
		info.Members = append(info.Members, owner.Member{ID: m.User.ID, Bot: m.User.Bot})
	}
	return info
}
