package owner

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/leeineian/singularity/internal/ui"
)

// GuildInfo is a cached summary of a guild the bot is in.
type GuildInfo struct {
	ID           snowflake.ID
	Name         string
	OwnerID      snowflake.ID
	OwnerName    string
	MemberCount  int
	Members      []Member
	ChannelCount int
	JoinedAt     time.Time
	BotIsAdmin   bool
}

// Member is a cached guild member.
type Member struct {
	ID  snowflake.ID
	Bot bool
}

// guildID reads the target guild from "-id <id>" or the first id in args.
func guildID(args string) (snowflake.ID, bool) {
	if v, ok := ParseOptions(args, "id")["id"].(string); ok {
		return idFromText(v)
	}
	return idFromText(args)
}

func (g GuildInfo) botCount() int {
	n := 0
	for _, m := range g.Members {
		if m.Bot {
			n++
		}
	}
	return n
}

func (c *Console) guildLeave(ctx context.Context, req request) error {
	id, ok := guildID(req.args)
	if !ok {
		return c.reply(ctx, req.msg, ui.QuickEmbed(MsgInvalidGuild, ui.ColourWhite))
	}
	guild, ok := c.backend.Guild(id)
	if !ok {
		return c.reply(ctx, req.msg, ui.QuickEmbed(MsgInvalidGuild, ui.ColourWhite))
	}
	if err := c.backend.LeaveGuild(ctx, id); err != nil {
		return fmt.Errorf("leave guild %s: %w", id, err)
	}
	return c.reply(ctx, req.msg, ui.QuickEmbed(fmt.Sprintf("Left guild `%s` (%s).", guild.Name, id), ui.ColourWhite))
}

func (c *Console) guildInfo(ctx context.Context, req request) error {
	id, ok := guildID(req.args)
	if !ok {
		return c.reply(ctx, req.msg, ui.QuickEmbed(MsgInvalidGuild, ui.ColourWhite))
	}
	guild, ok := c.backend.Guild(id)
	if !ok {
		return c.reply(ctx, req.msg, ui.QuickEmbed(MsgInvalidGuild, ui.ColourWhite))
	}
	return c.reply(ctx, req.msg, ui.QuickEmbed(FormatGuildInfo(guild, c.backend.Guilds()), ui.ColourWhite))
}

// FormatGuildInfo renders the "guild info" report for guild. all is every
// guild the bot is in and is used to count other guilds with the same owner.
func FormatGuildInfo(guild GuildInfo, all []GuildInfo) string {
	otherOwned := 0
	for _, g := range all {
		if g.OwnerID == guild.OwnerID && g.ID != guild.ID {
			otherOwned++
		}
	}
	bots := guild.botCount()
	humans := len(guild.Members) - bots

	var b strings.Builder
	fmt.Fprintf(&b, "**%s** (%s)\n\n", guild.Name, guild.ID)
	fmt.Fprintf(&b, "**Member count**: %d.\n", guild.MemberCount)
	fmt.Fprintf(&b, "**Owned by** %s (%s).\n", guild.OwnerName, guild.OwnerID)
	if otherOwned > 0 {
		fmt.Fprintf(&b, "**Bot is in** %d other guilds they own.\n", otherOwned)
	}
	fmt.Fprintf(&b, "**Created at** <t:%d:f>.\n", guild.ID.Time().Unix())
	if !guild.JoinedAt.IsZero() {
		fmt.Fprintf(&b, "**Joined at** <t:%d:f>.\n", guild.JoinedAt.Unix())
	}
	fmt.Fprintf(&b, "**Human count** = %d.\n", humans)
	fmt.Fprintf(&b, "**Bot count** = %d.\n", bots)
	fmt.Fprintf(&b, "**Bot Percentage** = %s%%\n", percent(bots, guild.MemberCount))
	fmt.Fprintf(&b, "**Admin status**: %t.\n", guild.BotIsAdmin)
	return b.String()
}

func (c *Console) stats(ctx context.Context, req request) error {
	return c.reply(ctx, req.msg, ui.QuickEmbed(FormatStats(c.backend.Guilds()), ui.ColourWhite))
}

// FormatStats renders member and bot totals across guilds. Ratios of empty
// populations are reported as zero.
func FormatStats(guilds []GuildInfo) string {
	var total, totalBots, channels int
	unique := map[snowflake.ID]bool{}
	for _, g := range guilds {
		for _, m := range g.Members {
			total++
			if m.Bot {
				totalBots++
			}
			unique[m.ID] = m.Bot
		}
		channels += g.ChannelCount
	}
	uniqueBots := 0
	for _, bot := range unique {
		if bot {
			uniqueBots++
		}
	}

	totalHumans := percent(total-totalBots, total)
	uniqueHumans := percent(len(unique)-uniqueBots, len(unique))

	var b strings.Builder
	b.WriteString("**Bot Stats**\n")
	fmt.Fprintf(&b, "**Guild count** = %d\n", len(guilds))
	fmt.Fprintf(&b, "**Total channel count** = %d\n", channels)
	fmt.Fprintf(&b, "**Total member count** = %d\n", total)
	fmt.Fprintf(&b, "  **-of which are bots** = %d\n", totalBots)
	fmt.Fprintf(&b, "**Unique user count** = %d\n", len(unique))
	fmt.Fprintf(&b, "  **-of which are bots** = %d\n", uniqueBots)
	fmt.Fprintf(&b, "**Total human/bot ratio** = %s%% humans, %s%% bots\n", totalHumans, percent(totalBots, total))
	fmt.Fprintf(&b, "**Unique user/bot ratio** = %s%% humans, %s%% bots", uniqueHumans, percent(uniqueBots, len(unique)))
	return b.String()
}

// percent returns part/whole as a percentage rounded to two decimals.
func percent(part, whole int) string {
	if whole <= 0 {
		return "0"
	}
	return formatFloat(float64(part) * 100 / float64(whole))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}
