package commands

import (
	"fmt"

	"github.com/disgoorg/disgo/discord"

	"github.com/leeineian/singularity/internal/bot"
	"github.com/leeineian/singularity/internal/ui"
)

const msgSupportFmt = "[Click here](%s) to join the support server."

func supportCommand(invite string) bot.Command {
	return bot.Command{
		Create: discord.SlashCommandCreate{
			Name:        "support",
			Description: "Get the support server invite link",
		},
		Handler: func(c *bot.Context) error {
			embed := ui.QuickEmbed(fmt.Sprintf(msgSupportFmt, invite), ui.ColourSuccess)
			return c.Reply(discord.NewMessageCreate().WithEmbeds(embed).WithEphemeral(true))
		},
		Unlisted: true,
		Menu:     MenuMain,
	}
}
