package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"

	"github.com/leeineian/singularity/internal/bot"
	"github.com/leeineian/singularity/internal/ui"
)

// HelpTimeout is how long the help menu buttons stay usable.
const HelpTimeout = 300 * time.Second

const (
	helpPrefix      = "help:"
	helpActionMain  = "main"
	helpActionBack  = "back"
	helpActionClose = "close"

	MsgHelpClosed  = "Help menu closed"
	msgHelpGeneral = "I have listed my most popular commands below. Click on each section to see the full commands list.\n‎"
	msgHelpMenuFmt = "Full list of %s commands.\n‎"
	footerGeneral  = "General Help Menu"
	footerMenu     = "Commands List"
	fieldMain      = "Main commands"
	fieldSupport   = "Join our support server"
	labelMain      = "Main Commands"
	labelBack      = "Back"
	labelClose     = "Close"
	optionMenu     = "menu"
	optionVisible  = "make-visible"
)

type helpMenu struct {
	registry *bot.Registry
	invite   string
	self     func() (discord.User, bool)
	timeout  time.Duration
}

func (h *helpMenu) command() bot.Command {
	return bot.Command{
		Create: discord.SlashCommandCreate{
			Name:        "help",
			Description: "Show the help menu",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        optionMenu,
					Description: "Jump to a specific menu",
					Choices: []discord.ApplicationCommandOptionChoiceString{
						{Name: MenuMain, Value: MenuMain},
					},
				},
				discord.ApplicationCommandOptionBool{
					Name:        optionVisible,
					Description: "Make the menu visible to everyone",
				},
			},
		},
		Handler:  h.handle,
		Unlisted: true,
		Menu:     MenuMain,
	}
}

func (h *helpMenu) handle(c *bot.Context) error {
	menu, _ := c.SlashData.OptString(optionMenu)
	visible, _ := c.SlashData.OptBool(optionVisible)
	return h.open(c, menu, visible)
}

// open sends the help menu and strips its buttons once the timeout passes.
func (h *helpMenu) open(c *bot.Context, menu string, visible bool) error {
	embed, row, err := h.view(menu, c.User.ID)
	if err != nil {
		return err
	}
	msg := discord.NewMessageCreate().
		WithEmbeds(embed).
		WithComponents(row).
		WithEphemeral(c.SendAsEphemeral(visible))
	if err := c.Reply(msg); err != nil {
		return err
	}

	time.AfterFunc(h.timeout, func() {
		_ = c.EditOriginal(discord.MessageUpdate{Components: clearComponents()})
	})
	return nil
}

func (h *helpMenu) handleComponent(c *bot.Context) error {
	action, ownerID, err := parseHelpID(c.CustomID)
	if err != nil {
		return err
	}
	if c.User.ID != ownerID && (action != helpActionClose || !canManageMessages(c)) {
		return c.DeferUpdate()
	}

	switch action {
	case helpActionMain, helpActionBack:
		menu := ""
		if action == helpActionMain {
			menu = MenuMain
		}
		embed, row, err := h.view(menu, ownerID)
		if err != nil {
			return err
		}
		return c.Update(discord.NewMessageUpdate().WithEmbeds(embed).WithComponents(row))
	case helpActionClose:
		return c.Update(discord.MessageUpdate{
			Embeds:     &[]discord.Embed{ui.QuickEmbed(MsgHelpClosed, ui.ColourPrimaryAccent)},
			Components: clearComponents(),
		})
	}
	return fmt.Errorf("unknown help action %q", action)
}

func canManageMessages(c *bot.Context) bool {
	if c.Member == nil {
		return false
	}
	p := c.Member.Permissions
	return p.Has(discord.PermissionManageMessages) || p.Has(discord.PermissionAdministrator)
}

func helpID(action string, owner snowflake.ID) string {
	return helpPrefix + action + ":" + owner.String()
}

func parseHelpID(customID string) (string, snowflake.ID, error) {
	parts := strings.Split(strings.TrimPrefix(customID, helpPrefix), ":")
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("malformed help custom id %q", customID)
	}
	owner, err := snowflake.Parse(parts[1])
	if err != nil {
		return "", 0, fmt.Errorf("malformed help custom id %q: %w", customID, err)
	}
	return parts[0], owner, nil
}

// view renders the general menu when menu is empty, otherwise the command
// list of menu.
func (h *helpMenu) view(menu string, owner snowflake.ID) (discord.Embed, discord.ActionRowComponent, error) {
	closeButton := discord.NewButton(discord.ButtonStyleDanger, labelClose, helpID(helpActionClose, owner), "", 0)
	if menu == "" {
		row := discord.NewActionRow(
			discord.NewButton(discord.ButtonStyleSuccess, labelMain, helpID(helpActionMain, owner), "", 0),
			closeButton,
		)
		return h.generalEmbed(), row, nil
	}
	if menu != MenuMain {
		return discord.Embed{}, discord.ActionRowComponent{}, fmt.Errorf("invalid help menu %q", menu)
	}
	row := discord.NewActionRow(
		discord.NewButton(discord.ButtonStyleSecondary, labelBack, helpID(helpActionBack, owner), "", 0),
		closeButton,
	)
	return h.menuEmbed(menu), row, nil
}

func (h *helpMenu) generalEmbed() discord.Embed {
	names := make([]string, 0)
	for _, cmd := range h.registry.Commands() {
		names = append(names, "**/"+cmd.Name()+"**")
	}
	spec := ui.EmbedSpec{
		Description: msgHelpGeneral,
		Colour:      ui.ColourPrimaryAccent,
		Fields:      []ui.Field{{Name: fieldMain, Value: "• " + strings.Join(names, " • ") + "\n‎"}},
		Footer:      footerGeneral,
	}
	if h.invite != "" {
		spec.Fields = append(spec.Fields, ui.Field{Name: fieldSupport, Value: h.invite + "\n"})
	}
	return h.decorate(spec, "")
}

func (h *helpMenu) menuEmbed(menu string) discord.Embed {
	spec := ui.EmbedSpec{
		Description: fmt.Sprintf(msgHelpMenuFmt, menu),
		Colour:      ui.ColourPrimaryAccent,
		Footer:      footerMenu,
	}
	for _, cmd := range h.registry.Menu(menu) {
		spec.Fields = append(spec.Fields, commandFields(cmd.Create)...)
	}
	return h.decorate(spec, menu+" Commands")
}

// commandFields lists a command, or each of its subcommands, as one inline
// field per qualified name.
func commandFields(create discord.SlashCommandCreate) []ui.Field {
	var fields []ui.Field
	for _, opt := range create.Options {
		switch o := opt.(type) {
		case discord.ApplicationCommandOptionSubCommand:
			fields = append(fields, ui.Field{Name: create.Name + " " + o.Name, Value: o.Description, Inline: true})
		case discord.ApplicationCommandOptionSubCommandGroup:
			for _, sub := range o.Options {
				fields = append(fields, ui.Field{Name: create.Name + " " + o.Name + " " + sub.Name, Value: sub.Description, Inline: true})
			}
		}
	}
	if len(fields) == 0 {
		fields = append(fields, ui.Field{Name: create.Name, Value: create.Description, Inline: true})
	}
	return fields
}

// decorate builds spec and adds the bot's name and avatar.
func (h *helpMenu) decorate(spec ui.EmbedSpec, author string) discord.Embed {
	var (
		self discord.User
		ok   bool
	)
	if h.self != nil {
		self, ok = h.self()
	}
	if ok {
		spec.Thumbnail = self.EffectiveAvatarURL()
		if author == "" {
			author = self.Username
		}
	}
	embed := spec.Build()
	if author != "" {
		embed.Author = &discord.EmbedAuthor{Name: author}
	}
	if ok && embed.Footer != nil {
		embed.Footer.IconURL = self.EffectiveAvatarURL()
	}
	return embed
}
