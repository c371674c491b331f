package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sahilm/fuzzy"

	"github.com/leeineian/singularity/internal/bot"
	"github.com/leeineian/singularity/internal/ui"
	"github.com/leeineian/singularity/internal/worker"
)

const (
	workersName   = "workers"
	workersPrefix = "workers:"
	optionRun     = "run"

	workersActionConfirm = "confirm"
	workersActionCancel  = "cancel"

	MsgNotConfirmed      = "Action not confirmed."
	MsgNoWorkers         = "No workers registered."
	msgUnknownWorkerFmt  = "There is no worker called **%s**."
	msgConfirmRunFmt     = "Run the **%s** worker now?"
	msgTriggeredFmt      = "Triggered the **%s** worker."
	msgTriggerFailedFmt  = "Could not run **%s**: %v"
	maxAutocompleteItems = 25
)

var errWorkersOffline = errors.New("workers are not running")

type workersCommand struct {
	control WorkerControl
}

func (w *workersCommand) command() bot.Command {
	manageGuild := discord.PermissionManageGuild
	return bot.Command{
		Create: discord.SlashCommandCreate{
			Name:                     workersName,
			Description:              "Show the background workers or run one now",
			DefaultMemberPermissions: omit.New(&manageGuild),
			Contexts: []discord.InteractionContextType{
				discord.InteractionContextTypeGuild,
			},
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:         optionRun,
					Description:  "Worker to run immediately",
					Autocomplete: true,
				},
			},
		},
		Handler:   w.handle,
		GuildOnly: true,
		Menu:      MenuMain,
	}
}

func (w *workersCommand) handle(c *bot.Context) error {
	run, _ := c.SlashData.OptString(optionRun)
	return w.respond(c, strings.TrimSpace(run))
}

func (w *workersCommand) respond(c *bot.Context, run string) error {
	if run == "" {
		return c.Reply(discord.NewMessageCreate().
			WithEmbeds(w.listEmbed()).
			WithEphemeral(c.SendAsEphemeral(false)))
	}
	if !w.known(run) {
		return c.ErrorReply(fmt.Sprintf(msgUnknownWorkerFmt, run))
	}

	row := discord.NewActionRow(
		discord.NewButton(discord.ButtonStyleSuccess, "Confirm", workersID(workersActionConfirm, c.User.ID, run), "", 0),
		discord.NewButton(discord.ButtonStyleDanger, "Cancel", workersID(workersActionCancel, c.User.ID, run), "", 0),
	)
	return c.Reply(discord.NewMessageCreate().
		WithEmbeds(ui.QuickEmbed(fmt.Sprintf(msgConfirmRunFmt, run), ui.ColourWarning)).
		WithComponents(row).
		WithEphemeral(true))
}

func (w *workersCommand) listEmbed() discord.Embed {
	var b strings.Builder
	for _, st := range w.snapshot() {
		b.WriteString(st.Summary())
		b.WriteString("\n")
	}
	desc := b.String()
	if desc == "" {
		desc = MsgNoWorkers
	}
	return ui.EmbedSpec{Title: "Workers", Description: ui.Truncate(desc, 4096), Colour: ui.ColourPrimaryAccent}.Build()
}

func (w *workersCommand) handleComponent(c *bot.Context) error {
	action, ownerID, name, err := parseWorkersID(c.CustomID)
	if err != nil {
		return err
	}
	if c.User.ID != ownerID {
		return c.DeferUpdate()
	}

	var embed discord.Embed
	switch action {
	case workersActionCancel:
		embed = ui.QuickEmbed(MsgNotConfirmed, ui.ColourUnfortunate)
	case workersActionConfirm:
		if err := w.trigger(name); err != nil {
			embed = ui.QuickEmbed(fmt.Sprintf(msgTriggerFailedFmt, name, err), ui.ColourError)
		} else {
			embed = ui.QuickEmbed(fmt.Sprintf(msgTriggeredFmt, name), ui.ColourSuccess)
		}
	default:
		return fmt.Errorf("unknown workers action %q", action)
	}
	return c.Update(discord.MessageUpdate{
		Embeds:     &[]discord.Embed{embed},
		Components: clearComponents(),
	})
}

func (w *workersCommand) autocomplete(e *events.AutocompleteInteractionCreate) error {
	f := e.Data.Focused()
	if f.Name != optionRun {
		return e.AutocompleteResult(nil)
	}
	return e.AutocompleteResult(w.choices(f.String()))
}

// choices returns the worker names matching query, best match first.
func (w *workersCommand) choices(query string) []discord.AutocompleteChoice {
	names := w.names()
	out := make([]discord.AutocompleteChoice, 0, len(names))
	if query == "" {
		for _, n := range names {
			out = append(out, discord.AutocompleteChoiceString{Name: n, Value: n})
		}
	} else {
		for _, m := range fuzzy.Find(strings.ToLower(query), names) {
			out = append(out, discord.AutocompleteChoiceString{Name: m.Str, Value: m.Str})
		}
	}
	if len(out) > maxAutocompleteItems {
		out = out[:maxAutocompleteItems]
	}
	return out
}

func (w *workersCommand) trigger(name string) error {
	if w.control == nil {
		return errWorkersOffline
	}
	return w.control.Trigger(name)
}

func (w *workersCommand) snapshot() []worker.Status {
	if w.control == nil {
		return nil
	}
	return w.control.Snapshot()
}

func (w *workersCommand) names() []string {
	snap := w.snapshot()
	names := make([]string, 0, len(snap))
	for _, st := range snap {
		names = append(names, st.Name)
	}
	return names
}

func (w *workersCommand) known(name string) bool {
	for _, n := range w.names() {
		if n == name {
			return true
		}
	}
	return false
}

func workersID(action string, owner snowflake.ID, name string) string {
	return workersPrefix + action + ":" + owner.String() + ":" + name
}

func parseWorkersID(customID string) (action string, owner snowflake.ID, name string, err error) {
	parts := strings.SplitN(strings.TrimPrefix(customID, workersPrefix), ":", 3)
	if len(parts) != 3 {
		return "", 0, "", fmt.Errorf("malformed workers custom id %q", customID)
	}
	owner, err = snowflake.Parse(parts[1])
	if err != nil {
		return "", 0, "", fmt.Errorf("malformed workers custom id %q: %w", customID, err)
	}
	return parts[0], owner, parts[2], nil
}
