// Package commands holds the bot's slash commands and their component and
// autocomplete handlers.
package commands

import (
	"time"

	"github.com/disgoorg/disgo/discord"

	"github.com/leeineian/singularity/internal/bot"
	"github.com/leeineian/singularity/internal/worker"
)

// MenuMain is the help menu every public command is listed under.
const MenuMain = "Main"

// WorkerControl is the worker manager surface used by /workers.
type WorkerControl interface {
	Snapshot() []worker.Status
	Trigger(name string) error
}

type Deps struct {
	SupportInvite string
	Workers       WorkerControl
	// Self returns the bot user for embed authors and thumbnails.
	Self        func() (discord.User, bool)
	HelpTimeout time.Duration
}

// Register adds every command to r.
func Register(r *bot.Registry, deps Deps) error {
	help := &helpMenu{
		registry: r,
		invite:   deps.SupportInvite,
		self:     deps.Self,
		timeout:  deps.HelpTimeout,
	}
	if help.timeout <= 0 {
		help.timeout = HelpTimeout
	}
	workers := &workersCommand{control: deps.Workers}

	for _, cmd := range []bot.Command{
		help.command(),
		supportCommand(deps.SupportInvite),
		workers.command(),
	} {
		if err := r.AddCommand(cmd); err != nil {
			return err
		}
	}

	r.AddComponent(helpPrefix, help.handleComponent)
	r.AddComponent(workersPrefix, workers.handleComponent)
	r.AddAutocomplete(workersName, workers.autocomplete)
	return nil
}

func clearComponents() *[]discord.LayoutComponent {
	return &[]discord.LayoutComponent{}
}
