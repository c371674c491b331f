package bot

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
)

// HandlerFunc handles a slash command or component interaction.
type HandlerFunc func(c *Context) error

// AutocompleteFunc answers an autocomplete request.
type AutocompleteFunc func(e *events.AutocompleteInteractionCreate) error

// Command is a registered slash command.
type Command struct {
	Create  discord.SlashCommandCreate
	Handler HandlerFunc
	// GuildOnly commands reply with an error when used in DMs.
	GuildOnly bool
	// Unlisted commands are hidden from the help menu.
	Unlisted bool
	// Menu is the help menu the command is listed under.
	Menu string
}

func (c Command) Name() string { return c.Create.Name }

// Registry maps command names and component custom IDs to handlers.
type Registry struct {
	mu           sync.RWMutex
	commands     []Command
	byName       map[string]int
	autocomplete map[string]AutocompleteFunc
	components   map[string]HandlerFunc
}

func NewRegistry() *Registry {
	return &Registry{
		byName:       make(map[string]int),
		autocomplete: make(map[string]AutocompleteFunc),
		components:   make(map[string]HandlerFunc),
	}
}

func (r *Registry) AddCommand(cmd Command) error {
	if cmd.Name() == "" || cmd.Handler == nil {
		return fmt.Errorf("command %q needs a name and a handler", cmd.Name())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[cmd.Name()]; ok {
		return fmt.Errorf("command %q already registered", cmd.Name())
	}
	r.byName[cmd.Name()] = len(r.commands)
	r.commands = append(r.commands, cmd)
	return nil
}

func (r *Registry) AddAutocomplete(command string, h AutocompleteFunc) {
	r.mu.Lock()
	r.autocomplete[command] = h
	r.mu.Unlock()
}

// AddComponent registers a component handler. A custom ID ending in ":"
// matches every custom ID that starts with it.
func (r *Registry) AddComponent(customID string, h HandlerFunc) {
	r.mu.Lock()
	r.components[customID] = h
	r.mu.Unlock()
}

func (r *Registry) Command(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byName[name]
	if !ok {
		return Command{}, false
	}
	return r.commands[i], true
}

// Commands returns every command in registration order.
func (r *Registry) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Command(nil), r.commands...)
}

// Menu returns the listed commands of a help menu in registration order.
func (r *Registry) Menu(menu string) []Command {
	var out []Command
	for _, c := range r.Commands() {
		if !c.Unlisted && c.Menu == menu {
			out = append(out, c)
		}
	}
	return out
}

// Creates returns the payload used to sync commands with the platform.
func (r *Registry) Creates() []discord.ApplicationCommandCreate {
	cmds := r.Commands()
	out := make([]discord.ApplicationCommandCreate, len(cmds))
	for i, c := range cmds {
		out[i] = c.Create
	}
	return out
}

func (r *Registry) Autocomplete(command string) (AutocompleteFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.autocomplete[command]
	return h, ok
}

// Component resolves a custom ID, preferring an exact match and then the
// longest matching prefix.
func (r *Registry) Component(customID string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.components[customID]; ok {
		return h, true
	}

	prefixes := make([]string, 0, len(r.components))
	for key := range r.components {
		if strings.HasSuffix(key, ":") && strings.HasPrefix(customID, key) {
			prefixes = append(prefixes, key)
		}
	}
	if len(prefixes) == 0 {
		return nil, false
	}
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })
	return r.components[prefixes[0]], true
}
