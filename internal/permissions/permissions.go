// Package permissions loads the per-command permission requirements and
// checks invocations against them.
package permissions

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/disgoorg/disgo/discord"

	"github.com/leeineian/singularity/internal/ui"
)

// Entry lists the permissions a command needs from the invoking member and
// from the bot itself.
type Entry struct {
	Member []string `json:"member"`
	Bot    []string `json:"bot"`
}

// Lookup resolves a fully qualified command name to its requirements.
// Unknown commands resolve to an empty Entry.
type Lookup interface {
	Get(command string) Entry
}

// Table is the immutable, loaded permission mapping.
type Table struct {
	entries map[string]Entry
}

// Load reads the permission file at path.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read permissions file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a permission mapping. Missing lists default to empty and
// unknown permission names are rejected.
func Parse(data []byte) (*Table, error) {
	raw := map[string]Entry{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode permissions file: %w", err)
	}

	entries := make(map[string]Entry, len(raw))
	for command, e := range raw {
		for _, name := range append(append([]string{}, e.Member...), e.Bot...) {
			if _, ok := ParseName(name); !ok {
				return nil, fmt.Errorf("command %q: unknown permission %q", command, name)
			}
		}
		entries[command] = Entry{
			Member: append([]string{}, e.Member...),
			Bot:    append([]string{}, e.Bot...),
		}
	}
	return &Table{entries: entries}, nil
}

// NewTable builds a table from entries already in memory.
func NewTable(entries map[string]Entry) *Table {
	t := &Table{entries: make(map[string]Entry, len(entries))}
	for k, v := range entries {
		t.entries[k] = v
	}
	return t
}

func (t *Table) Get(command string) Entry {
	if t == nil {
		return Entry{Member: []string{}, Bot: []string{}}
	}
	e, ok := t.entries[command]
	if !ok {
		return Entry{Member: []string{}, Bot: []string{}}
	}
	return Entry{Member: append([]string{}, e.Member...), Bot: append([]string{}, e.Bot...)}
}

// Commands returns the configured command names in sorted order.
func (t *Table) Commands() []string {
	if t == nil {
		return nil
	}
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Actor is the permission state of an invocation.
type Actor struct {
	InGuild   bool
	HasMember bool
	Member    discord.Permissions
	Bot       discord.Permissions
}

// Check returns the required permissions the member and the bot lack, in
// declaration order. Invocations outside a guild never lack anything.
func Check(lookup Lookup, command string, actor Actor) (missingUser, missingBot []string) {
	missingUser, missingBot = []string{}, []string{}
	if !actor.InGuild {
		return missingUser, missingBot
	}

	entry := lookup.Get(command)
	if len(entry.Member) > 0 {
		if !actor.HasMember {
			return missingUser, missingBot
		}
		missingUser = missing(entry.Member, actor.Member)
	}
	if len(entry.Bot) > 0 {
		missingBot = missing(entry.Bot, actor.Bot)
	}
	return missingUser, missingBot
}

func missing(required []string, have discord.Permissions) []string {
	out := []string{}
	if have.Has(discord.PermissionAdministrator) {
		return out
	}
	for _, name := range required {
		p, ok := ParseName(name)
		if !ok || !have.Has(p) {
			out = append(out, name)
		}
	}
	return out
}

// Describe turns missing permission lists into the guidance shown to the
// user. It returns "" when nothing is missing.
func Describe(missingUser, missingBot []string) string {
	if len(missingUser) == 0 && len(missingBot) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Please ensure that:")
	if len(missingUser) > 0 {
		b.WriteString("\n• You have the following permissions: " + boldList(missingUser))
	}
	if len(missingBot) > 0 {
		b.WriteString("\n• I have the following permissions: " + boldList(missingBot))
	}
	return b.String()
}

func boldList(names []string) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = "**" + ui.HumanizePermission(n) + "**"
	}
	return strings.Join(parts, ", ")
}
