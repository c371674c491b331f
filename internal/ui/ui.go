// Package ui holds the colour palette and small embed helpers shared by
// commands, the owner console and the remote log sink.
package ui

import (
	"strings"

	"github.com/disgoorg/disgo/discord"
)

// Palette.
const (
	ColourPrimaryAccent = 0x402349
	ColourRed           = 0xB94D35
	ColourGreen         = 0x8ADE87
	ColourBlack         = 0x000000
	ColourBrown         = 0xAC7731
	ColourWarmGold      = 0xFFBF52
	ColourHotOrange     = 0xD6581A
	ColourSilver        = 0xA8A8A8
	ColourDeepBlue      = 0x364B92
	ColourSkyBlue       = 0x6AC8FD
	ColourCloudyPurple  = 0x2B2D42
	ColourBlurple       = 0x5539CC
	ColourWhite         = 0xFFFFFF

	ColourError       = ColourRed
	ColourSuccess     = ColourGreen
	ColourSystem      = ColourBlack
	ColourWarning     = ColourBrown
	ColourUnfortunate = ColourHotOrange
)

// MaxEmbedFields is the platform limit on fields per embed.
const MaxEmbedFields = 25

// Field is a name/value pair rendered as an embed field.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// QuickEmbed returns an embed with only a description and colour.
func QuickEmbed(text string, colour int) discord.Embed {
	return discord.Embed{Description: text, Color: colour}
}

// EmbedSpec describes the optional parts of a quick embed message.
type EmbedSpec struct {
	Title       string
	Description string
	Colour      int
	Fields      []Field
	Thumbnail   string
	Image       string
	Footer      string
}

// Build renders the spec into a discord embed, capping the field count.
func (s EmbedSpec) Build() discord.Embed {
	embed := discord.Embed{
		Title:       s.Title,
		Description: s.Description,
		Color:       s.Colour,
	}
	for i, f := range s.Fields {
		if i == MaxEmbedFields {
			break
		}
		embed.Fields = append(embed.Fields, discord.EmbedField{Name: f.Name, Value: f.Value, Inline: boolPtr(f.Inline)})
	}
	if s.Thumbnail != "" {
		embed.Thumbnail = &discord.EmbedResource{URL: s.Thumbnail}
	}
	if s.Image != "" {
		embed.Image = &discord.EmbedResource{URL: s.Image}
	}
	if s.Footer != "" {
		embed.Footer = &discord.EmbedFooter{Text: s.Footer}
	}
	return embed
}

// HumanizePermission turns "manage_messages" into "Manage Messages".
func HumanizePermission(name string) string {
	words := strings.Fields(strings.ReplaceAll(name, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

// Truncate cuts s to maxLen runes, appending an ellipsis when shortened.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

func boolPtr(b bool) *bool { return &b }
