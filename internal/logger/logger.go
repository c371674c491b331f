package logger

import (
	"fmt"
	"strings"
)

// Logger is bound to a component and carries per-kind delivery defaults.
type Logger struct {
	hub           *Hub
	component     string
	defaultType   Type
	fileDefault   bool
	remoteDefault bool
}

// Option adjusts a single Log call.
type Option func(*entry)

type entry struct {
	typ      Type
	toFile   bool
	toRemote bool
	extras   []Extra
}

func WithType(t Type) Option { return func(e *entry) { e.typ = t } }

func ToFile(b bool) Option { return func(e *entry) { e.toFile = b } }

func ToDiscord(b bool) Option { return func(e *entry) { e.toRemote = b } }

// With attaches an extra key/value pair.
func With(key string, value any) Option {
	return func(e *entry) { e.extras = append(e.extras, Extra{Key: key, Value: value}) }
}

// Component returns a general purpose logger that writes to every sink.
func (h *Hub) Component(component string) *Logger {
	return h.newLogger(component, TypeGeneral, true, true)
}

// Info returns a logger that writes to the file only by default.
func (h *Hub) Info(component string) *Logger {
	return h.newLogger(component, TypeInfo, true, false)
}

// Error returns a logger that writes to the file and the logging channel.
func (h *Hub) Error(component string) *Logger {
	return h.newLogger(component, TypeError, true, true)
}

// DM returns a logger for direct messages received by the bot.
func (h *Hub) DM(component string) *DMLogger {
	return &DMLogger{Logger: h.newLogger(component, TypeDMReceived, true, true)}
}

func (h *Hub) newLogger(component string, t Type, file, remote bool) *Logger {
	if component == "" {
		component = "Unspecified Component"
	}
	return &Logger{hub: h, component: component, defaultType: t, fileDefault: file, remoteDefault: remote}
}

func (l *Logger) Log(message string, opts ...Option) {
	if l == nil || l.hub == nil {
		return
	}
	e := entry{typ: l.defaultType, toFile: l.fileDefault, toRemote: l.remoteDefault}
	for _, opt := range opts {
		opt(&e)
	}
	e.extras = append(e.extras, Extra{Key: "component", Value: l.component})

	l.hub.emit(Record{
		Type:      e.typ,
		Component: l.component,
		Message:   message,
		Extras:    e.extras,
	}, e.toFile, e.toRemote)
}

// Logf formats the message before logging it with the logger's defaults.
func (l *Logger) Logf(format string, v ...any) {
	l.Log(fmt.Sprintf(format, v...))
}

// DMLogger formats direct messages before logging them.
type DMLogger struct {
	*Logger
}

// DMAttachment describes a file attached to a direct message.
type DMAttachment struct {
	ContentType string
	Filename    string
	URL         string
}

// DMSticker describes a sticker sent in a direct message.
type DMSticker struct {
	Name string
	URL  string
}

// DMMessage is the platform independent view of a received direct message.
type DMMessage struct {
	AuthorName  string
	AuthorID    string
	Content     string
	Attachments []DMAttachment
	Stickers    []DMSticker
}

func (l *DMLogger) LogDM(m DMMessage, opts ...Option) {
	l.Log(FormatDM(m), opts...)
}

// FormatDM renders a direct message with its content quoted line by line
// followed by attachment and sticker listings.
func FormatDM(m DMMessage) string {
	var media strings.Builder
	if len(m.Attachments) > 0 {
		media.WriteString("**Attachments**:\n")
		for _, a := range m.Attachments {
			fmt.Fprintf(&media, "[%s] (%s) %s\n", a.ContentType, a.Filename, a.URL)
		}
	}
	if len(m.Stickers) > 0 {
		media.WriteString("**Stickers**:\n")
		for _, s := range m.Stickers {
			fmt.Fprintf(&media, "[sticker] (%s) %s\n", s.Name, s.URL)
		}
	}

	quoted := "> " + strings.ReplaceAll(strings.TrimSpace(m.Content), "\n", "\n> ")
	return fmt.Sprintf("Received message on DMs from %s (%s)\n%s\n%s", m.AuthorName, m.AuthorID, quoted, media.String())
}
