package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

var (
	// Level colors
	infoColor  = color.New()
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed)
	fatalColor = color.New(color.FgRed, color.Bold)
	debugColor = color.New(color.FgHiBlack)

	// Component colors
	databaseColor = color.New()
	workerColor   = color.New(color.FgMagenta)
	ownerColor    = color.New(color.FgYellow)
	gatewayColor  = color.New(color.FgBlue)

	DefaultTimeFormat = "15:04:05"

	// LevelFatal sits above slog.LevelError.
	LevelFatal = slog.LevelError + 4

	logMu sync.Mutex
)

func init() {
	InitLogger(os.Stdout, false, false)
}

// InitLogger installs the bot handler as the slog default.
func InitLogger(w io.Writer, silent, debug bool) *slog.Logger {
	logMu.Lock()
	defer logMu.Unlock()

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	handler := NewBotLogHandler(w, &BotLogHandlerOptions{
		Silent: silent,
		Level:  level,
	})
	l := slog.New(handler)
	slog.SetDefault(l)
	return l
}

func LogInfo(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...))
}

func LogWarn(format string, v ...any) {
	slog.Warn(fmt.Sprintf(format, v...))
}

func LogError(format string, v ...any) {
	slog.Error(fmt.Sprintf(format, v...))
}

func LogDebug(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...))
}

// LogFatal logs at fatal level and panics so deferred cleanup in main runs.
func LogFatal(format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	slog.Log(context.Background(), LevelFatal, msg)
	panic(msg)
}

func LogDatabase(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "database"))
}

func LogWorker(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "worker"))
}

func LogOwner(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "owner"))
}

func LogGateway(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "gateway"))
}

type BotLogHandlerOptions struct {
	Silent bool
	Level  slog.Leveler
}

// BotLogHandler renders records as coloured single lines:
//
//	15:04:05 [LEVEL] message
//	15:04:05 [Log Type] [COMPONENT] message [k=v] [k=v]
type BotLogHandler struct {
	w     io.Writer
	opts  *BotLogHandlerOptions
	mu    *sync.Mutex
	attrs []slog.Attr
}

func NewBotLogHandler(w io.Writer, opts *BotLogHandlerOptions) *BotLogHandler {
	if opts == nil {
		opts = &BotLogHandlerOptions{Level: slog.LevelInfo}
	}
	return &BotLogHandler{
		w:    w,
		opts: opts,
		mu:   &sync.Mutex{},
	}
}

func (h *BotLogHandler) Enabled(_ context.Context, level slog.Level) bool {
	if h.opts.Silent {
		return false
	}
	return level >= h.opts.Level.Level()
}

func (h *BotLogHandler) Handle(_ context.Context, r slog.Record) error {
	if h.opts.Silent {
		return nil
	}

	var levelStr string
	var levelColor *color.Color
	switch {
	case r.Level >= LevelFatal:
		levelStr, levelColor = "FATAL", fatalColor
	case r.Level >= slog.LevelError:
		levelStr, levelColor = "ERROR", errorColor
	case r.Level >= slog.LevelWarn:
		levelStr, levelColor = "WARN", warnColor
	case r.Level >= slog.LevelInfo:
		levelStr, levelColor = "INFO", infoColor
	default:
		levelStr, levelColor = "DEBUG", debugColor
	}

	var component, logType string
	var extras []string
	collect := func(a slog.Attr) bool {
		switch a.Key {
		case "component":
			component = strings.ToUpper(a.Value.String())
		case "log_type":
			logType = a.Value.String()
		default:
			extras = append(extras, fmt.Sprintf("[%s=%v]", a.Key, a.Value.Any()))
		}
		return true
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(collect)

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	var b strings.Builder
	b.WriteString(ts.Format(DefaultTimeFormat))

	tag := levelStr
	if logType != "" {
		tag = logType
	}

	line := r.Message
	if len(extras) > 0 {
		line += " " + strings.Join(extras, " ")
	}

	if component != "" {
		if levelStr != "INFO" || logType != "" {
			fmt.Fprintf(&b, " %s", levelColor.Sprintf("[%s]", tag))
		}
		fmt.Fprintf(&b, " %s\n", colorizeWithResets(getComponentColor(component), fmt.Sprintf("[%s] %s", component, line)))
	} else {
		fmt.Fprintf(&b, " %s\n", colorizeWithResets(levelColor, fmt.Sprintf("[%s] %s", tag, line)))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *BotLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *BotLogHandler) WithGroup(string) slog.Handler { return h }

func getComponentColor(name string) *color.Color {
	switch name {
	case "DATABASE":
		return databaseColor
	case "WORKER":
		return workerColor
	case "OWNER":
		return ownerColor
	case "GATEWAY":
		return gatewayColor
	default:
		return color.New(color.FgCyan)
	}
}

func colorizeWithResets(c *color.Color, text string) string {
	if !strings.Contains(text, "\x1b[0m") {
		return c.Sprint(text)
	}

	marker := "@@@MSG@@@"
	wrapped := c.Sprint(marker)
	idx := strings.Index(wrapped, marker)
	if idx <= 0 {
		return text
	}
	startSeq := wrapped[:idx]

	return c.Sprint(strings.ReplaceAll(text, "\x1b[0m", "\x1b[0m"+startSeq))
}
