package bot

import (
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/disgoorg/disgo/discord"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/leeineian/singularity/internal/logger"
	"github.com/leeineian/singularity/internal/ui"
)

const (
	MsgErrorTitle    = "Error"
	MsgErrorApology  = "An error occurred. We've been notified and will look into it as soon as possible. Sorry for the inconvenience!"
	MsgNoResponseFmt = "%s did not respond to interaction."
)

const (
	kindCommand   = "command"
	kindComponent = "component"
)

var errAlreadyResponded = errors.New("interaction already acknowledged")

var metricInteractions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "singularity",
	Subsystem: "interactions",
	Name:      "handled_total",
	Help:      "Interactions handled by kind, handler and result.",
}, []string{"kind", "name", "result"})

// panicError carries a recovered panic value and the stack it came from.
type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.value) }

func runHandler(c *Context, h HandlerFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return h(c)
}

// ApologyMessage is the single reply a user gets when a handler fails.
func ApologyMessage() discord.MessageCreate {
	embed := ui.EmbedSpec{
		Title:       MsgErrorTitle,
		Description: MsgErrorApology,
		Colour:      ui.ColourError,
	}.Build()
	return discord.NewMessageCreate().WithEmbeds(embed).WithEphemeral(true)
}

// guard runs h and turns an error or panic into a logged report plus one
// ephemeral apology for the user.
func (b *Bot) guard(c *Context, kind, name string, h HandlerFunc) {
	err := runHandler(c, h)
	if err == nil {
		metricInteractions.WithLabelValues(kind, name, resultLabel(nil)).Inc()
		if !c.Responded() {
			b.handlers.Log(fmt.Sprintf(MsgNoResponseFmt, name),
				logger.WithType(logger.TypeMinorWarning),
				logger.With("handler", name),
			)
		}
		return
	}
	metricInteractions.WithLabelValues(kind, name, resultLabel(err)).Inc()

	errorID := uuid.NewString()
	opts := []logger.Option{
		logger.With("error_id", errorID),
		logger.With("handler", name),
		logger.With("user_id", c.User.ID.String()),
		logger.With("channel_id", c.ChannelID.String()),
	}
	if c.GuildID != nil {
		opts = append(opts, logger.With("guild_id", c.GuildID.String()))
	}
	var pe *panicError
	if errors.As(err, &pe) {
		opts = append(opts, logger.With("stack", string(pe.stack)))
	}
	b.handlers.Log(fmt.Sprintf("Error in %s %s: %v", kind, name, err), opts...)

	if replyErr := ReplyWithFallback(contextReplier{c}, ApologyMessage()); replyErr != nil {
		b.errLog.Log("Could not report handler error to user: "+replyErr.Error(),
			logger.With("error_id", errorID),
		)
	}
}

func resultLabel(err error) string {
	var pe *panicError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &pe):
		return "panic"
	}
	return "error"
}
