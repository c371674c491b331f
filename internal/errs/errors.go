// Package errs defines the bot's error taxonomy: a base error carrying the
// original cause and a message sending failure carrying the target channel.
package errs

import (
	"errors"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
)

// BotError is the base error for failures raised by the bot itself.
type BotError struct {
	Message string
	Cause   error
}

func New(message string, cause error) *BotError {
	return &BotError{Message: message, Cause: cause}
}

func (e *BotError) Error() string { return e.Message }

func (e *BotError) Unwrap() error { return e.Cause }

// Target identifies the channel or user a message was addressed to.
type Target struct {
	ID   snowflake.ID
	Name string
}

func (t Target) String() string {
	if t.Name == "" {
		return "channel"
	}
	return t.Name
}

// MessageSendingError is returned when a message could not be delivered.
type MessageSendingError struct {
	BotError
	Target Target
}

// SendFailed wraps cause as a delivery failure to target.
func SendFailed(target Target, cause error) *MessageSendingError {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return &MessageSendingError{
		BotError: BotError{Message: msg, Cause: cause},
		Target:   target,
	}
}

func (e *MessageSendingError) Error() string {
	return fmt.Sprintf("Could not send message to %s (%s). Error: %s", e.Target, e.Target.ID, e.Message)
}

func (e *MessageSendingError) Unwrap() error { return &e.BotError }

// IsSendFailure reports whether err is, or wraps, a MessageSendingError.
func IsSendFailure(err error) bool {
	var target *MessageSendingError
	return errors.As(err, &target)
}
