package logger

import (
	"fmt"
	"strings"
	"time"
)

// Type classifies a log record and selects its colour on the remote sink.
type Type string

const (
	TypeGeneral             Type = "General"
	TypeInfo                Type = "Info"
	TypeError               Type = "Error"
	TypeWarning             Type = "Warning"
	TypeMinorWarning        Type = "Minor Warning"
	TypeMessageSent         Type = "Message Sent"
	TypeDMReceived          Type = "DM Received"
	TypeMessageDeleted      Type = "Message Deleted"
	TypeMessageEdited       Type = "Message Edited"
	TypeReplySent           Type = "Reply Sent"
	TypeSlashCommand        Type = "Slash Command Received"
	TypeInteractionCallback Type = "Interaction Callback Received"
)

// Extra is one key/value pair attached to a record. Order is preserved.
type Extra struct {
	Key   string
	Value any
}

// Record is a single log entry as delivered to the sinks.
type Record struct {
	Time      time.Time
	Type      Type
	Component string
	Message   string
	Extras    []Extra
}

// ExtrasString renders extras as "[k=v] [k=v]".
func (r Record) ExtrasString() string {
	parts := make([]string, 0, len(r.Extras))
	for _, e := range r.Extras {
		parts = append(parts, fmt.Sprintf("[%s=%v]", e.Key, e.Value))
	}
	return strings.Join(parts, " ")
}

// FileLine renders the record in the on-disk format.
func (r Record) FileLine() string {
	return fmt.Sprintf("%s [%s] %s - %s\n", r.Time.UTC().Format(TimestampFormat), r.Type, StripANSI(r.Message), r.ExtrasString())
}

// TimestampFormat is used in log files and attachment names.
const TimestampFormat = "2006-01-02 15:04:05"
