// Package broadcast delivers one payload to a list of recipients, one at a
// time, classifying per-recipient failures and healing the user registry
// when a recipient is gone for good.
package broadcast

import (
	"errors"
	"strings"
)

// Severity describes how a delivery failure should be treated.
type Severity int

const (
	// Transient failures (rate limits, network blips) are counted only;
	// the recipient may be reachable on a later run.
	Transient Severity = iota
	// Permanent failures (recipient blocked the bot, account deleted) mean
	// the recipient will never be reachable again without intervention.
	Permanent
)

func (s Severity) String() string {
	if s == Permanent {
		return "permanent"
	}
	return "transient"
}

// permanentMarkers are the failure-signal fragments the platform reports
// when a recipient has blocked the bot or the account no longer exists.
var permanentMarkers = []string{"blocked", "deactivated"}

// Classify maps a delivery-failure signal to its severity. Signals containing
// a permanent marker (case-insensitive) are Permanent; everything else,
// including an empty signal, defaults to Transient. Substring matching
// mirrors the platform's free-text error descriptions and is a known
// precision gap: a transient message that happens to contain a marker will
// be treated as permanent.
func Classify(signal string) Severity {
	lowered := strings.ToLower(signal)
	for _, marker := range permanentMarkers {
		if strings.Contains(lowered, marker) {
			return Permanent
		}
	}

	return Transient
}

// SendError is the structured delivery failure returned by the transport.
// Signal carries the platform's error description for classification.
type SendError struct {
	Signal string
}

func (e *SendError) Error() string {
	return e.Signal
}

// failureSignal extracts the classification signal from a transport error,
// preferring the structured SendError over the raw error text.
func failureSignal(err error) string {
	var sendErr *SendError
	if errors.As(err, &sendErr) {
		return sendErr.Signal
	}

	return err.Error()
}
