package availability

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidConfiguration marks a malformed rule rejected at write time.
	ErrInvalidConfiguration = errors.New("availability: invalid configuration")
	// ErrOutOfRange marks a query window past the scheduling horizon.
	ErrOutOfRange = errors.New("availability: out of range")
	// ErrInvalidTimezone marks an unknown IANA timezone.
	ErrInvalidTimezone = errors.New("availability: invalid timezone")
	// ErrInvalidRequest marks malformed query parameters.
	ErrInvalidRequest = errors.New("availability: invalid request")
	// ErrNotFound marks a missing organizer, event type or rule.
	ErrNotFound = errors.New("availability: not found")
)

// Error carries enough context for a caller to fix the offending input.
type Error struct {
	Kind      error
	Organizer string
	EventType string
	Field     string
	Detail    string
	// Boundary is set for ErrOutOfRange: the last date that may be requested.
	Boundary string
}

func (e *Error) Error() string {
	parts := []string{e.Kind.Error()}
	if e.Field != "" {
		parts = append(parts, "field="+e.Field)
	}
	if e.Organizer != "" {
		parts = append(parts, "organizer="+e.Organizer)
	}
	if e.EventType != "" {
		parts = append(parts, "event_type="+e.EventType)
	}
	if e.Boundary != "" {
		parts = append(parts, "boundary="+e.Boundary)
	}
	msg := strings.Join(parts, " ")
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Kind }

// Invalid builds an ErrInvalidConfiguration for field.
func Invalid(field, format string, args ...any) *Error {
	return &Error{Kind: ErrInvalidConfiguration, Field: field, Detail: fmt.Sprintf(format, args...)}
}

// BadRequest builds an ErrInvalidRequest for field.
func BadRequest(field, format string, args ...any) *Error {
	return &Error{Kind: ErrInvalidRequest, Field: field, Detail: fmt.Sprintf(format, args...)}
}

// NotFound builds an ErrNotFound for the named entity.
func NotFound(field, id string) *Error {
	return &Error{Kind: ErrNotFound, Field: field, Detail: id}
}

// WithContext fills in organizer and event type when err is an *Error.
func WithContext(err error, organizer, eventType string) error {
	var ae *Error
	if !errors.As(err, &ae) {
		return err
	}
	cp := *ae
	if cp.Organizer == "" {
		cp.Organizer = organizer
	}
	if cp.EventType == "" {
		cp.EventType = eventType
	}
	return &cp
}
