package domain

import (
	"errors"
	"fmt"
)

// Kind groups errors by how a caller is expected to react to them.
type Kind string

const (
	KindValidation          Kind = "VALIDATION_ERROR"
	KindNotFound            Kind = "NOT_FOUND"
	KindConflict            Kind = "CONFLICT"
	KindUpstreamUnavailable Kind = "UPSTREAM_UNAVAILABLE"
	KindInvalidState        Kind = "INVALID_STATE"
	KindPersistence         Kind = "PERSISTENCE_ERROR"
)

// Stable error codes, returned to HTTP clients next to the message.
const (
	CodeValidation               = "ValidationError"
	CodeNotFound                 = "NotFound"
	CodeFlightNotFound           = "FlightNotFound"
	CodeBookingNotFound          = "BookingNotFound"
	CodeFlightUnavailable        = "FlightUnavailable"
	CodeSeatReservationFailed    = "SeatReservationFailed"
	CodeInsufficientSeats        = "InsufficientSeats"
	CodeSeatNotFound             = "SeatNotFound"
	CodeSeatAlreadyBooked        = "SeatAlreadyBooked"
	CodeSeatAlreadyFree          = "SeatAlreadyFree"
	CodeSeatCapacityExceeded     = "SeatCapacityExceeded"
	CodeInvalidState             = "InvalidState"
	CodeMissingJourneyDate       = "MissingJourneyDate"
	CodeCancellationWindowClosed = "CancellationWindowClosed"
	CodeUpstreamUnavailable      = "UpstreamUnavailable"
	CodeDuplicatePNR             = "DuplicatePNR"
	CodePersistence              = "PersistenceError"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Code so sentinels compare equal to errors built with a
// different message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

var (
	ErrFlightNotFound     = &Error{Kind: KindNotFound, Code: CodeFlightNotFound, Message: "Flight Not Found"}
	ErrBookingNotFound    = &Error{Kind: KindNotFound, Code: CodeBookingNotFound, Message: "PNR Not Found"}
	ErrFlightUnavailable  = &Error{Kind: KindNotFound, Code: CodeFlightUnavailable, Message: "Invalid Flight ID"}
	ErrInsufficientSeats  = &Error{Kind: KindConflict, Code: CodeInsufficientSeats, Message: "Not Enough Seats"}
	ErrSeatNotFound       = &Error{Kind: KindNotFound, Code: CodeSeatNotFound, Message: "seat not found"}
	ErrSeatAlreadyBooked  = &Error{Kind: KindConflict, Code: CodeSeatAlreadyBooked, Message: "seat already booked"}
	ErrSeatAlreadyFree    = &Error{Kind: KindConflict, Code: CodeSeatAlreadyFree, Message: "seat already free"}
	ErrCapacityExceeded   = &Error{Kind: KindConflict, Code: CodeSeatCapacityExceeded, Message: "release exceeds flight capacity"}
	ErrInvalidState       = &Error{Kind: KindInvalidState, Code: CodeInvalidState, Message: "Only booked tickets can be cancelled"}
	ErrMissingJourneyDate = &Error{Kind: KindInvalidState, Code: CodeMissingJourneyDate, Message: "Journey date not set"}
	ErrWindowClosed       = &Error{Kind: KindInvalidState, Code: CodeCancellationWindowClosed, Message: "Cancellation allowed only 24 hours before journey"}
	ErrDuplicatePNR       = &Error{Kind: KindConflict, Code: CodeDuplicatePNR, Message: "pnr already exists"}
)

func NewValidationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func NewUpstreamError(message string, cause error) *Error {
	return &Error{Kind: KindUpstreamUnavailable, Code: CodeUpstreamUnavailable, Message: message, Err: cause}
}

func NewPersistenceError(cause error) *Error {
	return &Error{Kind: KindPersistence, Code: CodePersistence, Message: cause.Error(), Err: cause}
}

// NewSeatReservationError keeps the kind and message of the flight service's
// answer under the SeatReservationFailed code.
func NewSeatReservationError(cause error) *Error {
	kind := KindOf(cause)
	if kind == "" {
		kind = KindUpstreamUnavailable
	}
	return &Error{Kind: kind, Code: CodeSeatReservationFailed, Message: cause.Error(), Err: cause}
}

// WithMessage copies a sentinel and replaces its message.
func WithMessage(base *Error, format string, args ...any) *Error {
	return &Error{Kind: base.Kind, Code: base.Code, Message: fmt.Sprintf(format, args...), Err: base.Err}
}

// KindOf reports the Kind of err, or an empty Kind for errors outside the taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf reports the Code of err, or an empty string.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
