// Package apperr defines the error taxonomy shared by the API and the worker.
//
// Every error that crosses a package boundary toward a client carries a Kind,
// which decides the HTTP status, and a Key, which is the stable string the
// client receives as {"errorKey": "..."}.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindNotFound
	KindConflict
	KindQuotaExceeded
	KindUpstream
	KindRateLimited
)

// KeyInternal is sent for any error that is not an *Error.
const KeyInternal = "common.internal"

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindUpstream:
		return "upstream"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// HTTPStatus maps a kind to the status code used by API responses.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindQuotaExceeded:
		return http.StatusPaymentRequired
	case KindUpstream:
		return http.StatusBadGateway
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind Kind
	Key  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Key + ": " + e.Err.Error()
	}
	return e.Key
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same kind and key, so that
// sentinel values such as db.ErrRunInFlight can be matched with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Key == t.Key
}

func New(kind Kind, key string) *Error {
	return &Error{Kind: kind, Key: key}
}

func Wrap(kind Kind, key string, err error) *Error {
	return &Error{Kind: kind, Key: key, Err: err}
}

func Validation(key string) *Error    { return New(KindValidation, key) }
func Auth(key string) *Error          { return New(KindAuth, key) }
func NotFound(key string) *Error      { return New(KindNotFound, key) }
func Conflict(key string) *Error      { return New(KindConflict, key) }
func QuotaExceeded(key string) *Error { return New(KindQuotaExceeded, key) }
func RateLimited(key string) *Error   { return New(KindRateLimited, key) }

func Upstream(key string, err error) *Error { return Wrap(KindUpstream, key, err) }
func Internal(err error) *Error             { return Wrap(KindInternal, KeyInternal, err) }

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// KeyOf returns the client-facing key for err. Errors outside the taxonomy
// collapse to KeyInternal so raw messages never reach a client.
func KeyOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Key != "" {
		return e.Key
	}
	return KeyInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
