package stockcore

import (
	"errors"
	"fmt"

	"github.com/unkn0wn-root/stockcore/auth"
	"github.com/unkn0wn-root/stockcore/counter"
	"github.com/unkn0wn-root/stockcore/remote"
	"github.com/unkn0wn-root/stockcore/tagcache"
)

// Kind classifies an action failure for callers and the HTTP layer.
type Kind string

const (
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden       Kind = "forbidden"
	KindValidation      Kind = "validation"
	KindAuthentication  Kind = "authentication_failed"
	KindStorage         Kind = "storage_unavailable"
	KindRemote          Kind = "remote_error"
	KindInternal        Kind = "internal"
)

// ValidationError is malformed input to an action.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Invalid is shorthand for &ValidationError{field, reason}.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Classify maps err onto a Kind. nil maps to "".
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var (
		ve *ValidationError
		re *remote.Error
		ie *tagcache.InvalidateError
		ae *counter.AllocationError
	)
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return KindUnauthenticated
	case errors.Is(err, auth.ErrForbidden):
		return KindForbidden
	case errors.As(err, &ve),
		errors.Is(err, counter.ErrInvalidArgument),
		errors.Is(err, counter.ErrOverflow),
		errors.Is(err, auth.ErrInvalidCredentials):
		return KindValidation
	case errors.Is(err, auth.ErrAuthenticationFailed):
		return KindAuthentication
	case errors.Is(err, tagcache.ErrUnknownTag),
		errors.Is(err, tagcache.ErrInvalidSpec):
		return KindInternal
	case errors.As(err, &ae),
		errors.Is(err, counter.ErrStorageUnavailable),
		errors.Is(err, auth.ErrStorageUnavailable),
		errors.As(err, &ie):
		return KindStorage
	case errors.As(err, &re),
		errors.Is(err, remote.ErrNotFound),
		errors.Is(err, remote.ErrConflict):
		return KindRemote
	default:
		return KindInternal
	}
}

// message is the text a caller may show to the user for err.
func message(kind Kind, err error) string {
	switch kind {
	case KindUnauthenticated:
		return "not signed in"
	case KindForbidden:
		return "insufficient access level"
	case KindAuthentication:
		return "invalid login or password"
	case KindValidation, KindRemote:
		return err.Error()
	case KindStorage:
		return "storage unavailable, try again"
	default:
		return "internal error"
	}
}
