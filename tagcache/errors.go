package tagcache

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownTag  = errors.New("tagcache: unknown tag")
	ErrInvalidSpec = errors.New("tagcache: invalid spec")
)

// InvalidateError reports the tags whose generation could not be bumped.
// Entries under those tags stay readable until their TTL runs out.
type InvalidateError struct {
	Tags []string
	Errs []error
}

func (e *InvalidateError) Error() string {
	if len(e.Errs) == 1 {
		return fmt.Sprintf("invalidate %q: gen bump failed: %v", e.Tags[0], e.Errs[0])
	}
	return fmt.Sprintf("invalidate [%s]: %d gen bumps failed: %v",
		strings.Join(e.Tags, ", "), len(e.Errs), errors.Join(e.Errs...))
}

func (e *InvalidateError) Unwrap() []error { return e.Errs }
