package ledger

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotAuthenticated is returned by calls made before a successful Authenticate.
	ErrNotAuthenticated = errors.New("ledger client not authenticated")

	// ErrAuthenticationFailed is returned when the backend rejects the credentials.
	ErrAuthenticationFailed = errors.New("ledger authentication failed")

	// ErrInvalidRequest is returned when a request fails validation.
	ErrInvalidRequest = errors.New("invalid ledger request")

	// ErrAlreadyPosted is returned when posting a record that is already posted.
	ErrAlreadyPosted = errors.New("record already posted")
)

// RemoteError is an error reported by the backend.
type RemoteError struct {
	Code    int
	Name    string // exception class, e.g. odoo.exceptions.UserError
	Message string
}

func (e *RemoteError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("ledger error %d (%s): %s", e.Code, e.Name, e.Message)
	}
	return fmt.Sprintf("ledger error %d: %s", e.Code, e.Message)
}

// Is lets errors.Is(err, ErrAlreadyPosted) match the backend's wording.
func (e *RemoteError) Is(target error) bool {
	if target != ErrAlreadyPosted {
		return false
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "already posted") ||
		strings.Contains(msg, "already validated") ||
		strings.Contains(msg, "only a draft statement can be posted")
}

// IsAlreadyPosted reports whether err means the record was posted before.
func IsAlreadyPosted(err error) bool {
	return errors.Is(err, ErrAlreadyPosted)
}
