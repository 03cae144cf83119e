package gmailc

import (
	"errors"
	"fmt"

	"google.golang.org/api/googleapi"
)

// ErrAuth marks expired or invalid mailbox credentials. Unlike transient
// network failures it is not retryable without user re-authentication,
// so the sync orchestrator aborts the batch on it.
var ErrAuth = errors.New("gmail authentication failed")

// wrapErr classifies a Gmail API error as auth or transient.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == 401 || apiErr.Code == 403) {
		return fmt.Errorf("%s: %w: %v", op, ErrAuth, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
