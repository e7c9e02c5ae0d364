package igdb

import (
	"errors"
	"fmt"
	"net/http"
)

var ErrInvalidEntity = errors.New("invalid catalog entity")

// AuthTokenError reports a failed token refresh. StatusCode is zero when the
// token endpoint could not be reached.
type AuthTokenError struct {
	StatusCode int
	Err        error
}

func (e *AuthTokenError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("catalog access token: HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("catalog access token: %v", e.Err)
}

func (e *AuthTokenError) Unwrap() error { return e.Err }

// FetchError reports a catalog response that was not a usable success.
type FetchError struct {
	Entity     string
	StatusCode int
	Body       string
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("catalog %s fetch failed with status %d: %v", e.Entity, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("catalog %s fetch failed with status %d", e.Entity, e.StatusCode)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsUnauthorized reports whether err is a catalog 401.
func IsUnauthorized(err error) bool {
	var fetchErr *FetchError
	return errors.As(err, &fetchErr) && fetchErr.StatusCode == http.StatusUnauthorized
}
