package auth

import "fmt"

// AuthFailedError wraps a credential failure: cmd/boxarb wraps errors
// from LoadRSAPrivateKey/NewOnchainSigner in it, and restclient returns
// it when a signed call comes back 401/403. cmd/boxarb treats it as
// fatal: credentials don't recover by retrying.
type AuthFailedError struct {
	Venue string
	Err   error
}

func (e *AuthFailedError) Error() string {
	return fmt.Sprintf("auth: %s authentication failed: %v", e.Venue, e.Err)
}

func (e *AuthFailedError) Unwrap() error { return e.Err }

// ErrAuthFailed wraps err as an AuthFailedError for venue.
func ErrAuthFailed(venue string, err error) error {
	return &AuthFailedError{Venue: venue, Err: err}
}
