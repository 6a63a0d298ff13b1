package core

import "errors"

// UserExistsError reports that the identity service already holds an account
// for the requested email. It is a classification, not a failure: the
// pipeline proceeds with UserID when the provider returned one.
type UserExistsError struct {
	UserID string
	Cause  error
}

func (e *UserExistsError) Error() string {
	if e == nil || e.Cause == nil {
		return "identity: user already exists"
	}
	return "identity: user already exists: " + e.Cause.Error()
}

func (e *UserExistsError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// AsUserExists unwraps err looking for an already-exists classification.
func AsUserExists(err error) (*UserExistsError, bool) {
	var existsErr *UserExistsError
	if errors.As(err, &existsErr) {
		return existsErr, true
	}
	return nil, false
}
