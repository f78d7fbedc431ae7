package domain

import "fmt"

// NotFoundError represents a missing resource.
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

// ErrNotFound is the sentinel error for missing resources.
var ErrNotFound = NotFoundError{}

// AuthRequiredError means the caller presented no or invalid credentials.
type AuthRequiredError struct {
	Reason string
}

func (e AuthRequiredError) Error() string {
	if e.Reason == "" {
		return "authentication required"
	}
	return fmt.Sprintf("authentication required: %s", e.Reason)
}

func (e AuthRequiredError) Is(target error) bool {
	_, ok := target.(AuthRequiredError)
	if ok {
		return true
	}
	_, ok = target.(*AuthRequiredError)
	return ok
}

var ErrAuthRequired = AuthRequiredError{}

// InvalidRequestError means the request was well-authenticated but malformed.
type InvalidRequestError struct {
	Reason string
}

func (e InvalidRequestError) Error() string {
	if e.Reason == "" {
		return "invalid request"
	}
	return fmt.Sprintf("invalid request: %s", e.Reason)
}

func (e InvalidRequestError) Is(target error) bool {
	_, ok := target.(InvalidRequestError)
	if ok {
		return true
	}
	_, ok = target.(*InvalidRequestError)
	return ok
}

var ErrInvalidRequest = InvalidRequestError{}
