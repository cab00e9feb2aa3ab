package registry

import "errors"

// The five rejection kinds every mutating call can surface. All of them are
// atomic: a rejected call leaves no partial state behind.
var (
	ErrNotFound           = errors.New("agreement not found")
	ErrUnauthorizedCaller = errors.New("caller not authorized for this operation")
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrSignatureMismatch  = errors.New("signature does not bind the declared artist wallet")
	ErrResourceExhausted  = errors.New("insufficient resources to submit")
)
