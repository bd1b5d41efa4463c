package config

import "errors"

var (
	// ErrMissingKey is returned when a required property is absent.
	ErrMissingKey = errors.New("chanflow: missing configuration key")

	// ErrTypeMismatch is returned when a stored value is not assignable to the
	// requested type. Stores never convert values.
	ErrTypeMismatch = errors.New("chanflow: type mismatch")
)
