package config

import "errors"

var (
	// ErrInvalidConfig is returned when the configuration has shape errors.
	ErrInvalidConfig = errors.New("config: invalid configuration")

	// ErrAuthentication is returned when credentials are missing or are
	// known placeholders.
	ErrAuthentication = errors.New("config: missing or placeholder credentials")
)
