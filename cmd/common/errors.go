package common

import "errors"

var (
	// ErrConfigRequired is returned when dependencies are built without a config.
	ErrConfigRequired = errors.New("config is required")

	// ErrLoggerRequired is returned when Deps.Logger is nil.
	ErrLoggerRequired = errors.New("logger is required")
)
