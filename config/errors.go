package config

import "errors"

var (
	// ErrInvalidNetwork indicates the network is not "main" or "test".
	ErrInvalidNetwork = errors.New("config: invalid network")

	// ErrEmptyTopic indicates the topic name is empty.
	ErrEmptyTopic = errors.New("config: empty topic")

	// ErrEmptyService indicates the lookup service name is empty.
	ErrEmptyService = errors.New("config: empty service name")

	// ErrEmptyDBPath indicates the database path is empty.
	ErrEmptyDBPath = errors.New("config: empty database path")

	// ErrInvalidLimit indicates the max query limit is negative.
	ErrInvalidLimit = errors.New("config: invalid max query limit")

	// ErrInvalidLogLevel indicates the log level is not recognized.
	ErrInvalidLogLevel = errors.New("config: invalid log level")
)
