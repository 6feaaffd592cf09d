package storage

import "errors"

var (
	// ErrLogClosed is returned when appending to a log that has been closed
	ErrLogClosed = errors.New("log is closed")
)
