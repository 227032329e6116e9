// Package apperr holds sentinel errors shared across packages.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrClosed        = errors.New("closed")
	ErrUnknownType   = errors.New("unknown message type")
	ErrFrameTooLarge = errors.New("frame too large")
)
