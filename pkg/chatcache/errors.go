package chatcache

import "errors"

var (
	// ErrStorageUnavailable means no storage engine could be loaded or opened.
	// Initialize absorbs it and switches the cache to disabled mode.
	ErrStorageUnavailable = errors.New("chat cache storage unavailable")
	// ErrMalformedRecord marks a single message that couldn't be encoded,
	// decoded or identified. It never fails the enclosing batch.
	ErrMalformedRecord = errors.New("malformed chat cache record")
	// ErrInvalidArgument marks a call missing a required key. Public methods
	// log it and return without touching storage.
	ErrInvalidArgument = errors.New("invalid chat cache argument")
)
