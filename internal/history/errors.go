package history

import "errors"

var (
	ErrBucketNotFound = errors.New("history: bucket not found")
	ErrNilDB          = errors.New("history: database connection is nil")
	ErrNilEntry       = errors.New("history: entry is nil")
)
