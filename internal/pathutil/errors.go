package pathutil

import "errors"

var (
	ErrEmptyPath  = errors.New("path is empty")
	ErrNullBytes  = errors.New("path contains null bytes")
	ErrNotRegular = errors.New("not a regular file")
)
