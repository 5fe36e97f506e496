package svcconfig

import "fmt"

// corruptError signals a document that exists but fails to parse. The
// original file is left untouched so nothing the service wrote is lost.
type corruptError struct {
	path  string
	cause error
}

func (e corruptError) Error() string {
	return fmt.Sprintf("config corrupt: %s: %v", e.path, e.cause)
}

func (e corruptError) Unwrap() error { return e.cause }

// ErrCorrupt constructs a corruptError.
func ErrCorrupt(path string, cause error) error { return corruptError{path: path, cause: cause} }

// IsCorrupt reports whether err indicates an unparseable document.
func IsCorrupt(err error) bool {
	_, ok := err.(corruptError)
	return ok
}
