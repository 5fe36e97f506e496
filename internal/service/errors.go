package service

// unauthorizedError signals a 401/403 from the service for 401 mapping.
type unauthorizedError struct{ op string }

func (e unauthorizedError) Error() string { return "unauthorized: " + e.op }

// ErrUnauthorized constructs an unauthorizedError.
func ErrUnauthorized(op string) error { return unauthorizedError{op: op} }

// IsUnauthorized reports whether err indicates the service rejected the
// supplied credentials.
func IsUnauthorized(err error) bool {
	_, ok := err.(unauthorizedError)
	return ok
}

// unreachableError signals a transport-level failure talking to the service.
type unreachableError struct{ msg string }

func (e unreachableError) Error() string { return "service unreachable: " + e.msg }

// ErrUnreachable constructs an unreachableError.
func ErrUnreachable(msg string) error { return unreachableError{msg: msg} }

// IsUnreachable reports whether err indicates the service could not be
// reached at the transport level.
func IsUnreachable(err error) bool {
	_, ok := err.(unreachableError)
	return ok
}
