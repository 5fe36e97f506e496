package reconciler

import "errors"

// Error kinds are distinguishable because the corrective UI action differs
// per cause: re-enter credentials, start the service, or fix the key store.

type invalidCredentialsError struct{ op string }

func (e *invalidCredentialsError) Error() string {
	return "invalid credentials: " + e.op
}

// ErrInvalidCredentials indicates the service rejected the supplied pair.
func ErrInvalidCredentials(op string) error { return &invalidCredentialsError{op: op} }

// IsInvalidCredentials checks if err is an invalid-credentials error.
func IsInvalidCredentials(err error) bool {
	var e *invalidCredentialsError
	return errors.As(err, &e)
}

type serviceUnreachableError struct{ msg string }

func (e *serviceUnreachableError) Error() string {
	return "service unreachable: " + e.msg
}

// ErrServiceUnreachable indicates the service endpoint could not be reached
// or answered outside its contract.
func ErrServiceUnreachable(msg string) error { return &serviceUnreachableError{msg: msg} }

// IsServiceUnreachable checks if err is a service-unreachable error.
func IsServiceUnreachable(err error) bool {
	var e *serviceUnreachableError
	return errors.As(err, &e)
}

type encryptionUnavailableError struct{}

func (e *encryptionUnavailableError) Error() string {
	return "credential encryption unavailable"
}

// ErrEncryptionUnavailable indicates the vault cannot encrypt or decrypt.
func ErrEncryptionUnavailable() error { return &encryptionUnavailableError{} }

// IsEncryptionUnavailable checks if err is an encryption-unavailable error.
func IsEncryptionUnavailable(err error) bool {
	var e *encryptionUnavailableError
	return errors.As(err, &e)
}
