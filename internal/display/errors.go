package display

import "errors"

type invalidSettingsError struct{ msg string }

func (e *invalidSettingsError) Error() string {
	return "invalid display settings: " + e.msg
}

// ErrSettingsInvalid indicates a requested mode outside the driver's
// allowed set. Rejected before any file is touched.
func ErrSettingsInvalid(msg string) error { return &invalidSettingsError{msg: msg} }

// IsSettingsInvalid checks if err is an invalid-settings error.
func IsSettingsInvalid(err error) bool {
	var e *invalidSettingsError
	return errors.As(err, &e)
}

type notInstalledError struct{}

func (e *notInstalledError) Error() string {
	return "virtual display driver settings file not found"
}

// ErrNotInstalled indicates no driver settings file exists at any of the
// known locations.
func ErrNotInstalled() error { return &notInstalledError{} }

// IsNotInstalled checks if err is a driver-not-installed error.
func IsNotInstalled(err error) bool {
	var e *notInstalledError
	return errors.As(err, &e)
}
