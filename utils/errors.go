package utils

import (
	"github.com/pkg/errors"
)

var (
	// ErrNotInitialized is returned when an operation runs before the data it depends on exists,
	// e.g. decoding before every pattern frame has been captured.
	ErrNotInitialized = errors.New("not initialized")
	// ErrInsufficientData is returned when there is too little data to produce a meaningful result,
	// e.g. fewer than four correspondences for a homography or an empty projector group.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrIOFailure is returned when a persisted artifact is missing or corrupt.
	ErrIOFailure = errors.New("io failure")
	// ErrConfigurationMismatch is returned when resolutions or sizes disagree across inputs that
	// must agree.
	ErrConfigurationMismatch = errors.New("configuration mismatch")
)

// NewNotInitializedError wraps ErrNotInitialized with a formatted message.
func NewNotInitializedError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrNotInitialized, format, args...)
}

// NewInsufficientDataError wraps ErrInsufficientData with a formatted message.
func NewInsufficientDataError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInsufficientData, format, args...)
}

// NewIOFailureError wraps both ErrIOFailure and the underlying cause, so that errors.Is matches
// either.
func NewIOFailureError(cause error, format string, args ...interface{}) error {
	return &ioFailure{cause: cause, msg: errors.Errorf(format, args...).Error()}
}

// NewConfigurationMismatchError wraps ErrConfigurationMismatch with a formatted message.
func NewConfigurationMismatchError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrConfigurationMismatch, format, args...)
}

type ioFailure struct {
	cause error
	msg   string
}

func (e *ioFailure) Error() string {
	if e.cause == nil {
		return e.msg + ": " + ErrIOFailure.Error()
	}
	return e.msg + ": " + ErrIOFailure.Error() + ": " + e.cause.Error()
}

func (e *ioFailure) Is(target error) bool {
	return target == ErrIOFailure
}

func (e *ioFailure) Unwrap() error {
	return e.cause
}
