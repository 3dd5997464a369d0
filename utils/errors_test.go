package utils

import (
	"errors"
	"io/fs"
	"testing"

	"go.viam.com/test"
)

func TestErrorKinds(t *testing.T) {
	err := NewNotInitializedError("decode needs %d frames, got %d", 10, 3)
	test.That(t, errors.Is(err, ErrNotInitialized), test.ShouldBeTrue)
	test.That(t, errors.Is(err, ErrInsufficientData), test.ShouldBeFalse)
	test.That(t, err.Error(), test.ShouldEqual, "decode needs 10 frames, got 3: not initialized")

	err = NewInsufficientDataError("only %d correspondences", 3)
	test.That(t, errors.Is(err, ErrInsufficientData), test.ShouldBeTrue)

	err = NewConfigurationMismatchError("camera %dx%d", 4, 4)
	test.That(t, errors.Is(err, ErrConfigurationMismatch), test.ShouldBeTrue)
}

func TestIOFailureKeepsCause(t *testing.T) {
	err := NewIOFailureError(fs.ErrNotExist, "reading %q", "c2p.csv")
	test.That(t, errors.Is(err, ErrIOFailure), test.ShouldBeTrue)
	test.That(t, errors.Is(err, fs.ErrNotExist), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldEqual, `reading "c2p.csv": io failure: file does not exist`)

	err = NewIOFailureError(nil, "empty frame %d", 2)
	test.That(t, errors.Is(err, ErrIOFailure), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldEqual, "empty frame 2: io failure")
}
