package detector

import (
	"errors"
	"fmt"
)

var (
	// ErrModel reports a stage network that is missing or could not be loaded.
	ErrModel = errors.New("model unavailable")
	// ErrInvalidImage reports a nil or zero-sized input image.
	ErrInvalidImage = errors.New("invalid image")
	// ErrInvalidParams reports scan parameters outside their domain.
	ErrInvalidParams = errors.New("invalid scan parameters")
	// ErrBadOutput reports a network output whose shape does not match its input.
	ErrBadOutput = errors.New("malformed network output")
)

func wrapf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
