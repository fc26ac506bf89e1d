package mibi

import "errors"

// Errors returned by Image operations are wrapped around one of these so that
// callers can classify them with errors.Is.
var (
	// ErrValidation reports malformed input: bad shapes, dtypes, targets or
	// duplicate selectors.
	ErrValidation = errors.New("mibi: invalid input")
	// ErrLookup reports a selector that matches no channel, or more than one.
	ErrLookup = errors.New("mibi: channel not found")
	// ErrConflict reports an edit that would break target uniqueness or join
	// incompatible images.
	ErrConflict = errors.New("mibi: conflict")
	// ErrMismatch reports images that do not describe the same point or shape.
	ErrMismatch = errors.New("mibi: mismatch")
	// ErrOutOfBounds reports a region outside the image.
	ErrOutOfBounds = errors.New("mibi: region out of bounds")
)
