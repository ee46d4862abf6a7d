package ld2451

import (
	"errors"
	"fmt"
)

var (
	// ErrIncomplete means the buffered bytes do not yet hold a whole frame.
	// It is the normal "nothing to do this cycle" outcome, not a failure.
	ErrIncomplete = errors.New("ld2451: incomplete frame")

	// ErrLengthExceeded matches any *LengthError.
	ErrLengthExceeded = errors.New("ld2451: frame length exceeds maximum payload")
)

// LengthError reports a data frame whose length field is implausible. The
// frame is abandoned and resynchronisation continues from the next byte.
type LengthError struct {
	Length uint16
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("ld2451: frame length %d exceeds maximum %d", e.Length, MaxPayloadLen)
}

// Is lets errors.Is(err, ErrLengthExceeded) match.
func (e *LengthError) Is(target error) bool {
	return target == ErrLengthExceeded
}
