package attendance

import (
	"errors"
	"fmt"
)

// ErrUnknownIdentity matches any *UnknownIdentityError via errors.Is.
var ErrUnknownIdentity = errors.New("unknown identity")

// UnknownIdentityError is returned when recording against an identity that is not enrolled.
// It indicates a caller bug and is never dropped silently.
type UnknownIdentityError struct {
	IdentityID int64
}

func (e *UnknownIdentityError) Error() string {
	return fmt.Sprintf("unknown identity %d", e.IdentityID)
}

// Is lets errors.Is(err, ErrUnknownIdentity) succeed.
func (e *UnknownIdentityError) Is(target error) bool {
	return target == ErrUnknownIdentity
}
