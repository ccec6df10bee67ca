package session

import "errors"

// ErrNotPaired is returned when streaming is requested before a peer has
// been paired.
var ErrNotPaired = errors.New("session is not paired")

// ErrAlreadyPaired is returned when discovery is toggled while a peer is
// already bound.
var ErrAlreadyPaired = errors.New("session is already paired")
