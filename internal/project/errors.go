package project

import "errors"

// ErrInvariantViolation marks structurally corrupt state, for example a
// repository reference missing while the phase claims active. It is fatal to
// the cycle that detects it.
var ErrInvariantViolation = errors.New("invariant violation")
