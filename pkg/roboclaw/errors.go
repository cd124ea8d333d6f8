package roboclaw

import "errors"

var (
	// ErrInvalidMotor indicates a motor other than M1 or M2.
	ErrInvalidMotor = errors.New("invalid motor")
	// ErrOutOfRange indicates an argument outside the accepted range.
	ErrOutOfRange = errors.New("value out of range")
)
