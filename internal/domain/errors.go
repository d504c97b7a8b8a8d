package domain

import "errors"

// ErrUnknownValue is returned when a closed enumeration receives a value outside its set.
var ErrUnknownValue = errors.New("unknown enumeration value")
