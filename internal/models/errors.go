package models

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType int

const (
	ErrNotFound ErrorType = iota
	ErrIOFailure
	ErrFetch
	ErrDecompress
	ErrSignature
	ErrInvalidConfig
	ErrLock
)

// String returns the string representation of ErrorType
func (e ErrorType) String() string {
	switch e {
	case ErrNotFound:
		return "NotFound"
	case ErrIOFailure:
		return "IOFailure"
	case ErrFetch:
		return "Fetch"
	case ErrDecompress:
		return "Decompress"
	case ErrSignature:
		return "Signature"
	case ErrInvalidConfig:
		return "InvalidConfig"
	case ErrLock:
		return "Lock"
	default:
		return "Unknown"
	}
}

// MirrorError represents an error raised while mirroring a repository
type MirrorError struct {
	Type    ErrorType
	Package string
	Err     error
}

// Error implements the error interface
func (e *MirrorError) Error() string {
	if e.Package != "" {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Package, e.Err)
	}
	return fmt.Sprintf("[%s] %v", e.Type, e.Err)
}

// Unwrap returns the wrapped error
func (e *MirrorError) Unwrap() error {
	return e.Err
}

// IsType reports whether any MirrorError in err's chain has type t
func IsType(err error, t ErrorType) bool {
	var me *MirrorError
	for err != nil {
		if !errors.As(err, &me) {
			return false
		}
		if me.Type == t {
			return true
		}
		err = me.Err
	}
	return false
}
