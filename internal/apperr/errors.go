// Package apperr defines the error taxonomy shared by the grading packages.
package apperr

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrAmbiguous      = errors.New("ambiguous match")
	ErrShapeMismatch  = errors.New("shape mismatch")
	ErrDecode         = errors.New("decode failure")
	ErrUnknownStudent = errors.New("unknown student")
	ErrCacheWrite     = errors.New("cache write failure")
	ErrHeaderFallback = errors.New("header parse fallback")
	ErrMissingInput   = errors.New("missing required input")
	ErrInvalidName    = errors.New("invalid name")
	ErrUnsafePath     = errors.New("path escapes destination")
)
