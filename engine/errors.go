// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package engine

import (
	"errors"
	"fmt"

	"github.com/born-ml/mathengine/native"
)

// Error categories. Every error returned by this package matches exactly one
// of them with errors.Is.
var (
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrResourceExhausted    = errors.New("resource exhausted")
	ErrInvalidState         = errors.New("invalid state")
)

// Error describes a failed engine operation.
type Error struct {
	Op     string // Operation, e.g. "NewGPU" or "DeviceInfo"
	Engine string // Engine ID, empty for factory operations
	Kind   Kind   // Engine kind involved, if known
	Err    error  // One of the Err* categories
	Cause  error  // Underlying native error, may be nil
	Detail string
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := "engine: " + e.Op
	if e.Engine != "" {
		msg += fmt.Sprintf(" (%s %s)", e.Kind, e.Engine)
	} else if e.Kind != native.KindUnknown {
		msg += fmt.Sprintf(" (%s)", e.Kind)
	}
	msg += ": " + e.Err.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes both the category and the native cause.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func invalidArgument(op string, kind Kind, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Err: ErrInvalidArgument, Detail: fmt.Sprintf(format, args...)}
}

// classify maps a native error to its category.
func classify(err error) error {
	switch {
	case errors.Is(err, native.ErrClosed):
		return ErrInvalidState
	case errors.Is(err, native.ErrForeignBuffer):
		return ErrInvalidArgument
	default:
		return ErrResourceExhausted
	}
}

// reason is a short metric label for a construction failure.
func reason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, native.ErrOutOfMemory):
		return "out_of_memory"
	case errors.Is(err, native.ErrNoDevice):
		return "no_device"
	case errors.Is(err, native.ErrUnavailable):
		return "unavailable"
	default:
		return "native"
	}
}
