// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package native

import "errors"

// Errors returned by runtimes and handles.
var (
	ErrOutOfMemory   = errors.New("native: out of memory")
	ErrUnavailable   = errors.New("native: backend not available")
	ErrNoDevice      = errors.New("native: no such device")
	ErrClosed        = errors.New("native: handle closed")
	ErrForeignBuffer = errors.New("native: buffer does not belong to this handle")
)
