// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/born-ml/mathengine/native"
)

type threadKey struct{}

// WithThread returns a context carrying a new thread identity. Temporary
// buffers allocated with the returned context belong to that thread and are
// released by CleanUp with the same context.
func WithThread(ctx context.Context) context.Context {
	return WithThreadID(ctx, native.ThreadID(uuid.NewString()))
}

// WithThreadID returns a context carrying id.
func WithThreadID(ctx context.Context, id native.ThreadID) context.Context {
	return context.WithValue(ctx, threadKey{}, id)
}

// ThreadFrom returns the thread carried by ctx, or native.MainThread.
func ThreadFrom(ctx context.Context) native.ThreadID {
	if ctx == nil {
		return native.MainThread
	}
	if id, ok := ctx.Value(threadKey{}).(native.ThreadID); ok && id != "" {
		return id
	}
	return native.MainThread
}
