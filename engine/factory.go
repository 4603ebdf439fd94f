// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package engine

import (
	"reflect"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/born-ml/mathengine/native"
)

// Option configures a Factory.
type Option func(*Factory)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(f *Factory) {
		f.log = log
	}
}

// WithMetrics records engine metrics in m.
func WithMetrics(m *Metrics) Option {
	return func(f *Factory) {
		f.metrics = m
	}
}

// WithMemoryLimit caps the memory of every engine opened by the factory.
// 0 means unlimited.
func WithMemoryLimit(bytes uint64) Option {
	return func(f *Factory) {
		f.memoryLimit = bytes
	}
}

// Factory creates engines over a native runtime. Engines created by one
// factory share no state with each other.
type Factory struct {
	rt          native.Runtime
	log         zerolog.Logger
	metrics     *Metrics
	memoryLimit uint64

	mu   sync.Mutex
	live map[*Engine]struct{}
}

// NewFactory creates a factory over rt.
func NewFactory(rt native.Runtime, opts ...Option) *Factory {
	f := &Factory{
		rt:   rt,
		log:  zerolog.Nop(),
		live: make(map[*Engine]struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.log = f.log.With().Str("component", "engine").Logger()
	f.metrics.watch(f)
	return f
}

// MemoryLimit returns the per-engine memory limit in bytes, 0 if unlimited.
func (f *Factory) MemoryLimit() uint64 { return f.memoryLimit }

// Devices lists the GPUs of the runtime. Index i of the result is the index
// accepted by NewGPU. The list is empty when no GPU is usable.
func (f *Factory) Devices() []native.DeviceInfo {
	devices := f.rt.EnumerateGPUs()
	if devices == nil {
		return []native.DeviceInfo{}
	}
	return devices
}

// Live returns the number of active engines created by the factory.
func (f *Factory) Live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.live)
}

// NewCPU creates a CPU engine with threadCount workers. 0 selects one worker
// per logical CPU.
func (f *Factory) NewCPU(threadCount int) (*Engine, error) {
	const op = "NewCPU"
	if threadCount < 0 {
		return nil, f.failed(invalidArgument(op, CPU, "negative thread count %d", threadCount))
	}

	h, err := f.rt.OpenCPU(threadCount, f.memoryLimit)
	if err != nil {
		return nil, f.failed(&Error{Op: op, Kind: CPU, Err: ErrResourceExhausted, Cause: err})
	}
	return f.own(op, h, threadCount)
}

// NewGPU creates an engine on the GPU at index in Devices. The index is
// checked before the runtime is asked to open anything.
func (f *Factory) NewGPU(index int) (*Engine, error) {
	const op = "NewGPU"
	n := len(f.Devices())
	if index < 0 || index >= n {
		return nil, f.failed(invalidArgument(op, GPU, "gpu index %d out of range [0, %d)", index, n))
	}

	h, err := f.rt.OpenGPU(index, f.memoryLimit)
	if err != nil {
		return nil, f.failed(&Error{Op: op, Kind: GPU, Err: ErrResourceExhausted, Cause: err})
	}
	return f.own(op, h, 0)
}

// Default creates the engine chosen by the runtime's default policy.
func (f *Factory) Default() (*Engine, error) {
	const op = "Default"
	h, err := f.rt.Default(f.memoryLimit)
	if err != nil {
		return nil, f.failed(&Error{Op: op, Err: ErrResourceExhausted, Cause: err})
	}
	return f.own(op, h, 0)
}

// Adapt wraps a handle opened outside the factory. The handle is validated
// again: it must be open, of a known kind, describe itself consistently and
// not be owned by another live engine. On success the engine owns h; on
// failure the caller keeps it.
func (f *Factory) Adapt(h native.Handle) (*Engine, error) {
	const op = "Adapt"
	if isNil(h) {
		return nil, f.failed(invalidArgument(op, native.KindUnknown, "nil handle"))
	}
	if h.Closed() {
		return nil, f.failed(invalidArgument(op, h.Kind(), "handle is closed"))
	}
	key, ok := handles.claim(h)
	if !ok {
		return nil, f.failed(invalidArgument(op, h.Kind(), "handle is owned by a live engine"))
	}

	e, err := f.build(op, h, 0)
	if err != nil {
		handles.release(key)
		return nil, f.failed(err)
	}
	e.key = key
	f.register(e)
	return e, nil
}

// own wraps a handle the factory just opened. A handle that cannot be
// wrapped is closed.
func (f *Factory) own(op string, h native.Handle, requested int) (*Engine, error) {
	if isNil(h) {
		return nil, f.failed(&Error{Op: op, Err: ErrResourceExhausted, Detail: "runtime returned no handle"})
	}
	key, ok := handles.claim(h)
	if !ok {
		return nil, f.failed(&Error{Op: op, Kind: h.Kind(), Err: ErrResourceExhausted, Detail: "runtime returned a handle owned by a live engine"})
	}
	e, err := f.build(op, h, requested)
	if err != nil {
		handles.release(key)
		if cerr := h.Close(); cerr != nil {
			f.log.Warn().Err(cerr).Str("op", op).Msg("close rejected handle")
		}
		err.Err = ErrResourceExhausted
		return nil, f.failed(err)
	}
	e.key = key
	f.register(e)
	return e, nil
}

// build checks that h describes a usable engine and creates it.
func (f *Factory) build(op string, h native.Handle, requested int) (*Engine, *Error) {
	e := &Engine{
		id:      uuid.NewString(),
		kind:    h.Kind(),
		handle:  h,
		factory: f,
		state:   StateUninitialized,
	}

	switch e.kind {
	case CPU:
		info, ok := h.CPUInfo()
		if !ok {
			return nil, invalidArgument(op, CPU, "cpu handle reports no cpu info")
		}
		e.threads = info.Threads
		if e.threads <= 0 {
			e.threads = requested
		}
	case GPU:
		info, ok := h.DeviceInfo()
		if !ok {
			return nil, invalidArgument(op, GPU, "gpu handle reports no device info")
		}
		n := len(f.Devices())
		if info.Index < 0 || info.Index >= n {
			return nil, invalidArgument(op, GPU, "device index %d out of range [0, %d)", info.Index, n)
		}
		e.gpu = &gpuSlot{index: info.Index, info: info.Clone()}
	default:
		return nil, invalidArgument(op, e.kind, "handle of unknown kind")
	}

	e.state = StateActive
	return e, nil
}

func (f *Factory) register(e *Engine) {
	f.mu.Lock()
	f.live[e] = struct{}{}
	f.mu.Unlock()

	f.metrics.created(e.kind)
	ev := f.log.Info().Str("engine", e.id).Stringer("kind", e.kind)
	switch e.kind {
	case CPU:
		ev = ev.Int("threads", e.threads)
	case GPU:
		ev = ev.Int("gpu", e.gpu.index).Str("device", e.gpu.info.Name)
	}
	if f.memoryLimit > 0 {
		ev = ev.Str("memory_limit", humanize.IBytes(f.memoryLimit))
	}
	ev.Msg("engine created")
}

func (f *Factory) release(e *Engine) {
	f.mu.Lock()
	_, ok := f.live[e]
	delete(f.live, e)
	f.mu.Unlock()

	if ok {
		f.metrics.disposed(e.kind)
	}
}

func (f *Factory) failed(err *Error) error {
	f.metrics.failed(err.Kind, reason(err))
	f.log.Debug().Err(err).Str("op", err.Op).Msg("engine construction failed")
	return err
}

// engines returns a snapshot of the live engines.
func (f *Factory) engines() []*Engine {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Engine, 0, len(f.live))
	for e := range f.live {
		out = append(out, e)
	}
	return out
}

// handles records which native handles are owned by a live engine, across
// every factory in the process.
var handles = ownership{held: make(map[any]struct{})}

type ownership struct {
	mu   sync.Mutex
	held map[any]struct{}
}

// claim marks h as owned and returns its key. It reports false when a live
// engine already owns h. Handles without a derivable identity are not
// tracked and get a nil key.
func (o *ownership) claim(h native.Handle) (any, bool) {
	key := handleKey(h)
	if key == nil {
		return nil, true
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, held := o.held[key]; held {
		return nil, false
	}
	o.held[key] = struct{}{}
	return key, true
}

func (o *ownership) release(key any) {
	if key == nil {
		return
	}
	o.mu.Lock()
	delete(o.held, key)
	o.mu.Unlock()
}

type refKey struct {
	typ reflect.Type
	ptr uintptr
}

// handleKey returns a comparable identity for h: h itself when its dynamic
// value is comparable, the backing address for slice and map handles, nil
// otherwise. Using h directly as a map key would panic on non-comparable
// dynamic values.
func handleKey(h native.Handle) any {
	v := reflect.ValueOf(h)
	if v.Comparable() {
		return h
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Map:
		return refKey{typ: v.Type(), ptr: v.Pointer()}
	}
	return nil
}

func isNil(h native.Handle) bool {
	if h == nil {
		return true
	}
	v := reflect.ValueOf(h)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return v.IsNil()
	}
	return false
}
