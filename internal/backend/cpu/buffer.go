package cpu

import "github.com/born-ml/mathengine/native"

// HostBuffer is a block of host memory owned by a CPUBackend.
type HostBuffer struct {
	data []byte
}

// Size returns the size of the buffer in bytes.
func (h *HostBuffer) Size() uint64 {
	return uint64(len(h.data))
}

// Bytes returns the underlying memory.
func (h *HostBuffer) Bytes() []byte {
	return h.data
}

type hostAllocator struct {
	b *CPUBackend
}

func (a hostAllocator) Alloc(size uint64) (native.Buffer, error) {
	if err := a.b.mem.Reserve(size); err != nil {
		return nil, err
	}
	return &HostBuffer{data: make([]byte, size)}, nil
}

func (a hostAllocator) Free(buf native.Buffer) {
	a.b.mem.Release(buf.Size())
	if hb, ok := buf.(*HostBuffer); ok {
		hb.data = nil
	}
}
