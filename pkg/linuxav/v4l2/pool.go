//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"strconv"
	"unsafe"

	"golang.org/x/sys/unix"
)

// BufferState tracks which side owns a buffer.
type BufferState int

// Buffer states. The application owns Idle and Dequeued buffers; the driver
// owns Queued buffers.
const (
	BufferIdle BufferState = iota
	BufferQueued
	BufferDequeued
)

func (s BufferState) String() string {
	switch s {
	case BufferIdle:
		return "idle"
	case BufferQueued:
		return "queued"
	case BufferDequeued:
		return "dequeued"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Buffer describes one memory-mapped buffer of a Pool.
type Buffer struct {
	Index  uint32
	Offset uint32
	Length uint32
	State  BufferState
}

type poolBuffer struct {
	Buffer
	data []byte
	// gen changes on every ownership transfer. A Frame is only valid while
	// the generation it was issued with is current.
	gen uint64
}

// Pool is a set of driver buffers mapped into the process with mmap.
//
// The pool's buffer count is whatever the driver granted, which can be
// less than requested. The buffer size is fixed by the format negotiated
// before NewPool, so the device format cannot change while the pool exists.
type Pool struct {
	dev    *Device
	typ    BufType
	format Format
	bufs   []poolBuffer
	stream *Stream
	closed bool
}

// NewPool requests count buffers from the driver (VIDIOC_REQBUFS) and maps
// each into memory. If any step fails, buffers mapped so far are unmapped
// and the kernel allocation is released before returning.
func NewPool(dev *Device, count uint32) (*Pool, error) {
	const op = "VIDIOC_REQBUFS"
	if dev == nil {
		return nil, protocolError("", op, "nil device")
	}
	if err := dev.checkOpen(op); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, protocolError(dev.path, op, "buffer count must be positive")
	}
	if dev.pool != nil {
		return nil, protocolError(dev.path, op, "device already has a buffer pool")
	}
	if !dev.caps.Has(CapStreaming) {
		return nil, newError(ErrCodeDevice, dev.path, op, "device does not support streaming I/O", nil)
	}

	format, err := dev.Format()
	if err != nil {
		return nil, err
	}

	req := v4l2RequestBuffers{
		count:  count,
		typ:    uint32(dev.typ),
		memory: v4l2MemoryMmap,
	}
	if err := dev.drv.ioctl(vidiocReqbufs, unsafe.Pointer(&req)); err != nil {
		if errors.Is(err, unix.ENOMEM) {
			return nil, resourceError(dev.path, op, "buffer allocation failed", err)
		}
		return nil, deviceError(dev.path, op, err)
	}
	if req.count == 0 {
		return nil, resourceError(dev.path, op, "driver granted no buffers", nil)
	}

	p := &Pool{
		dev:    dev,
		typ:    dev.typ,
		format: format,
		bufs:   make([]poolBuffer, 0, req.count),
	}

	for i := uint32(0); i < req.count; i++ {
		raw := v4l2Buffer{
			index:  i,
			typ:    uint32(dev.typ),
			memory: v4l2MemoryMmap,
		}
		if err := dev.drv.ioctl(vidiocQuerybuf, unsafe.Pointer(&raw)); err != nil {
			p.rollback()
			return nil, resourceError(dev.path, "VIDIOC_QUERYBUF", fmt.Sprintf("buffer %d", i), err)
		}

		data, err := dev.drv.mmap(int64(raw.offset), int(raw.length))
		if err != nil {
			p.rollback()
			return nil, resourceError(dev.path, "mmap", fmt.Sprintf("buffer %d (%d bytes)", i, raw.length), err)
		}

		p.bufs = append(p.bufs, poolBuffer{
			Buffer: Buffer{
				Index:  i,
				Offset: raw.offset,
				Length: raw.length,
				State:  BufferIdle,
			},
			data: data,
		})
	}

	dev.pool = p

	logger().Debug("buffer pool created",
		"path", dev.path,
		"requested", count,
		"granted", req.count,
		"length", p.bufs[0].Length)

	return p, nil
}

// rollback undoes a partially constructed pool. Errors are logged because
// the construction error is the one reported.
func (p *Pool) rollback() {
	if err := p.release(); err != nil {
		logger().Warn("failed to release buffers after pool construction error", "path", p.dev.path, "error", err)
	}
}

// release unmaps every buffer and frees the kernel buffer set.
func (p *Pool) release() error {
	var errs []error
	for i := range p.bufs {
		b := &p.bufs[i]
		if b.data == nil {
			continue
		}
		if err := p.dev.drv.munmap(b.data); err != nil {
			errs = append(errs, resourceError(p.dev.path, "munmap", fmt.Sprintf("buffer %d", b.Index), err))
		}
		b.data = nil
		b.State = BufferIdle
		b.gen++
	}
	p.bufs = nil

	req := v4l2RequestBuffers{
		count:  0,
		typ:    uint32(p.typ),
		memory: v4l2MemoryMmap,
	}
	if err := p.dev.drv.ioctl(vidiocReqbufs, unsafe.Pointer(&req)); err != nil {
		errs = append(errs, resourceError(p.dev.path, "VIDIOC_REQBUFS", "release buffers", err))
	}
	return errors.Join(errs...)
}

// Close stops the attached stream if it is running, unmaps every buffer
// and releases the kernel buffer set. Frames issued by the pool become
// invalid. Calling Close more than once is a no-op.
func (p *Pool) Close() error {
	if p.closed {
		return nil
	}
	var errs []error
	if p.stream != nil {
		if err := p.stream.Stop(); err != nil {
			errs = append(errs, err)
			// The mappings go away regardless, so drop the stream state too.
			p.stream.reset()
		}
		p.stream.streaming = false
	}
	if err := p.release(); err != nil {
		errs = append(errs, err)
	}
	p.closed = true
	if p.dev.pool == p {
		p.dev.pool = nil
	}

	logger().Debug("buffer pool closed", "path", p.dev.path)

	return errors.Join(errs...)
}

// Device returns the device the pool was created on.
func (p *Pool) Device() *Device {
	return p.dev
}

// Format returns the format the pool's buffers were sized for.
func (p *Pool) Format() Format {
	return p.format
}

// Len returns the number of buffers, or 0 after Close.
func (p *Pool) Len() int {
	return len(p.bufs)
}

// Buffer returns the descriptor of buffer i.
func (p *Pool) Buffer(i int) (Buffer, bool) {
	if i < 0 || i >= len(p.bufs) {
		return Buffer{}, false
	}
	return p.bufs[i].Buffer, true
}

// Buffers returns a snapshot of every buffer descriptor.
func (p *Pool) Buffers() []Buffer {
	out := make([]Buffer, len(p.bufs))
	for i := range p.bufs {
		out[i] = p.bufs[i].Buffer
	}
	return out
}

// States returns a snapshot of every buffer's state, indexed by buffer.
func (p *Pool) States() []BufferState {
	out := make([]BufferState, len(p.bufs))
	for i := range p.bufs {
		out[i] = p.bufs[i].State
	}
	return out
}

// Closed reports whether Close has been called.
func (p *Pool) Closed() bool {
	return p.closed
}

func (p *Pool) count(state BufferState) int {
	n := 0
	for i := range p.bufs {
		if p.bufs[i].State == state {
			n++
		}
	}
	return n
}

func (p *Pool) setState(i uint32, state BufferState) {
	b := &p.bufs[i]
	b.State = state
	b.gen++
}

func (p *Pool) resetStates() {
	for i := range p.bufs {
		p.setState(uint32(i), BufferIdle)
	}
}

func (p *Pool) viewValid(i uint32, gen uint64) bool {
	if p.closed || int(i) >= len(p.bufs) {
		return false
	}
	b := &p.bufs[i]
	return b.State == BufferDequeued && b.gen == gen && b.data != nil
}
