//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Frame is a view of a dequeued buffer. It stays valid until the buffer
// changes owner again: the next Next call for capture, Queue, Stop or
// Pool.Close. After that Valid reports false and Data returns nil.
type Frame struct {
	Index     uint32
	BytesUsed uint32
	Sequence  uint32
	Timestamp time.Duration
	Flags     uint32
	Field     Field

	pool *Pool
	gen  uint64
}

// Valid reports whether the frame's buffer is still owned by the caller
// under this view.
func (f Frame) Valid() bool {
	return f.pool != nil && f.pool.viewValid(f.Index, f.gen)
}

// Data returns the payload of a captured frame, BytesUsed bytes long. The
// slice aliases driver memory and must not be retained once the frame is
// no longer valid.
func (f Frame) Data() []byte {
	if !f.Valid() {
		return nil
	}
	b := f.pool.bufs[f.Index].data
	n := min(int(f.BytesUsed), len(b))
	return b[:n:n]
}

// Buffer returns the whole mapped buffer. Output callers write their
// payload here before queueing it.
func (f Frame) Buffer() []byte {
	if !f.Valid() {
		return nil
	}
	return f.pool.bufs[f.Index].data
}

// Length returns the size of the mapped buffer, or 0 for an invalid frame.
func (f Frame) Length() uint32 {
	if !f.Valid() {
		return 0
	}
	return f.pool.bufs[f.Index].Length
}

// Stream drives the queue and dequeue protocol over a Pool.
type Stream struct {
	pool      *Pool
	streaming bool
	// last is the buffer returned by the previous Next, re-queued by the
	// following Next. -1 when there is none.
	last int
}

// NewStream attaches a stream to a pool. A pool has at most one stream.
func NewStream(pool *Pool) (*Stream, error) {
	if pool == nil {
		return nil, protocolError("", "stream", "nil pool")
	}
	if pool.closed {
		return nil, protocolError(pool.dev.path, "stream", "pool is closed")
	}
	if pool.stream != nil {
		return nil, protocolError(pool.dev.path, "stream", "pool already has a stream")
	}
	s := &Stream{pool: pool, last: -1}
	pool.stream = s
	return s, nil
}

// Pool returns the pool the stream runs on.
func (s *Stream) Pool() *Pool {
	return s.pool
}

// Streaming reports whether the stream has been started and not stopped.
func (s *Stream) Streaming() bool {
	return s.streaming
}

// Queued returns the number of buffers currently owned by the driver.
func (s *Stream) Queued() int {
	return s.pool.count(BufferQueued)
}

func (s *Stream) path() string {
	return s.pool.dev.path
}

func (s *Stream) capture() bool {
	return s.pool.typ == BufTypeVideoCapture
}

// Start begins streaming. Capture streams reset every buffer to Idle, queue
// all of them and issue VIDIOC_STREAMON. Output streams only issue
// VIDIOC_STREAMON; buffers are handed to the caller by Dequeue and become
// driver-owned when queued with data.
//
// If Start fails, streaming is switched off again and every buffer is Idle.
func (s *Stream) Start() error {
	const op = "VIDIOC_STREAMON"
	if s.pool.closed {
		return protocolError(s.path(), op, "pool is closed")
	}
	if s.streaming {
		return newError(ErrCodeDevice, s.path(), op, "already streaming", unix.EBUSY)
	}

	s.reset()

	if s.capture() {
		for i := range s.pool.bufs {
			if err := s.queue(uint32(i), 0, 0, FieldAny); err != nil {
				s.abort()
				return err
			}
		}
	}

	typ := uint32(s.pool.typ)
	if err := s.pool.dev.drv.ioctl(vidiocStreamon, unsafe.Pointer(&typ)); err != nil {
		s.abort()
		return deviceError(s.path(), op, err)
	}
	s.streaming = true

	logger().Debug("stream started",
		"path", s.path(),
		"type", s.pool.typ.String(),
		"buffers", len(s.pool.bufs),
		"queued", s.Queued())

	return nil
}

// abort returns the driver and the pool to the stopped state after a
// failed Start.
func (s *Stream) abort() {
	typ := uint32(s.pool.typ)
	if err := s.pool.dev.drv.ioctl(vidiocStreamoff, unsafe.Pointer(&typ)); err != nil {
		logger().Debug("stream off after failed start", "path", s.path(), "error", err)
	}
	s.reset()
}

func (s *Stream) reset() {
	s.pool.resetStates()
	s.last = -1
}

// Stop issues VIDIOC_STREAMOFF, which returns every queued buffer to the
// application, and resets all buffers to Idle. Frames issued by the stream
// become invalid. Stop on a stopped stream is a no-op.
func (s *Stream) Stop() error {
	if !s.streaming {
		return nil
	}
	typ := uint32(s.pool.typ)
	if err := s.pool.dev.drv.ioctl(vidiocStreamoff, unsafe.Pointer(&typ)); err != nil {
		return deviceError(s.path(), "VIDIOC_STREAMOFF", err)
	}
	s.reset()
	s.streaming = false

	logger().Debug("stream stopped", "path", s.path())

	return nil
}

// Next returns the next captured frame. The frame returned by the previous
// call is re-queued first, so it must not be used after Next is called
// again.
//
// Next blocks until the driver completes a buffer unless the device was
// opened with WithNonBlock, in which case ErrNoFrame is returned when none
// is ready. A buffer the driver flagged as corrupted is returned together
// with an IO_ERROR; it is re-queued by the following call.
func (s *Stream) Next() (Frame, error) {
	const op = "VIDIOC_DQBUF"
	if !s.capture() {
		return Frame{}, protocolError(s.path(), op, "Next is only valid for capture streams, use Dequeue and Queue")
	}
	if !s.streaming {
		return Frame{}, protocolError(s.path(), op, "stream is not started")
	}
	if err := s.requeueLast(); err != nil {
		return Frame{}, err
	}
	if s.Queued() == 0 {
		return Frame{}, protocolError(s.path(), op, "no buffers queued")
	}

	f, err := s.dequeue()
	if err != nil {
		return Frame{}, err
	}
	s.last = int(f.Index)

	if f.Flags&BufFlagError != 0 {
		return f, ioError(s.path(), op, fmt.Sprintf("buffer %d (sequence %d) flagged as corrupted", f.Index, f.Sequence), nil)
	}
	return f, nil
}

// NextTimeout waits up to timeout for a frame and then returns it as Next
// does. It returns ErrNoFrame when nothing completed in time.
func (s *Stream) NextTimeout(timeout time.Duration) (Frame, error) {
	if err := s.Wait(timeout); err != nil {
		return Frame{}, err
	}
	return s.Next()
}

// requeueLast hands the buffer returned by the previous Next back to the
// driver.
func (s *Stream) requeueLast() error {
	if s.last < 0 {
		return nil
	}
	i := uint32(s.last)
	if s.pool.bufs[i].State != BufferDequeued {
		s.last = -1
		return nil
	}
	if err := s.queue(i, 0, 0, FieldAny); err != nil {
		return err
	}
	s.last = -1
	return nil
}

// Dequeue obtains a buffer from the driver. For capture streams it is the
// explicit counterpart of Next: the caller must hand the frame back with
// Queue. For output streams it returns a buffer the caller can fill; buffers
// never queued since Start are handed out first without asking the driver.
func (s *Stream) Dequeue() (Frame, error) {
	const op = "VIDIOC_DQBUF"
	if !s.streaming {
		return Frame{}, protocolError(s.path(), op, "stream is not started")
	}

	if !s.capture() {
		for i := range s.pool.bufs {
			if s.pool.bufs[i].State == BufferIdle {
				s.pool.setState(uint32(i), BufferDequeued)
				return s.frame(uint32(i), 0, 0, 0, 0, FieldAny), nil
			}
		}
	}

	if s.Queued() == 0 {
		return Frame{}, protocolError(s.path(), op, "no buffers queued")
	}
	f, err := s.dequeue()
	if err != nil {
		return Frame{}, err
	}
	if f.Flags&BufFlagError != 0 {
		return f, ioError(s.path(), op, fmt.Sprintf("buffer %d flagged as corrupted", f.Index), nil)
	}
	return f, nil
}

// Queue hands a dequeued buffer back to the driver. For output streams
// f.BytesUsed bytes of f.Buffer() are the payload and f.Timestamp and
// f.Field are passed along.
func (s *Stream) Queue(f Frame) error {
	return s.QueueBytes(f, f.BytesUsed)
}

// QueueBytes is Queue with an explicit payload size for output buffers.
func (s *Stream) QueueBytes(f Frame, n uint32) error {
	const op = "VIDIOC_QBUF"
	if !s.streaming {
		return protocolError(s.path(), op, "stream is not started")
	}
	if f.pool != s.pool || !f.Valid() {
		return protocolError(s.path(), op, fmt.Sprintf("buffer %d is not owned by the application under this frame", f.Index))
	}
	if s.capture() {
		n = 0
	} else if n > s.pool.bufs[f.Index].Length {
		return protocolError(s.path(), op, fmt.Sprintf("payload of %d bytes exceeds buffer length %d", n, s.pool.bufs[f.Index].Length))
	}
	if err := s.queue(f.Index, n, f.Timestamp, f.Field); err != nil {
		return err
	}
	if s.last == int(f.Index) {
		s.last = -1
	}
	return nil
}

// Wait blocks until a buffer can be dequeued or timeout expires, returning
// ErrNoFrame on expiry. A negative timeout waits indefinitely. For capture
// streams the frame returned by the previous Next is re-queued first.
func (s *Stream) Wait(timeout time.Duration) error {
	const op = "poll"
	if !s.streaming {
		return protocolError(s.path(), op, "stream is not started")
	}

	events := int16(unix.POLLIN)
	if s.capture() {
		if err := s.requeueLast(); err != nil {
			return err
		}
	} else {
		if s.pool.count(BufferIdle) > 0 {
			return nil
		}
		events = unix.POLLOUT
	}
	if s.Queued() == 0 {
		return protocolError(s.path(), op, "no buffers queued")
	}

	ready, err := s.pool.dev.drv.poll(events, timeout)
	if err != nil {
		return deviceError(s.path(), op, err)
	}
	if !ready {
		return ErrNoFrame
	}
	return nil
}

func (s *Stream) queue(i uint32, n uint32, ts time.Duration, field Field) error {
	raw := v4l2Buffer{
		index:  i,
		typ:    uint32(s.pool.typ),
		memory: v4l2MemoryMmap,
	}
	if !s.capture() {
		raw.bytesused = n
		raw.field = uint32(field)
		raw.timestamp = makeTimeval(ts)
	}
	if err := s.pool.dev.drv.ioctl(vidiocQbuf, unsafe.Pointer(&raw)); err != nil {
		return deviceError(s.path(), "VIDIOC_QBUF", err)
	}
	s.pool.setState(i, BufferQueued)
	return nil
}

func (s *Stream) dequeue() (Frame, error) {
	const op = "VIDIOC_DQBUF"
	raw := v4l2Buffer{
		typ:    uint32(s.pool.typ),
		memory: v4l2MemoryMmap,
	}
	if err := s.pool.dev.drv.ioctl(vidiocDqbuf, unsafe.Pointer(&raw)); err != nil {
		switch {
		case errors.Is(err, unix.EAGAIN):
			return Frame{}, ErrNoFrame
		case errors.Is(err, unix.EIO):
			return Frame{}, ioError(s.path(), op, "driver reported an I/O error", err)
		default:
			return Frame{}, deviceError(s.path(), op, err)
		}
	}
	if int(raw.index) >= len(s.pool.bufs) || s.pool.bufs[raw.index].State != BufferQueued {
		return Frame{}, newError(ErrCodeDevice, s.path(), op,
			fmt.Sprintf("driver returned buffer %d which was not queued", raw.index), nil)
	}

	s.pool.setState(raw.index, BufferDequeued)
	return s.frame(raw.index, raw.bytesused, raw.sequence, raw.timestamp.duration(), raw.flags, Field(raw.field)), nil
}

func (s *Stream) frame(i, bytesUsed, sequence uint32, ts time.Duration, flags uint32, field Field) Frame {
	return Frame{
		Index:     i,
		BytesUsed: bytesUsed,
		Sequence:  sequence,
		Timestamp: ts,
		Flags:     flags,
		Field:     field,
		pool:      s.pool,
		gen:       s.pool.bufs[i].gen,
	}
}
