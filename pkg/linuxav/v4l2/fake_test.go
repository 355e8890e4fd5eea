//go:build linux

package v4l2

import (
	"syscall"
	"testing"
	"time"
	"unsafe"
)

// fakeDriver emulates the single-planar mmap streaming subset of a V4L2
// driver by interpreting the same structures the kernel would receive.
type fakeDriver struct {
	typ     BufType
	caps    uint32
	formats []fakeFormat
	sizes   map[FourCC][]Resolution
	// stepwise, when set, is the only frame size of every format.
	stepwise  *v4l2FrmsizeStepwise
	intervals []Fraction
	// clamp adjusts a requested format the way hardware alignment would.
	clamp func(*v4l2PixFormat)

	format   v4l2PixFormat
	interval v4l2Fract

	maxBuffers uint32
	// minBuffers raises smaller requests the way vb2 min_buffers_needed does.
	minBuffers uint32
	bufs       []*fakeBuffer
	queue      []uint32
	streaming  bool
	mapped     int
	sequence   uint32

	// Failure injection.
	mmapFailAt   int
	qbufFailAt   int
	streamOnErr  error
	streamOffErr error
	dqbufErr     error
	enumErr      error
	reqbufsErr   error
	noTryFmt     bool
	errorSeqs    map[uint32]bool
	// hold keeps queued buffers from completing.
	hold bool
	// lifo completes the most recently queued buffer first.
	lifo bool

	closed bool
}

type fakeFormat struct {
	fourcc FourCC
	desc   string
	flags  uint32
}

type fakeBuffer struct {
	data      []byte
	offset    uint32
	mapped    bool
	queued    bool
	bytesused uint32
	field     uint32
	timestamp time.Duration
}

func newFakeDriver(typ BufType) *fakeDriver {
	caps := uint32(CapStreaming)
	if typ == BufTypeVideoOutput {
		caps |= CapVideoOutput
	} else {
		caps |= CapVideoCapture
	}
	fd := &fakeDriver{
		typ:  typ,
		caps: caps,
		formats: []fakeFormat{
			{fourcc: PixFmtYUYV, desc: "YUYV 4:2:2"},
			{fourcc: PixFmtMJPEG, desc: "Motion-JPEG", flags: FmtFlagCompressed},
		},
		sizes: map[FourCC][]Resolution{
			PixFmtYUYV:  {{640, 480}, {1280, 720}},
			PixFmtMJPEG: {{640, 480}, {1280, 720}, {1920, 1080}},
		},
		intervals:  []Fraction{{1, 30}, {1, 15}},
		interval:   v4l2Fract{numerator: 1, denominator: 30},
		maxBuffers: 32,
		mmapFailAt: -1,
		qbufFailAt: -1,
	}
	fd.format = v4l2PixFormat{width: 640, height: 480, pixelformat: uint32(PixFmtYUYV)}
	fd.applyFormat(&fd.format)
	return fd
}

// newFakeDevice opens a Device on top of fd.
func newFakeDevice(t *testing.T, fd *fakeDriver) *Device {
	t.Helper()
	dev, err := newDevice("/dev/video-fake", fd, fd.typ)
	if err != nil {
		t.Fatalf("newDevice() error = %v", err)
	}
	return dev
}

// newFakeStream builds a device, pool and stream on fd.
func newFakeStream(t *testing.T, fd *fakeDriver, count uint32) (*Device, *Pool, *Stream) {
	t.Helper()
	dev := newFakeDevice(t, fd)
	pool, err := NewPool(dev, count)
	if err != nil {
		t.Fatalf("NewPool(%d) error = %v", count, err)
	}
	stream, err := NewStream(pool)
	if err != nil {
		t.Fatalf("NewStream() error = %v", err)
	}
	return dev, pool, stream
}

func durationMicros(us int64) time.Duration {
	return time.Duration(us) * time.Microsecond
}

func (d *fakeDriver) supports(fourcc uint32) bool {
	for _, f := range d.formats {
		if uint32(f.fourcc) == fourcc {
			return true
		}
	}
	return false
}

// applyFormat adjusts a requested format to what the fake hardware accepts.
func (d *fakeDriver) applyFormat(pix *v4l2PixFormat) {
	if !d.supports(pix.pixelformat) {
		pix.pixelformat = uint32(d.formats[0].fourcc)
	}
	if pix.width == 0 || pix.height == 0 {
		pix.width, pix.height = 640, 480
	}
	if d.clamp != nil {
		d.clamp(pix)
	}
	pix.field = uint32(FieldNone)
	pix.bytesperline = pix.width * 2
	pix.sizeimage = pix.bytesperline * pix.height
	pix.colorspace = uint32(ColorspaceSRGB)
	pix.quantization = uint32(QuantizationDefault)
}

func (d *fakeDriver) ioctl(req uint, arg unsafe.Pointer) error {
	if d.closed {
		return syscall.EBADF
	}
	switch req {
	case vidiocQuerycap:
		c := (*v4l2Capability)(arg)
		copy(c.driver[:], "fake")
		copy(c.card[:], "Fake Camera")
		copy(c.busInfo[:], "platform:fake")
		c.version = 6<<16 | 8<<8
		c.capabilities = d.caps | CapDeviceCaps
		c.deviceCaps = d.caps
		return nil

	case vidiocGFmt:
		f := (*v4l2Format)(arg)
		if BufType(f.typ) != d.typ {
			return syscall.EINVAL
		}
		f.pix = d.format
		return nil

	case vidiocSFmt, vidiocTryFmt:
		f := (*v4l2Format)(arg)
		if BufType(f.typ) != d.typ {
			return syscall.EINVAL
		}
		if req == vidiocTryFmt && d.noTryFmt {
			return syscall.ENOTTY
		}
		if req == vidiocSFmt && (d.streaming || len(d.bufs) > 0) {
			return syscall.EBUSY
		}
		d.applyFormat(&f.pix)
		if req == vidiocSFmt {
			d.format = f.pix
		}
		return nil

	case vidiocGParm, vidiocSParm:
		p := (*v4l2StreamParm)(arg)
		if BufType(p.typ) != d.typ {
			return syscall.EINVAL
		}
		if req == vidiocSParm && p.parm.timeperframe.denominator != 0 {
			d.interval = p.parm.timeperframe
			if d.interval.denominator > 60*d.interval.numerator {
				d.interval = v4l2Fract{numerator: 1, denominator: 60}
			}
		}
		p.parm.capability = CapTimePerFrame
		p.parm.timeperframe = d.interval
		return nil

	case vidiocReqbufs:
		r := (*v4l2RequestBuffers)(arg)
		if BufType(r.typ) != d.typ || r.memory != v4l2MemoryMmap {
			return syscall.EINVAL
		}
		if d.reqbufsErr != nil && r.count > 0 {
			return d.reqbufsErr
		}
		if d.streaming || d.mapped > 0 {
			return syscall.EBUSY
		}
		d.bufs = nil
		d.queue = nil
		n := min(r.count, d.maxBuffers)
		if n > 0 {
			n = max(n, d.minBuffers)
		}
		size := d.format.sizeimage
		pageSize := uint32(4096)
		stride := (size + pageSize - 1) / pageSize * pageSize
		for i := uint32(0); i < n; i++ {
			d.bufs = append(d.bufs, &fakeBuffer{
				data:   make([]byte, size),
				offset: i * stride,
			})
		}
		r.count = n
		return nil

	case vidiocQuerybuf:
		b := (*v4l2Buffer)(arg)
		if int(b.index) >= len(d.bufs) {
			return syscall.EINVAL
		}
		fb := d.bufs[b.index]
		b.offset = fb.offset
		b.length = uint32(len(fb.data))
		b.flags = d.flags(fb)
		return nil

	case vidiocQbuf:
		b := (*v4l2Buffer)(arg)
		if BufType(b.typ) != d.typ || int(b.index) >= len(d.bufs) {
			return syscall.EINVAL
		}
		fb := d.bufs[b.index]
		if fb.queued || !fb.mapped {
			return syscall.EINVAL
		}
		if d.qbufFailAt == int(b.index) {
			return syscall.EIO
		}
		fb.queued = true
		if d.typ == BufTypeVideoOutput {
			fb.bytesused = b.bytesused
			fb.field = b.field
			fb.timestamp = b.timestamp.duration()
		}
		d.queue = append(d.queue, b.index)
		return nil

	case vidiocDqbuf:
		b := (*v4l2Buffer)(arg)
		if d.dqbufErr != nil {
			return d.dqbufErr
		}
		if !d.streaming {
			return syscall.EINVAL
		}
		if len(d.queue) == 0 || d.hold {
			return syscall.EAGAIN
		}
		var idx uint32
		if d.lifo {
			idx = d.queue[len(d.queue)-1]
			d.queue = d.queue[:len(d.queue)-1]
		} else {
			idx = d.queue[0]
			d.queue = d.queue[1:]
		}
		fb := d.bufs[idx]
		fb.queued = false

		seq := d.sequence
		d.sequence++
		b.index = idx
		b.sequence = seq
		b.field = uint32(FieldNone)
		b.flags = BufFlagMapped | BufFlagDone
		if d.errorSeqs[seq] {
			b.flags |= BufFlagError
		}
		if d.typ == BufTypeVideoCapture {
			for i := range fb.data {
				fb.data[i] = byte(seq)
			}
			b.bytesused = uint32(len(fb.data))
			b.timestamp = makeTimeval(time.Duration(seq) * 33 * time.Millisecond)
		} else {
			b.bytesused = fb.bytesused
			b.timestamp = makeTimeval(fb.timestamp)
		}
		return nil

	case vidiocStreamon:
		if BufType(*(*uint32)(arg)) != d.typ {
			return syscall.EINVAL
		}
		if d.streamOnErr != nil {
			return d.streamOnErr
		}
		d.streaming = true
		return nil

	case vidiocStreamoff:
		if BufType(*(*uint32)(arg)) != d.typ {
			return syscall.EINVAL
		}
		if d.streamOffErr != nil {
			return d.streamOffErr
		}
		d.streaming = false
		d.queue = nil
		for _, fb := range d.bufs {
			fb.queued = false
		}
		return nil

	case vidiocEnumFmt:
		f := (*v4l2Fmtdesc)(arg)
		if d.enumErr != nil {
			return d.enumErr
		}
		if int(f.index) >= len(d.formats) {
			return syscall.EINVAL
		}
		ff := d.formats[f.index]
		f.pixelformat = uint32(ff.fourcc)
		f.flags = ff.flags
		copy(f.description[:], ff.desc)
		return nil

	case vidiocEnumFramesizes:
		f := (*v4l2Frmsizeenum)(arg)
		if d.enumErr != nil {
			return d.enumErr
		}
		if !d.supports(f.pixelFormat) {
			return syscall.EINVAL
		}
		if d.stepwise != nil {
			if f.index > 0 {
				return syscall.EINVAL
			}
			f.typ = v4l2FrmsizeTypeStepwise
			*f.stepwise() = *d.stepwise
			return nil
		}
		sizes := d.sizes[FourCC(f.pixelFormat)]
		if int(f.index) >= len(sizes) {
			return syscall.EINVAL
		}
		f.typ = v4l2FrmsizeTypeDiscrete
		f.discrete().width = sizes[f.index].Width
		f.discrete().height = sizes[f.index].Height
		return nil

	case vidiocEnumFrameintervals:
		f := (*v4l2Frmivalenum)(arg)
		if d.enumErr != nil {
			return d.enumErr
		}
		if !d.supports(f.pixelFormat) || int(f.index) >= len(d.intervals) {
			return syscall.EINVAL
		}
		f.typ = v4l2FrmivalTypeDiscrete
		f.discrete().numerator = d.intervals[f.index].Numerator
		f.discrete().denominator = d.intervals[f.index].Denominator
		return nil
	}
	return syscall.ENOTTY
}

func (d *fakeDriver) flags(fb *fakeBuffer) uint32 {
	var flags uint32
	if fb.mapped {
		flags |= BufFlagMapped
	}
	if fb.queued {
		flags |= BufFlagQueued
	}
	return flags
}

func (d *fakeDriver) mmap(offset int64, length int) ([]byte, error) {
	for i, fb := range d.bufs {
		if int64(fb.offset) != offset {
			continue
		}
		if length != len(fb.data) {
			return nil, syscall.EINVAL
		}
		if d.mmapFailAt == i {
			return nil, syscall.ENOMEM
		}
		fb.mapped = true
		d.mapped++
		return fb.data, nil
	}
	return nil, syscall.EINVAL
}

func (d *fakeDriver) munmap(b []byte) error {
	for _, fb := range d.bufs {
		if fb.mapped && len(b) > 0 && len(fb.data) > 0 && &fb.data[0] == &b[0] {
			fb.mapped = false
			d.mapped--
			return nil
		}
	}
	return syscall.EINVAL
}

func (d *fakeDriver) poll(events int16, timeout time.Duration) (bool, error) {
	if d.closed {
		return false, syscall.EBADF
	}
	if len(d.queue) > 0 && !d.hold {
		return true, nil
	}
	return false, nil
}

func (d *fakeDriver) close() error {
	d.closed = true
	return nil
}

// queued returns how many buffers the fake currently holds.
func (d *fakeDriver) queued() int {
	return len(d.queue)
}
