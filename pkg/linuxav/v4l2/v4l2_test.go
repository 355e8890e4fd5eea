//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"syscall"
	"testing"
	"unsafe"
)

func TestErrorMatchesByCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		target   error
		expected bool
	}{
		{
			name:     "device error matches ErrDevice",
			err:      deviceError("/dev/video0", "VIDIOC_S_FMT", syscall.EBUSY),
			target:   ErrDevice,
			expected: true,
		},
		{
			name:     "device error does not match ErrResource",
			err:      deviceError("/dev/video0", "VIDIOC_S_FMT", syscall.EBUSY),
			target:   ErrResource,
			expected: false,
		},
		{
			name:     "device error unwraps to errno",
			err:      deviceError("/dev/video0", "VIDIOC_S_FMT", syscall.EBUSY),
			target:   syscall.EBUSY,
			expected: true,
		},
		{
			name:     "wrapped protocol error matches ErrProtocol",
			err:      fmt.Errorf("capture: %w", protocolError("/dev/video0", "VIDIOC_DQBUF", "stream is not started")),
			target:   ErrProtocol,
			expected: true,
		},
		{
			name:     "resource error matches op-specific target",
			err:      resourceError("/dev/video0", "mmap", "buffer 1", syscall.ENOMEM),
			target:   &Error{Code: ErrCodeResource, Op: "mmap"},
			expected: true,
		},
		{
			name:     "resource error does not match other op",
			err:      resourceError("/dev/video0", "mmap", "buffer 1", syscall.ENOMEM),
			target:   &Error{Code: ErrCodeResource, Op: "VIDIOC_REQBUFS"},
			expected: false,
		},
		{
			name:     "io error is not ErrNoFrame",
			err:      ioError("/dev/video0", "VIDIOC_DQBUF", "corrupted", nil),
			target:   ErrNoFrame,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := errors.Is(tt.err, tt.target)
			if result != tt.expected {
				t.Errorf("errors.Is(%v, %v) = %v, want %v",
					tt.err, tt.target, result, tt.expected)
			}
		})
	}
}

func TestErrorString(t *testing.T) {
	err := deviceError("/dev/video0", "VIDIOC_S_FMT", syscall.EBUSY)
	got := err.Error()
	for _, want := range []string{"DEVICE_ERROR", "/dev/video0", "VIDIOC_S_FMT", "device busy"} {
		if !strings.Contains(got, want) {
			t.Errorf("Error() = %q, missing %q", got, want)
		}
	}

	if CodeOf(fmt.Errorf("wrapped: %w", err)) != ErrCodeDevice {
		t.Errorf("CodeOf() = %q, want %q", CodeOf(err), ErrCodeDevice)
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Error("CodeOf() of a plain error should be empty")
	}
	if !err.HasCode(ErrCodeDevice) {
		t.Error("HasCode(ErrCodeDevice) = false, want true")
	}
}

func TestFormatFourCC(t *testing.T) {
	tests := []struct {
		name     string
		format   uint32
		expected string
	}{
		{
			name:     "YUYV format",
			format:   uint32(PixFmtYUYV),
			expected: "YUYV",
		},
		{
			name:     "MJPEG format",
			format:   uint32(PixFmtMJPEG),
			expected: "MJPG",
		},
		{
			name:     "H264 format",
			format:   uint32(PixFmtH264),
			expected: "H264",
		},
		{
			name:     "NV12 format",
			format:   uint32(PixFmtNV12),
			expected: "NV12",
		},
		{
			name:     "YUYV kernel value",
			format:   0x56595559,
			expected: "YUYV",
		},
		{
			name:     "null bytes",
			format:   0x00000000,
			expected: "\x00\x00\x00\x00",
		},
		{
			name:     "mixed bytes",
			format:   0x01020304,
			expected: "\x04\x03\x02\x01",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FormatFourCC(tt.format)
			if result != tt.expected {
				t.Errorf("FormatFourCC(0x%08X) = %q, want %q", tt.format, result, tt.expected)
			}
		})
	}
}

func TestNewFourCCPadsShortCodes(t *testing.T) {
	if got := NewFourCC("Y8").String(); got != "Y8  " {
		t.Errorf("NewFourCC(%q).String() = %q, want %q", "Y8", got, "Y8  ")
	}
	if got := NewFourCC("YUYV-extra"); got != PixFmtYUYV {
		t.Errorf("NewFourCC ignores bytes past four: got %s", got)
	}
}

func TestFractionFPS(t *testing.T) {
	tests := []struct {
		name        string
		interval    Fraction
		expectedFPS float64
	}{
		{
			name:        "60 fps (1/60)",
			interval:    Fraction{Numerator: 1, Denominator: 60},
			expectedFPS: 60.0,
		},
		{
			name:        "29.97 fps (1001/30000)",
			interval:    Fraction{Numerator: 1001, Denominator: 30000},
			expectedFPS: 30000.0 / 1001.0,
		},
		{
			name:        "zero numerator returns 0",
			interval:    Fraction{Numerator: 0, Denominator: 60},
			expectedFPS: 0.0,
		},
		{
			name:        "zero denominator with non-zero numerator",
			interval:    Fraction{Numerator: 1, Denominator: 0},
			expectedFPS: 0.0,
		},
		{
			name:        "large values",
			interval:    Fraction{Numerator: 1000000, Denominator: 60000000},
			expectedFPS: 60.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.interval.FPS()
			if math.Abs(result-tt.expectedFPS) > 0.001 {
				t.Errorf("Fraction{%d, %d}.FPS() = %f, want %f",
					tt.interval.Numerator, tt.interval.Denominator,
					result, tt.expectedFPS)
			}
		})
	}
}

func TestCapabilityEffective(t *testing.T) {
	tests := []struct {
		name     string
		caps     Capability
		mask     uint32
		expected bool
	}{
		{
			name:     "device caps narrow physical caps",
			caps:     Capability{Capabilities: CapDeviceCaps | CapVideoCapture | CapVideoOutput | CapStreaming, DeviceCaps: CapVideoOutput | CapStreaming},
			mask:     CapVideoCapture,
			expected: false,
		},
		{
			name:     "device caps used when flagged",
			caps:     Capability{Capabilities: CapDeviceCaps | CapVideoCapture, DeviceCaps: CapVideoOutput | CapStreaming},
			mask:     CapVideoOutput | CapStreaming,
			expected: true,
		},
		{
			name:     "physical caps without device caps flag",
			caps:     Capability{Capabilities: CapVideoCapture | CapStreaming},
			mask:     CapVideoCapture | CapStreaming,
			expected: true,
		},
		{
			name:     "every flag in mask required",
			caps:     Capability{Capabilities: CapVideoCapture},
			mask:     CapVideoCapture | CapStreaming,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.caps.Has(tt.mask); got != tt.expected {
				t.Errorf("Has(%#x) = %v, want %v", tt.mask, got, tt.expected)
			}
		})
	}
}

type layoutCase struct {
	name string
	got  uintptr
	want uintptr
}

func TestStructLayout(t *testing.T) {
	is64 := unsafe.Sizeof(uintptr(0)) == 8
	tests := []layoutCase{
		{"v4l2_capability", unsafe.Sizeof(v4l2Capability{}), 104},
		{"v4l2_pix_format", unsafe.Sizeof(v4l2PixFormat{}), 48},
		{"v4l2_requestbuffers", unsafe.Sizeof(v4l2RequestBuffers{}), 20},
		{"v4l2_streamparm", unsafe.Sizeof(v4l2StreamParm{}), 204},
		{"v4l2_fmtdesc", unsafe.Sizeof(v4l2Fmtdesc{}), 64},
		{"v4l2_frmsizeenum", unsafe.Sizeof(v4l2Frmsizeenum{}), 44},
		{"v4l2_frmivalenum", unsafe.Sizeof(v4l2Frmivalenum{}), 52},
	}
	if is64 {
		tests = append(tests,
			layoutCase{"v4l2_format", unsafe.Sizeof(v4l2Format{}), 208},
			layoutCase{"v4l2_buffer", unsafe.Sizeof(v4l2Buffer{}), 88},
		)
	} else {
		tests = append(tests,
			layoutCase{"v4l2_format", unsafe.Sizeof(v4l2Format{}), 204},
			layoutCase{"v4l2_buffer", unsafe.Sizeof(v4l2Buffer{}), 68},
		)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("sizeof(%s) = %d, want %d", tt.name, tt.got, tt.want)
			}
		})
	}

	if is64 {
		var f v4l2Format
		if off := unsafe.Offsetof(f.pix); off != 8 {
			t.Errorf("v4l2_format.fmt offset = %d, want 8", off)
		}
		var b v4l2Buffer
		if off := unsafe.Offsetof(b.timestamp); off != 24 {
			t.Errorf("v4l2_buffer.timestamp offset = %d, want 24", off)
		}
		if off := unsafe.Offsetof(b.offset); off != 64 {
			t.Errorf("v4l2_buffer.m offset = %d, want 64", off)
		}
	}
}

func TestTimevalRoundTrip(t *testing.T) {
	for _, d := range []int64{0, 1, 999999, 1000000, 1234567890} {
		want := d * 1000 // microseconds to nanoseconds
		tv := makeTimeval(durationMicros(d))
		if got := tv.duration().Nanoseconds(); got != want {
			t.Errorf("timeval(%dus).duration() = %dns, want %dns", d, got, want)
		}
	}
}

func TestEnumStrings(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{BufTypeVideoCapture.String(), "capture"},
		{BufType(9).String(), "buftype(9)"},
		{FieldNone.String(), "progressive"},
		{Field(42).String(), "field(42)"},
		{ColorspaceSRGB.String(), "sRGB"},
		{QuantizationLimRange.String(), "limited range"},
		{BufferDequeued.String(), "dequeued"},
		{Fraction{1, 30}.String(), "1/30"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("String() = %q, want %q", tt.got, tt.want)
		}
	}
}
