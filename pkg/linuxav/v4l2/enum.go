//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"iter"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// FormatDesc describes one pixel format supported by a device.
type FormatDesc struct {
	Index       uint32
	Type        BufType
	Flags       uint32
	Description string
	PixelFormat FourCC
}

// Compressed reports whether the format carries compressed data.
func (d FormatDesc) Compressed() bool {
	return d.Flags&FmtFlagCompressed != 0
}

// Emulated reports whether the format is converted in software by libv4l.
func (d FormatDesc) Emulated() bool {
	return d.Flags&FmtFlagEmulated != 0
}

func (d FormatDesc) String() string {
	var flags []string
	if d.Compressed() {
		flags = append(flags, "compressed")
	}
	if d.Emulated() {
		flags = append(flags, "emulated")
	}
	s := fmt.Sprintf("[%d] %s (%s)", d.Index, d.PixelFormat, d.Description)
	if len(flags) > 0 {
		s += " " + strings.Join(flags, ",")
	}
	return s
}

// FrameSizeType tells which fields of a FrameSize are meaningful.
type FrameSizeType uint32

// Frame size types.
const (
	FrameSizeDiscrete   FrameSizeType = v4l2FrmsizeTypeDiscrete
	FrameSizeContinuous FrameSizeType = v4l2FrmsizeTypeContinuous
	FrameSizeStepwise   FrameSizeType = v4l2FrmsizeTypeStepwise
)

// Resolution is a frame width and height in pixels.
type Resolution struct {
	Width  uint32
	Height uint32
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// FrameSize is one entry of VIDIOC_ENUM_FRAMESIZES. Discrete entries use
// Width and Height; stepwise and continuous entries use the Min, Max and
// Step fields.
type FrameSize struct {
	Index       uint32
	PixelFormat FourCC
	Type        FrameSizeType
	Width       uint32
	Height      uint32
	MinWidth    uint32
	MaxWidth    uint32
	StepWidth   uint32
	MinHeight   uint32
	MaxHeight   uint32
	StepHeight  uint32
}

func (s FrameSize) String() string {
	switch s.Type {
	case FrameSizeDiscrete:
		return fmt.Sprintf("Discrete: %dx%d", s.Width, s.Height)
	case FrameSizeContinuous:
		return fmt.Sprintf("Continuous: %dx%d - %dx%d", s.MinWidth, s.MinHeight, s.MaxWidth, s.MaxHeight)
	default:
		return fmt.Sprintf("Stepwise: %dx%d - %dx%d with step %d/%d",
			s.MinWidth, s.MinHeight, s.MaxWidth, s.MaxHeight, s.StepWidth, s.StepHeight)
	}
}

// commonResolutions are offered for stepwise and continuous ranges.
var commonResolutions = []Resolution{
	{320, 240},  // QVGA
	{640, 480},  // VGA
	{800, 600},  // SVGA
	{1024, 768}, // XGA
	{1280, 720}, // HD
	{1280, 960},
	{1280, 1024}, // SXGA
	{1920, 1080}, // Full HD
	{1920, 1200}, // WUXGA
	{2560, 1440}, // QHD
	{3840, 2160}, // 4K UHD
	{4096, 2160}, // 4K DCI
}

// Resolutions returns the discrete size, or the common resolutions that fit
// a stepwise or continuous range.
func (s FrameSize) Resolutions() []Resolution {
	if s.Type == FrameSizeDiscrete {
		return []Resolution{{s.Width, s.Height}}
	}
	var out []Resolution
	for _, r := range commonResolutions {
		if r.Width < s.MinWidth || r.Width > s.MaxWidth || r.Height < s.MinHeight || r.Height > s.MaxHeight {
			continue
		}
		if s.StepWidth > 1 && (r.Width-s.MinWidth)%s.StepWidth != 0 {
			continue
		}
		if s.StepHeight > 1 && (r.Height-s.MinHeight)%s.StepHeight != 0 {
			continue
		}
		out = append(out, r)
	}
	return out
}

// FrameIntervalType tells which fields of a FrameInterval are meaningful.
type FrameIntervalType uint32

// Frame interval types.
const (
	FrameIntervalDiscrete   FrameIntervalType = v4l2FrmivalTypeDiscrete
	FrameIntervalContinuous FrameIntervalType = v4l2FrmivalTypeContinuous
	FrameIntervalStepwise   FrameIntervalType = v4l2FrmivalTypeStepwise
)

// FrameInterval is one entry of VIDIOC_ENUM_FRAMEINTERVALS. Discrete
// entries use Interval; stepwise and continuous entries use Min, Max and
// Step.
type FrameInterval struct {
	Index       uint32
	PixelFormat FourCC
	Width       uint32
	Height      uint32
	Type        FrameIntervalType
	Interval    Fraction
	Min         Fraction
	Max         Fraction
	Step        Fraction
}

func (i FrameInterval) String() string {
	switch i.Type {
	case FrameIntervalDiscrete:
		return fmt.Sprintf("Discrete: %s [s] (%.2f fps)", i.Interval, i.Interval.FPS())
	case FrameIntervalContinuous:
		return fmt.Sprintf("Continuous: %s - %s [s]", i.Min, i.Max)
	default:
		return fmt.Sprintf("Stepwise: %s - %s [s] with step %s", i.Min, i.Max, i.Step)
	}
}

var commonIntervals = []Fraction{
	{1, 60}, // 60 fps
	{1, 50}, // 50 fps
	{1, 30}, // 30 fps
	{1, 25}, // 25 fps
	{1, 20}, // 20 fps
	{1, 15}, // 15 fps
	{1, 10}, // 10 fps
	{1, 5},  // 5 fps
}

// Intervals returns the discrete interval, or the common intervals that
// fall within a stepwise or continuous range.
func (i FrameInterval) Intervals() []Fraction {
	if i.Type == FrameIntervalDiscrete {
		return []Fraction{i.Interval}
	}
	minFPS, maxFPS := i.Max.FPS(), i.Min.FPS()
	var out []Fraction
	for _, f := range commonIntervals {
		fps := f.FPS()
		if fps >= minFPS && fps <= maxFPS {
			out = append(out, f)
		}
	}
	return out
}

// Formats enumerates the pixel formats of the device's buffer type. Each
// range over the sequence starts again from the first format.
func (d *Device) Formats() iter.Seq2[FormatDesc, error] {
	return func(yield func(FormatDesc, error) bool) {
		const op = "VIDIOC_ENUM_FMT"
		if err := d.checkOpen(op); err != nil {
			yield(FormatDesc{}, err)
			return
		}
		for i := uint32(0); ; i++ {
			desc := v4l2Fmtdesc{index: i, typ: uint32(d.typ)}
			if err := d.drv.ioctl(vidiocEnumFmt, unsafe.Pointer(&desc)); err != nil {
				if errors.Is(err, unix.EINVAL) || errors.Is(err, unix.ENOTTY) {
					return // End of enumeration
				}
				yield(FormatDesc{}, deviceError(d.path, op, err))
				return
			}
			if !yield(FormatDesc{
				Index:       desc.index,
				Type:        BufType(desc.typ),
				Flags:       desc.flags,
				Description: cstr(desc.description[:]),
				PixelFormat: FourCC(desc.pixelformat),
			}, nil) {
				return
			}
		}
	}
}

// FrameSizes enumerates the frame sizes supported for a pixel format.
// Devices without frame size enumeration produce an empty sequence.
func (d *Device) FrameSizes(pixelFormat FourCC) iter.Seq2[FrameSize, error] {
	return func(yield func(FrameSize, error) bool) {
		const op = "VIDIOC_ENUM_FRAMESIZES"
		if err := d.checkOpen(op); err != nil {
			yield(FrameSize{}, err)
			return
		}
		for i := uint32(0); ; i++ {
			raw := v4l2Frmsizeenum{index: i, pixelFormat: uint32(pixelFormat)}
			if err := d.drv.ioctl(vidiocEnumFramesizes, unsafe.Pointer(&raw)); err != nil {
				if errors.Is(err, unix.EINVAL) || errors.Is(err, unix.ENOTTY) {
					return
				}
				yield(FrameSize{}, deviceError(d.path, op, err))
				return
			}
			size := FrameSize{
				Index:       raw.index,
				PixelFormat: FourCC(raw.pixelFormat),
				Type:        FrameSizeType(raw.typ),
			}
			if size.Type == FrameSizeDiscrete {
				size.Width = raw.discrete().width
				size.Height = raw.discrete().height
			} else {
				sw := raw.stepwise()
				size.MinWidth, size.MaxWidth, size.StepWidth = sw.minWidth, sw.maxWidth, sw.stepWidth
				size.MinHeight, size.MaxHeight, size.StepHeight = sw.minHeight, sw.maxHeight, sw.stepHeight
			}
			if !yield(size, nil) {
				return
			}
			// A stepwise or continuous entry is the only entry.
			if size.Type != FrameSizeDiscrete {
				return
			}
		}
	}
}

// FrameIntervals enumerates the frame intervals supported for a pixel
// format at the given size.
func (d *Device) FrameIntervals(pixelFormat FourCC, width, height uint32) iter.Seq2[FrameInterval, error] {
	return func(yield func(FrameInterval, error) bool) {
		const op = "VIDIOC_ENUM_FRAMEINTERVALS"
		if err := d.checkOpen(op); err != nil {
			yield(FrameInterval{}, err)
			return
		}
		for i := uint32(0); ; i++ {
			raw := v4l2Frmivalenum{
				index:       i,
				pixelFormat: uint32(pixelFormat),
				width:       width,
				height:      height,
			}
			if err := d.drv.ioctl(vidiocEnumFrameintervals, unsafe.Pointer(&raw)); err != nil {
				if errors.Is(err, unix.EINVAL) || errors.Is(err, unix.ENOTTY) {
					return
				}
				yield(FrameInterval{}, deviceError(d.path, op, err))
				return
			}
			ival := FrameInterval{
				Index:       raw.index,
				PixelFormat: FourCC(raw.pixelFormat),
				Width:       raw.width,
				Height:      raw.height,
				Type:        FrameIntervalType(raw.typ),
			}
			if ival.Type == FrameIntervalDiscrete {
				disc := raw.discrete()
				ival.Interval = Fraction{disc.numerator, disc.denominator}
			} else {
				sw := raw.stepwise()
				ival.Min = Fraction{sw.min.numerator, sw.min.denominator}
				ival.Max = Fraction{sw.max.numerator, sw.max.denominator}
				ival.Step = Fraction{sw.step.numerator, sw.step.denominator}
			}
			if !yield(ival, nil) {
				return
			}
			if ival.Type != FrameIntervalDiscrete {
				return
			}
		}
	}
}

// Collect drains an enumeration into a slice, stopping at the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for v, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}
