//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Format is a single-planar pixel format as negotiated with the driver.
// BytesPerLine and SizeImage are chosen by the driver; leave them zero in
// requests unless a specific stride is needed.
type Format struct {
	Width        uint32
	Height       uint32
	PixelFormat  FourCC
	BytesPerLine uint32
	SizeImage    uint32
	Field        Field
	Colorspace   Colorspace
	Quantization Quantization
}

func (f Format) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "width        : %d\n", f.Width)
	fmt.Fprintf(&b, "height       : %d\n", f.Height)
	fmt.Fprintf(&b, "field        : %s\n", f.Field)
	fmt.Fprintf(&b, "fourcc       : %s\n", f.PixelFormat)
	fmt.Fprintf(&b, "stride       : %d\n", f.BytesPerLine)
	fmt.Fprintf(&b, "size         : %d\n", f.SizeImage)
	fmt.Fprintf(&b, "colorspace   : %s\n", f.Colorspace)
	fmt.Fprintf(&b, "quantization : %s\n", f.Quantization)
	return b.String()
}

func formatFromRaw(pix *v4l2PixFormat) Format {
	return Format{
		Width:        pix.width,
		Height:       pix.height,
		PixelFormat:  FourCC(pix.pixelformat),
		BytesPerLine: pix.bytesperline,
		SizeImage:    pix.sizeimage,
		Field:        Field(pix.field),
		Colorspace:   Colorspace(pix.colorspace),
		Quantization: Quantization(pix.quantization),
	}
}

func (f Format) raw() v4l2PixFormat {
	return v4l2PixFormat{
		width:        f.Width,
		height:       f.Height,
		pixelformat:  uint32(f.PixelFormat),
		field:        uint32(f.Field),
		bytesperline: f.BytesPerLine,
		sizeimage:    f.SizeImage,
		colorspace:   uint32(f.Colorspace),
		quantization: uint32(f.Quantization),
	}
}

// Format returns the active format (VIDIOC_G_FMT).
func (d *Device) Format() (Format, error) {
	if err := d.checkOpen("VIDIOC_G_FMT"); err != nil {
		return Format{}, err
	}
	f := v4l2Format{typ: uint32(d.typ)}
	if err := d.drv.ioctl(vidiocGFmt, unsafe.Pointer(&f)); err != nil {
		return Format{}, deviceError(d.path, "VIDIOC_G_FMT", err)
	}
	return formatFromRaw(&f.pix), nil
}

// SetFormat applies req (VIDIOC_S_FMT) and returns the format the driver
// actually applied, which may have different dimensions, stride or size.
//
// The format cannot change while a Pool exists. A driver that substitutes a
// different pixel encoding for req.PixelFormat fails the call.
func (d *Device) SetFormat(req Format) (Format, error) {
	const op = "VIDIOC_S_FMT"
	if err := d.checkOpen(op); err != nil {
		return Format{}, err
	}
	if d.Streaming() {
		return Format{}, deviceError(d.path, op, unix.EBUSY)
	}
	if d.pool != nil {
		return Format{}, protocolError(d.path, op, "format is fixed while a buffer pool exists")
	}

	// Reject a substituted encoding before the device is touched. Drivers
	// without VIDIOC_TRY_FMT get their previous format restored instead.
	var prev *v4l2Format
	if req.PixelFormat != 0 {
		try := v4l2Format{typ: uint32(d.typ), pix: req.raw()}
		err := d.drv.ioctl(vidiocTryFmt, unsafe.Pointer(&try))
		switch {
		case err == nil:
			if FourCC(try.pix.pixelformat) != req.PixelFormat {
				return Format{}, unsupportedFormat(d.path, op, req.PixelFormat, FourCC(try.pix.pixelformat))
			}
		case errors.Is(err, unix.ENOTTY):
			cur := v4l2Format{typ: uint32(d.typ)}
			if err := d.drv.ioctl(vidiocGFmt, unsafe.Pointer(&cur)); err != nil {
				return Format{}, deviceError(d.path, "VIDIOC_G_FMT", err)
			}
			prev = &cur
		default:
			return Format{}, deviceError(d.path, "VIDIOC_TRY_FMT", err)
		}
	}

	f := v4l2Format{typ: uint32(d.typ), pix: req.raw()}
	if err := d.drv.ioctl(vidiocSFmt, unsafe.Pointer(&f)); err != nil {
		return Format{}, deviceError(d.path, op, err)
	}
	got := formatFromRaw(&f.pix)

	if req.PixelFormat != 0 && got.PixelFormat != req.PixelFormat {
		if prev != nil {
			if err := d.drv.ioctl(vidiocSFmt, unsafe.Pointer(prev)); err != nil {
				logger().Warn("failed to restore format", "path", d.path, "error", err)
			}
		}
		return Format{}, unsupportedFormat(d.path, op, req.PixelFormat, got.PixelFormat)
	}

	logger().Debug("format applied",
		"path", d.path,
		"width", got.Width,
		"height", got.Height,
		"fourcc", got.PixelFormat.String(),
		"sizeimage", got.SizeImage)

	return got, nil
}

func unsupportedFormat(path, op string, want, chose FourCC) *Error {
	return newError(ErrCodeDevice, path, op,
		fmt.Sprintf("pixel format %s not supported, driver chose %s", want, chose), nil)
}

// TryFormat reports the format SetFormat would apply for req without
// changing device state (VIDIOC_TRY_FMT).
func (d *Device) TryFormat(req Format) (Format, error) {
	const op = "VIDIOC_TRY_FMT"
	if err := d.checkOpen(op); err != nil {
		return Format{}, err
	}
	f := v4l2Format{typ: uint32(d.typ), pix: req.raw()}
	if err := d.drv.ioctl(vidiocTryFmt, unsafe.Pointer(&f)); err != nil {
		return Format{}, deviceError(d.path, op, err)
	}
	return formatFromRaw(&f.pix), nil
}

// Params returns the streaming parameters (VIDIOC_G_PARM).
func (d *Device) Params() (Params, error) {
	const op = "VIDIOC_G_PARM"
	if err := d.checkOpen(op); err != nil {
		return Params{}, err
	}
	p := v4l2StreamParm{typ: uint32(d.typ)}
	if err := d.drv.ioctl(vidiocGParm, unsafe.Pointer(&p)); err != nil {
		return Params{}, deviceError(d.path, op, err)
	}
	return paramsFromRaw(&p.parm), nil
}

// SetParams applies the capture or output mode and frame interval
// (VIDIOC_S_PARM) and returns the parameters the driver applied.
func (d *Device) SetParams(req Params) (Params, error) {
	const op = "VIDIOC_S_PARM"
	if err := d.checkOpen(op); err != nil {
		return Params{}, err
	}
	p := v4l2StreamParm{typ: uint32(d.typ)}
	p.parm.capturemode = req.Modes
	p.parm.timeperframe = v4l2Fract{
		numerator:   req.Interval.Numerator,
		denominator: req.Interval.Denominator,
	}
	if err := d.drv.ioctl(vidiocSParm, unsafe.Pointer(&p)); err != nil {
		return Params{}, deviceError(d.path, op, err)
	}
	got := paramsFromRaw(&p.parm)

	logger().Debug("parameters applied", "path", d.path, "interval", got.Interval.String())

	return got, nil
}

func paramsFromRaw(p *v4l2CaptureParm) Params {
	return Params{
		Capabilities: p.capability,
		Modes:        p.capturemode,
		Interval: Fraction{
			Numerator:   p.timeperframe.numerator,
			Denominator: p.timeperframe.denominator,
		},
	}
}
