package devices

import (
	"errors"
	"fmt"

	"github.com/smazurov/v4lstream/pkg/linuxav/v4l2"
)

// Description is everything a device reports about itself.
type Description struct {
	Path       string
	Capability v4l2.Capability
	Direction  v4l2.BufType
	Current    v4l2.Format
	Params     *v4l2.Params // nil when the driver has no streaming parameters
	Formats    []FormatInfo
}

// FormatInfo is one pixel format with the sizes and rates offered for it.
type FormatInfo struct {
	v4l2.FormatDesc
	Sizes []SizeInfo
}

// SizeInfo is one frame size and the frame intervals available at it.
type SizeInfo struct {
	v4l2.Resolution
	Stepwise  bool // picked from a stepwise or continuous range
	Intervals []v4l2.Fraction
}

// Describe opens path and enumerates its formats, sizes and intervals. With
// sizes false only the format list is collected.
func Describe(path string, sizes bool) (*Description, error) {
	dev, err := v4l2.Open(path)
	if err != nil {
		return nil, err
	}
	defer dev.Close()
	return describe(dev, sizes)
}

func describe(dev *v4l2.Device, sizes bool) (*Description, error) {
	desc := &Description{
		Path:       dev.Path(),
		Capability: dev.Capability(),
		Direction:  dev.Type(),
	}

	cur, err := dev.Format()
	if err != nil {
		return nil, err
	}
	desc.Current = cur

	if params, err := dev.Params(); err == nil {
		desc.Params = &params
	} else if !errors.Is(err, v4l2.ErrDevice) {
		return nil, err
	}

	formats, err := v4l2.Collect(dev.Formats())
	if err != nil {
		return nil, fmt.Errorf("enumerate formats: %w", err)
	}

	for _, f := range formats {
		info := FormatInfo{FormatDesc: f}
		if sizes {
			info.Sizes, err = describeSizes(dev, f.PixelFormat)
			if err != nil {
				return nil, err
			}
		}
		desc.Formats = append(desc.Formats, info)
	}
	return desc, nil
}

func describeSizes(dev *v4l2.Device, pf v4l2.FourCC) ([]SizeInfo, error) {
	frameSizes, err := v4l2.Collect(dev.FrameSizes(pf))
	if err != nil {
		return nil, fmt.Errorf("enumerate frame sizes for %s: %w", pf, err)
	}

	var out []SizeInfo
	for _, fs := range frameSizes {
		for _, res := range fs.Resolutions() {
			intervals, err := v4l2.Collect(dev.FrameIntervals(pf, res.Width, res.Height))
			if err != nil {
				return nil, fmt.Errorf("enumerate intervals for %s %s: %w", pf, res, err)
			}
			size := SizeInfo{
				Resolution: res,
				Stepwise:   fs.Type != v4l2.FrameSizeDiscrete,
			}
			for _, iv := range intervals {
				size.Intervals = append(size.Intervals, iv.Intervals()...)
			}
			out = append(out, size)
		}
	}
	return out, nil
}
