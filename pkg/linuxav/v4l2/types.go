//go:build linux

package v4l2

import (
	"fmt"
	"strconv"
)

// BufType selects the direction of a device's data flow.
type BufType uint32

// Buffer types.
const (
	BufTypeVideoCapture BufType = 1
	BufTypeVideoOutput  BufType = 2
)

func (t BufType) String() string {
	switch t {
	case BufTypeVideoCapture:
		return "capture"
	case BufTypeVideoOutput:
		return "output"
	default:
		return "buftype(" + strconv.Itoa(int(t)) + ")"
	}
}

// Capability flags.
const (
	CapVideoCapture       = 0x00000001
	CapVideoOutput        = 0x00000002
	CapVideoOverlay       = 0x00000004
	CapVideoCaptureMPlane = 0x00001000
	CapVideoOutputMPlane  = 0x00002000
	CapVideoM2MMPlane     = 0x00004000
	CapVideoM2M           = 0x00008000
	CapMetaCapture        = 0x00800000
	CapReadWrite          = 0x01000000
	CapStreaming          = 0x04000000
	CapDeviceCaps         = 0x80000000
)

// Format description flags.
const (
	FmtFlagCompressed = 0x0001
	FmtFlagEmulated   = 0x0002
)

// Buffer flags reported with a dequeued frame.
const (
	BufFlagMapped   = 0x00000001
	BufFlagQueued   = 0x00000002
	BufFlagDone     = 0x00000004
	BufFlagKeyframe = 0x00000008
	BufFlagPFrame   = 0x00000010
	BufFlagBFrame   = 0x00000020
	BufFlagError    = 0x00000040
	BufFlagLast     = 0x00100000
)

// Streaming parameter capability and mode flags.
const (
	CapTimePerFrame = 0x1000
	ModeHighQuality = 0x0001
)

// Common pixel formats.
var (
	PixFmtYUYV  = NewFourCC("YUYV")
	PixFmtUYVY  = NewFourCC("UYVY")
	PixFmtMJPEG = NewFourCC("MJPG")
	PixFmtJPEG  = NewFourCC("JPEG")
	PixFmtH264  = NewFourCC("H264")
	PixFmtHEVC  = NewFourCC("HEVC")
	PixFmtNV12  = NewFourCC("NV12")
	PixFmtNV16  = NewFourCC("NV16")
	PixFmtNV24  = NewFourCC("NV24")
	PixFmtYU12  = NewFourCC("YU12")
	PixFmtYV12  = NewFourCC("YV12")
	PixFmtRGB24 = NewFourCC("RGB3")
	PixFmtBGR24 = NewFourCC("BGR3")
	PixFmtGrey  = NewFourCC("GREY")
)

// FourCC is a four character pixel encoding code as used by the kernel.
type FourCC uint32

// NewFourCC packs the first four bytes of code, padding with spaces.
func NewFourCC(code string) FourCC {
	var b [4]byte
	for i := range b {
		if i < len(code) {
			b[i] = code[i]
		} else {
			b[i] = ' '
		}
	}
	return FourCC(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
}

// String returns the four character form, e.g. "YUYV".
func (f FourCC) String() string {
	return FormatFourCC(uint32(f))
}

// FormatFourCC converts a 4-byte pixel format to a human-readable string.
func FormatFourCC(format uint32) string {
	b := make([]byte, 4)
	b[0] = byte(format & 0xFF)
	b[1] = byte((format >> 8) & 0xFF)
	b[2] = byte((format >> 16) & 0xFF)
	b[3] = byte((format >> 24) & 0xFF)
	return string(b)
}

// Field is the field order of interlaced video.
type Field uint32

// Field orders.
const (
	FieldAny          Field = 0
	FieldNone         Field = 1
	FieldTop          Field = 2
	FieldBottom       Field = 3
	FieldInterlaced   Field = 4
	FieldSeqTB        Field = 5
	FieldSeqBT        Field = 6
	FieldAlternate    Field = 7
	FieldInterlacedTB Field = 8
	FieldInterlacedBT Field = 9
)

var fieldNames = map[Field]string{
	FieldAny:          "any",
	FieldNone:         "progressive",
	FieldTop:          "top",
	FieldBottom:       "bottom",
	FieldInterlaced:   "interlaced",
	FieldSeqTB:        "sequential top-bottom",
	FieldSeqBT:        "sequential bottom-top",
	FieldAlternate:    "alternate",
	FieldInterlacedTB: "interlaced top-bottom",
	FieldInterlacedBT: "interlaced bottom-top",
}

func (f Field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return "field(" + strconv.Itoa(int(f)) + ")"
}

// Colorspace identifies the color primaries of the pixel data.
type Colorspace uint32

// Colorspaces.
const (
	ColorspaceDefault     Colorspace = 0
	ColorspaceSMPTE170M   Colorspace = 1
	ColorspaceSMPTE240M   Colorspace = 2
	ColorspaceRec709      Colorspace = 3
	ColorspaceBT878       Colorspace = 4
	Colorspace470SystemM  Colorspace = 5
	Colorspace470SystemBG Colorspace = 6
	ColorspaceJPEG        Colorspace = 7
	ColorspaceSRGB        Colorspace = 8
	ColorspaceOpRGB       Colorspace = 9
	ColorspaceBT2020      Colorspace = 10
	ColorspaceRaw         Colorspace = 11
	ColorspaceDCIP3       Colorspace = 12
)

var colorspaceNames = map[Colorspace]string{
	ColorspaceDefault:     "default",
	ColorspaceSMPTE170M:   "SMPTE 170M",
	ColorspaceSMPTE240M:   "SMPTE 240M",
	ColorspaceRec709:      "Rec. 709",
	ColorspaceBT878:       "BT.878",
	Colorspace470SystemM:  "470 System M",
	Colorspace470SystemBG: "470 System BG",
	ColorspaceJPEG:        "JPEG",
	ColorspaceSRGB:        "sRGB",
	ColorspaceOpRGB:       "opRGB",
	ColorspaceBT2020:      "BT.2020",
	ColorspaceRaw:         "raw",
	ColorspaceDCIP3:       "DCI-P3",
}

func (c Colorspace) String() string {
	if name, ok := colorspaceNames[c]; ok {
		return name
	}
	return "colorspace(" + strconv.Itoa(int(c)) + ")"
}

// Quantization is the value range of the pixel data.
type Quantization uint32

// Quantization ranges.
const (
	QuantizationDefault   Quantization = 0
	QuantizationFullRange Quantization = 1
	QuantizationLimRange  Quantization = 2
)

func (q Quantization) String() string {
	switch q {
	case QuantizationDefault:
		return "default"
	case QuantizationFullRange:
		return "full range"
	case QuantizationLimRange:
		return "limited range"
	default:
		return "quantization(" + strconv.Itoa(int(q)) + ")"
	}
}

// Capability describes a device as reported by VIDIOC_QUERYCAP.
type Capability struct {
	Driver       string
	Card         string
	BusInfo      string
	Version      string
	Capabilities uint32
	DeviceCaps   uint32
}

// Effective returns the capability flags of the opened node, which are
// narrower than the physical device's flags when DeviceCaps is reported.
func (c Capability) Effective() uint32 {
	if c.Capabilities&CapDeviceCaps != 0 {
		return c.DeviceCaps
	}
	return c.Capabilities
}

// Has reports whether every flag in mask is set on the opened node.
func (c Capability) Has(mask uint32) bool {
	return c.Effective()&mask == mask
}

// Fraction is a rational number, used for frame intervals.
type Fraction struct {
	Numerator   uint32
	Denominator uint32
}

// FPS returns the frame rate an interval corresponds to.
func (f Fraction) FPS() float64 {
	if f.Numerator == 0 {
		return 0
	}
	return float64(f.Denominator) / float64(f.Numerator)
}

func (f Fraction) String() string {
	return fmt.Sprintf("%d/%d", f.Numerator, f.Denominator)
}

// Params are the streaming parameters of a device.
type Params struct {
	Capabilities uint32
	Modes        uint32
	Interval     Fraction
}

func (p Params) String() string {
	return fmt.Sprintf("capabilities : %#x\nmodes        : %#x\ninterval     : %s [s] (%.2f fps)\n",
		p.Capabilities, p.Modes, p.Interval, p.Interval.FPS())
}

// DeviceInfo contains information about a V4L2 device node.
type DeviceInfo struct {
	DevicePath string
	DeviceName string
	DeviceID   string // Stable identifier (from /dev/v4l/by-id/ or synthetic)
	Caps       uint32
}
