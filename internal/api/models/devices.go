package models

// DeviceInfo is one video node.
type DeviceInfo struct {
	DevicePath   string   `json:"device_path" example:"/dev/video0" doc:"System device path"`
	DeviceName   string   `json:"device_name" example:"HD Pro Webcam C920" doc:"Card name reported by the driver"`
	DeviceID     string   `json:"device_id" example:"usb-046d_HD_Pro_Webcam_C920-video-index0" doc:"Stable device identifier"`
	Caps         uint32   `json:"caps" example:"69206017" doc:"Raw V4L2 capability flags of the node"`
	Capabilities []string `json:"capabilities" example:"[\"Video Capture\", \"Streaming I/O\"]" doc:"Capability names"`
	Capture      bool     `json:"capture" doc:"Supports video capture"`
	Output       bool     `json:"output" doc:"Supports video output"`
}

type DeviceData struct {
	Devices []DeviceInfo `json:"devices" doc:"List of available video devices"`
	Count   int          `json:"count" example:"2" doc:"Number of devices found"`
}

type DeviceResponse struct {
	Body DeviceData
}

// FormatData is a negotiated pixel format.
type FormatData struct {
	Width        uint32  `json:"width" example:"1280" doc:"Frame width in pixels"`
	Height       uint32  `json:"height" example:"720" doc:"Frame height in pixels"`
	PixelFormat  string  `json:"pixel_format" example:"YUYV" doc:"FourCC"`
	BytesPerLine uint32  `json:"bytes_per_line" example:"2560" doc:"Line stride chosen by the driver"`
	SizeImage    uint32  `json:"size_image" example:"1843200" doc:"Buffer size needed for one frame"`
	Field        string  `json:"field" example:"progressive" doc:"Field order"`
	Colorspace   string  `json:"colorspace" example:"sRGB" doc:"Colorspace"`
	FPS          float64 `json:"fps,omitempty" example:"30" doc:"Current frame rate, if the driver reports one"`
}

// Framerate is one frame interval.
type Framerate struct {
	Numerator   uint32  `json:"numerator" example:"1" doc:"Interval numerator"`
	Denominator uint32  `json:"denominator" example:"30" doc:"Interval denominator"`
	FPS         float64 `json:"fps" example:"30" doc:"Frames per second"`
}

// SizeInfo is one frame size and its rates.
type SizeInfo struct {
	Width      uint32      `json:"width" example:"1280" doc:"Frame width in pixels"`
	Height     uint32      `json:"height" example:"720" doc:"Frame height in pixels"`
	Stepwise   bool        `json:"stepwise,omitempty" doc:"Picked from a stepwise or continuous range"`
	Framerates []Framerate `json:"framerates,omitempty" doc:"Available frame rates"`
}

// FormatInfo is one supported pixel format.
type FormatInfo struct {
	PixelFormat string     `json:"pixel_format" example:"MJPG" doc:"FourCC"`
	Description string     `json:"description" example:"Motion-JPEG" doc:"Driver description"`
	Compressed  bool       `json:"compressed" doc:"Whether the payload is compressed"`
	Emulated    bool       `json:"emulated" doc:"Whether the format is converted in software"`
	Sizes       []SizeInfo `json:"sizes,omitempty" doc:"Frame sizes, when requested"`
}

type DeviceFormatsData struct {
	DevicePath string       `json:"device_path" example:"/dev/video0" doc:"Path to the video device"`
	Driver     string       `json:"driver" example:"uvcvideo" doc:"Kernel driver"`
	Card       string       `json:"card" example:"HD Pro Webcam C920" doc:"Card name"`
	BusInfo    string       `json:"bus_info" example:"usb-0000:00:14.0-1" doc:"Bus location"`
	Direction  string       `json:"direction" example:"capture" doc:"Buffer type the node was opened with"`
	Current    FormatData   `json:"current" doc:"Format currently set on the device"`
	Formats    []FormatInfo `json:"formats" doc:"Supported pixel formats"`
}

type DeviceFormatsResponse struct {
	Body DeviceFormatsData
}

// SnapshotRequestData selects what to capture. Empty fields keep the
// device's current settings.
type SnapshotRequestData struct {
	Resolution  string `json:"resolution,omitempty" example:"1280x720" doc:"Frame size as WIDTHxHEIGHT"`
	PixelFormat string `json:"pixel_format,omitempty" maxLength:"4" example:"MJPG" doc:"FourCC to request"`
	FPS         uint32 `json:"fps,omitempty" example:"30" doc:"Frame rate to request"`
	Skip        int    `json:"skip,omitempty" minimum:"0" maximum:"300" example:"5" doc:"Frames to discard before the snapshot"`
}

type SnapshotData struct {
	DevicePath  string `json:"device_path" example:"/dev/video0" doc:"Path to the video device"`
	PixelFormat string `json:"pixel_format" example:"MJPG" doc:"FourCC of the payload"`
	Width       uint32 `json:"width" example:"1280" doc:"Frame width"`
	Height      uint32 `json:"height" example:"720" doc:"Frame height"`
	Sequence    uint32 `json:"sequence" example:"5" doc:"Driver sequence number"`
	Bytes       int    `json:"bytes" example:"65536" doc:"Payload size"`
	Data        string `json:"data" doc:"Base64-encoded frame payload"`
}

type SnapshotResponse struct {
	Body SnapshotData
}
