package events

// Event type constants for kelindar/event.
const (
	TypeStreamStarted uint32 = iota + 1
	TypeStreamStopped
	TypeFrameError
	TypeSnapshot
	TypeLogEntry
	TypeConfigReloaded
	TypeStreamMetrics
	TypeDeviceChanged
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// StreamStartedEvent is published once STREAMON succeeded on a device.
type StreamStartedEvent struct {
	Session     string `json:"session" example:"3f0c6a2e-8d7b-4c1e-9a55-2b1f7e0d4c9a" doc:"Identifies one streaming run"`
	DevicePath  string `json:"device_path" example:"/dev/video0" doc:"Path to the video device"`
	Direction   string `json:"direction" example:"capture" enum:"capture,output" doc:"Buffer type of the stream"`
	PixelFormat string `json:"pixel_format" example:"YUYV" doc:"Negotiated FourCC"`
	Width       uint32 `json:"width" example:"640" doc:"Negotiated width"`
	Height      uint32 `json:"height" example:"480" doc:"Negotiated height"`
	Buffers     int    `json:"buffers" example:"4" doc:"Buffers granted by the driver"`
	Timestamp   string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamStartedEvent.
func (e StreamStartedEvent) Type() uint32 { return TypeStreamStarted }

// StreamStoppedEvent is published when a stream is turned off, whatever the cause.
type StreamStoppedEvent struct {
	Session    string `json:"session" example:"3f0c6a2e-8d7b-4c1e-9a55-2b1f7e0d4c9a" doc:"Matches the StreamStartedEvent of the same run"`
	DevicePath string `json:"device_path" example:"/dev/video0" doc:"Path to the video device"`
	Frames     uint64 `json:"frames" example:"300" doc:"Frames delivered while streaming"`
	Dropped    uint64 `json:"dropped" example:"2" doc:"Frames lost to sequence gaps"`
	Reason     string `json:"reason" example:"canceled" doc:"Why the stream stopped"`
	Error      string `json:"error,omitempty" doc:"Terminal error, if any"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamStoppedEvent.
func (e StreamStoppedEvent) Type() uint32 { return TypeStreamStopped }

// FrameErrorEvent is published for every failed frame: a buffer the driver
// flagged as corrupted or a dequeue that failed.
type FrameErrorEvent struct {
	DevicePath string `json:"device_path" example:"/dev/video0" doc:"Path to the video device"`
	Code       string `json:"code" example:"IO_ERROR" doc:"Error category"`
	Error      string `json:"error" doc:"Error description"`
	Sequence   uint32 `json:"sequence" example:"42" doc:"Driver sequence number, when a frame was returned"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for FrameErrorEvent.
func (e FrameErrorEvent) Type() uint32 { return TypeFrameError }

// SnapshotEvent is published after a single-frame capture completed.
type SnapshotEvent struct {
	DevicePath  string `json:"device_path" example:"/dev/video0" doc:"Path to the video device"`
	PixelFormat string `json:"pixel_format" example:"MJPG" doc:"FourCC of the payload"`
	Width       uint32 `json:"width" example:"1280" doc:"Frame width"`
	Height      uint32 `json:"height" example:"720" doc:"Frame height"`
	Bytes       int    `json:"bytes" example:"65536" doc:"Payload size"`
	Sequence    uint32 `json:"sequence" example:"3" doc:"Driver sequence number"`
	Timestamp   string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Capture timestamp"`
}

// Type returns the event type identifier for SnapshotEvent.
func (e SnapshotEvent) Type() uint32 { return TypeSnapshot }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"api" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }

// ConfigReloadedEvent is published after the config watcher applied a change.
type ConfigReloadedEvent struct {
	Path      string `json:"path" example:"config.toml" doc:"Reloaded file"`
	Level     string `json:"level" example:"info" doc:"Global log level now in effect"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ConfigReloadedEvent.
func (e ConfigReloadedEvent) Type() uint32 { return TypeConfigReloaded }

// StreamMetricsEvent carries a periodic per-device counter snapshot.
type StreamMetricsEvent struct {
	DevicePath string  `json:"device_path" example:"/dev/video0" doc:"Path to the video device"`
	FPS        float64 `json:"fps" example:"29.97" doc:"Frames per second over the last interval"`
	Frames     uint64  `json:"frames" example:"300" doc:"Frames delivered"`
	Bytes      uint64  `json:"bytes" example:"184320000" doc:"Payload bytes delivered"`
	Dropped    uint64  `json:"dropped" example:"2" doc:"Frames lost to sequence gaps"`
	Errors     uint64  `json:"errors" example:"0" doc:"Failed frames"`
	Queued     int     `json:"queued" example:"3" doc:"Buffers currently owned by the driver"`
	Streaming  bool    `json:"streaming" example:"true" doc:"Whether the device is streaming"`
}

// Type returns the event type identifier for StreamMetricsEvent.
func (e StreamMetricsEvent) Type() uint32 { return TypeStreamMetrics }

// DeviceChangedEvent is published when a video device appears, disappears
// or changes its capabilities.
type DeviceChangedEvent struct {
	Action     string `json:"action" example:"added" enum:"added,removed,changed" doc:"What happened to the device"`
	DevicePath string `json:"device_path" example:"/dev/video0" doc:"Path to the video device"`
	DeviceName string `json:"device_name" example:"HD Pro Webcam C920" doc:"Card name reported by the driver"`
	DeviceID   string `json:"device_id" example:"usb-046d_HD_Pro_Webcam_C920-video-index0" doc:"Stable device identifier"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceChangedEvent.
func (e DeviceChangedEvent) Type() uint32 { return TypeDeviceChanged }
