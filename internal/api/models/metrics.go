package models

import "time"

// StreamMetricsData is the current counter set of one device.
type StreamMetricsData struct {
	DevicePath string    `json:"device_path" example:"/dev/video0" doc:"Path to the video device"`
	Frames     uint64    `json:"frames" example:"300" doc:"Frames delivered"`
	Bytes      uint64    `json:"bytes" example:"184320000" doc:"Payload bytes delivered"`
	Dropped    uint64    `json:"dropped" example:"2" doc:"Frames lost to sequence gaps"`
	Errors     uint64    `json:"errors" example:"0" doc:"Failed frames"`
	Queued     int       `json:"queued" example:"3" doc:"Buffers owned by the driver"`
	Streaming  bool      `json:"streaming" example:"true" doc:"Whether the device is streaming"`
	LastFrame  time.Time `json:"last_frame,omitzero" doc:"Time of the last delivered frame"`
}

type StreamMetricsListData struct {
	Streams []StreamMetricsData `json:"streams" doc:"Per-device counters"`
}

type StreamMetricsListResponse struct {
	Body StreamMetricsListData
}
