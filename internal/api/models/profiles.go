package models

import "time"

// ProfileData is a stored capture profile.
type ProfileData struct {
	ID          string    `json:"id" example:"desk" doc:"Profile identifier"`
	Device      string    `json:"device" example:"usb-046d_HD_Pro_Webcam_C920-video-index0" doc:"Device path, index or stable ID"`
	Width       uint32    `json:"width,omitempty" example:"1280" doc:"Frame width"`
	Height      uint32    `json:"height,omitempty" example:"720" doc:"Frame height"`
	PixelFormat string    `json:"pixel_format,omitempty" example:"MJPG" doc:"FourCC"`
	FPS         uint32    `json:"fps,omitempty" example:"30" doc:"Frame rate"`
	Buffers     uint32    `json:"buffers,omitempty" example:"4" doc:"Buffers to request"`
	CreatedAt   time.Time `json:"created_at" doc:"Creation time"`
	UpdatedAt   time.Time `json:"updated_at" doc:"Last update time"`
}

// ProfileRequestData is the writable part of a profile.
type ProfileRequestData struct {
	Device      string `json:"device" minLength:"1" example:"/dev/video0" doc:"Device path, index or stable ID"`
	Width       uint32 `json:"width,omitempty" example:"1280" doc:"Frame width"`
	Height      uint32 `json:"height,omitempty" example:"720" doc:"Frame height"`
	PixelFormat string `json:"pixel_format,omitempty" maxLength:"4" example:"MJPG" doc:"FourCC"`
	FPS         uint32 `json:"fps,omitempty" example:"30" doc:"Frame rate"`
	Buffers     uint32 `json:"buffers,omitempty" maximum:"32" example:"4" doc:"Buffers to request"`
}

type ProfileListData struct {
	Profiles []ProfileData `json:"profiles" doc:"Stored profiles"`
	Count    int           `json:"count" example:"1" doc:"Number of profiles"`
}

type ProfileListResponse struct {
	Body ProfileListData
}

type ProfileResponse struct {
	Body ProfileData
}
