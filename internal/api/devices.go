package api

import (
	"context"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/v4lstream/internal/api/models"
	"github.com/smazurov/v4lstream/internal/capture"
	"github.com/smazurov/v4lstream/internal/devices"
	"github.com/smazurov/v4lstream/pkg/linuxav/v4l2"
)

// snapshotDeadline bounds a whole snapshot request, including warmup frames.
const snapshotDeadline = 15 * time.Second

// DeviceRefInput names a device by path, index or stable ID.
type DeviceRefInput struct {
	Device string `path:"device" example:"0" doc:"Device index, /dev path (URL-encoded) or stable ID"`
}

// DeviceFormatsInput selects how deep format enumeration goes.
type DeviceFormatsInput struct {
	DeviceRefInput
	Sizes bool `query:"sizes" default:"false" doc:"Also enumerate frame sizes and rates"`
}

// DeviceSnapshotInput captures a single frame.
type DeviceSnapshotInput struct {
	DeviceRefInput
	Body models.SnapshotRequestData
}

// capabilityNames lists the capability bits worth showing, in display order.
var capabilityNames = []struct {
	flag uint32
	name string
}{
	{v4l2.CapVideoCapture, "Video Capture"},
	{v4l2.CapVideoOutput, "Video Output"},
	{v4l2.CapVideoOverlay, "Video Overlay"},
	{v4l2.CapVideoCaptureMPlane, "Multi-planar Video Capture"},
	{v4l2.CapVideoOutputMPlane, "Multi-planar Video Output"},
	{v4l2.CapVideoM2MMPlane, "Multi-planar Memory-to-Memory"},
	{v4l2.CapVideoM2M, "Memory-to-Memory"},
	{v4l2.CapMetaCapture, "Metadata Capture"},
	{v4l2.CapReadWrite, "Read/Write I/O"},
	{v4l2.CapStreaming, "Streaming I/O"},
}

// translateCapabilities converts V4L2 capability flags to readable strings.
func translateCapabilities(caps uint32) []string {
	names := []string{}
	for _, c := range capabilityNames {
		if caps&c.flag != 0 {
			names = append(names, c.name)
		}
	}
	return names
}

func toDeviceInfo(d devices.Device) models.DeviceInfo {
	return models.DeviceInfo{
		DevicePath:   d.Path,
		DeviceName:   d.Name,
		DeviceID:     d.ID,
		Caps:         d.Caps,
		Capabilities: translateCapabilities(d.Caps),
		Capture:      d.Capture,
		Output:       d.Output,
	}
}

func toFormatData(f v4l2.Format) models.FormatData {
	return models.FormatData{
		Width:        f.Width,
		Height:       f.Height,
		PixelFormat:  f.PixelFormat.String(),
		BytesPerLine: f.BytesPerLine,
		SizeImage:    f.SizeImage,
		Field:        f.Field.String(),
		Colorspace:   f.Colorspace.String(),
	}
}

func toFormatsData(desc *devices.Description) models.DeviceFormatsData {
	current := toFormatData(desc.Current)
	if desc.Params != nil {
		current.FPS = desc.Params.Interval.FPS()
	}

	formats := make([]models.FormatInfo, 0, len(desc.Formats))
	for _, f := range desc.Formats {
		info := models.FormatInfo{
			PixelFormat: f.PixelFormat.String(),
			Description: f.Description,
			Compressed:  f.Compressed(),
			Emulated:    f.Emulated(),
		}
		for _, size := range f.Sizes {
			s := models.SizeInfo{
				Width:    size.Width,
				Height:   size.Height,
				Stepwise: size.Stepwise,
			}
			for _, iv := range size.Intervals {
				s.Framerates = append(s.Framerates, models.Framerate{
					Numerator:   iv.Numerator,
					Denominator: iv.Denominator,
					FPS:         iv.FPS(),
				})
			}
			info.Sizes = append(info.Sizes, s)
		}
		formats = append(formats, info)
	}

	return models.DeviceFormatsData{
		DevicePath: desc.Path,
		Driver:     desc.Capability.Driver,
		Card:       desc.Capability.Card,
		BusInfo:    desc.Capability.BusInfo,
		Direction:  desc.Direction.String(),
		Current:    current,
		Formats:    formats,
	}
}

func toSnapshotData(path string, img *capture.Image) models.SnapshotData {
	return models.SnapshotData{
		DevicePath:  path,
		PixelFormat: img.Format.PixelFormat.String(),
		Width:       img.Format.Width,
		Height:      img.Format.Height,
		Sequence:    img.Sequence,
		Bytes:       len(img.Data),
		Data:        base64.StdEncoding.EncodeToString(img.Data),
	}
}

// settingsFromRequest validates the optional overrides of a snapshot body.
func settingsFromRequest(body models.SnapshotRequestData) (capture.Settings, error) {
	w, h, err := capture.ParseSize(body.Resolution)
	if err != nil {
		return capture.Settings{}, huma.Error422UnprocessableEntity("invalid resolution", err)
	}
	pf, err := capture.ParseFourCC(body.PixelFormat)
	if err != nil {
		return capture.Settings{}, huma.Error422UnprocessableEntity("invalid pixel format", err)
	}
	return capture.Settings{Width: w, Height: h, PixelFormat: pf, FPS: body.FPS}, nil
}

func (s *Server) snapshot(ctx context.Context, path string, settings capture.Settings, skip int) (*models.SnapshotResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, snapshotDeadline)
	defer cancel()

	img, err := s.devices.Snapshot(ctx, path, settings, skip)
	if err != nil {
		s.logger.Warn("Snapshot failed", "device", path, "error", err)
		return nil, toHTTPError("snapshot failed", err)
	}
	return &models.SnapshotResponse{Body: toSnapshotData(path, img)}, nil
}

func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List Devices",
		Description: "List V4L2 capture and output devices",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(ctx context.Context, _ *struct{}) (*models.DeviceResponse, error) {
		list, err := s.devices.List(ctx)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list devices", err)
		}
		infos := make([]models.DeviceInfo, 0, len(list))
		for _, d := range list {
			infos = append(infos, toDeviceInfo(d))
		}
		return &models.DeviceResponse{
			Body: models.DeviceData{Devices: infos, Count: len(infos)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-device-formats",
		Method:      http.MethodGet,
		Path:        "/api/devices/{device}/formats",
		Summary:     "Device Formats",
		Description: "Query the current format and enumerate supported pixel formats, sizes and frame rates",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 500, 503},
	}, func(_ context.Context, input *DeviceFormatsInput) (*models.DeviceFormatsResponse, error) {
		path, err := s.devices.Resolve(input.Device)
		if err != nil {
			return nil, toHTTPError("unknown device", err)
		}
		desc, err := s.devices.Describe(path, input.Sizes)
		if err != nil {
			return nil, toHTTPError("failed to query device", err)
		}
		return &models.DeviceFormatsResponse{Body: toFormatsData(desc)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "device-snapshot",
		Method:      http.MethodPost,
		Path:        "/api/devices/{device}/snapshot",
		Summary:     "Snapshot",
		Description: "Stream briefly and return one frame, base64 encoded",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 422, 500, 503, 504},
	}, func(ctx context.Context, input *DeviceSnapshotInput) (*models.SnapshotResponse, error) {
		settings, err := settingsFromRequest(input.Body)
		if err != nil {
			return nil, err
		}
		path, err := s.devices.Resolve(input.Device)
		if err != nil {
			return nil, toHTTPError("unknown device", err)
		}
		return s.snapshot(ctx, path, settings, input.Body.Skip)
	})
}
