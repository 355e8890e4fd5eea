//go:build linux

package v4l2

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unsafe"
)

// Device is an open V4L2 video node with a fixed buffer direction.
//
// A Device owns at most one Pool. Device, Pool and Stream are not safe for
// concurrent use.
type Device struct {
	path   string
	drv    driver
	typ    BufType
	caps   Capability
	pool   *Pool
	closed bool
}

// Option configures how a device is opened.
type Option func(*openOptions)

type openOptions struct {
	nonblock bool
}

// WithNonBlock opens the node with O_NONBLOCK. Dequeues then return
// ErrNoFrame instead of blocking when no buffer has completed.
func WithNonBlock() Option {
	return func(o *openOptions) {
		o.nonblock = true
	}
}

// Open opens a device node, using the capture direction when the node
// supports it and the output direction otherwise.
func Open(path string, opts ...Option) (*Device, error) {
	return openPath(path, 0, opts)
}

// OpenIndex opens /dev/video<index>.
func OpenIndex(index int, opts ...Option) (*Device, error) {
	return Open(fmt.Sprintf("/dev/video%d", index), opts...)
}

// OpenCapture opens a device node for video capture.
func OpenCapture(path string, opts ...Option) (*Device, error) {
	return openPath(path, BufTypeVideoCapture, opts)
}

// OpenOutput opens a device node for video output.
func OpenOutput(path string, opts ...Option) (*Device, error) {
	return openPath(path, BufTypeVideoOutput, opts)
}

func openPath(path string, typ BufType, opts []Option) (*Device, error) {
	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}

	fd, err := openFD(path, o.nonblock)
	if err != nil {
		return nil, deviceError(path, "open", err)
	}

	dev, err := newDevice(path, fd, typ)
	if err != nil {
		_ = fd.close()
		return nil, err
	}
	return dev, nil
}

// newDevice queries the capabilities of an opened node and binds the
// requested direction. A zero typ selects the direction from capabilities.
func newDevice(path string, drv driver, typ BufType) (*Device, error) {
	var raw v4l2Capability
	if err := drv.ioctl(vidiocQuerycap, unsafe.Pointer(&raw)); err != nil {
		return nil, deviceError(path, "VIDIOC_QUERYCAP", err)
	}
	caps := capabilityFromRaw(&raw)

	switch typ {
	case 0:
		switch {
		case caps.Has(CapVideoCapture):
			typ = BufTypeVideoCapture
		case caps.Has(CapVideoOutput):
			typ = BufTypeVideoOutput
		default:
			return nil, newError(ErrCodeDevice, path, "open", "not a single-planar video capture or output device", nil)
		}
	case BufTypeVideoCapture:
		if !caps.Has(CapVideoCapture) {
			return nil, newError(ErrCodeDevice, path, "open", "device does not support video capture", nil)
		}
	case BufTypeVideoOutput:
		if !caps.Has(CapVideoOutput) {
			return nil, newError(ErrCodeDevice, path, "open", "device does not support video output", nil)
		}
	default:
		return nil, newError(ErrCodeDevice, path, "open", "unsupported buffer type "+typ.String(), nil)
	}

	logger().Debug("opened video device",
		"path", path,
		"card", caps.Card,
		"driver", caps.Driver,
		"type", typ.String())

	return &Device{
		path: path,
		drv:  drv,
		typ:  typ,
		caps: caps,
	}, nil
}

func capabilityFromRaw(raw *v4l2Capability) Capability {
	return Capability{
		Driver:       cstr(raw.driver[:]),
		Card:         cstr(raw.card[:]),
		BusInfo:      cstr(raw.busInfo[:]),
		Version:      fmt.Sprintf("%d.%d.%d", raw.version>>16, (raw.version>>8)&0xff, raw.version&0xff),
		Capabilities: raw.capabilities,
		DeviceCaps:   raw.deviceCaps,
	}
}

// Path returns the device node path.
func (d *Device) Path() string {
	return d.path
}

// Type returns the buffer direction the device was opened with.
func (d *Device) Type() BufType {
	return d.typ
}

// Capability returns the capabilities reported when the device was opened.
func (d *Device) Capability() Capability {
	return d.caps
}

// Pool returns the device's buffer pool, or nil if none exists.
func (d *Device) Pool() *Pool {
	return d.pool
}

// Streaming reports whether a stream on this device is running.
func (d *Device) Streaming() bool {
	return d.pool != nil && d.pool.stream != nil && d.pool.stream.streaming
}

// Close releases the buffer pool, if any, and closes the node. Calling
// Close more than once is a no-op.
func (d *Device) Close() error {
	if d.closed {
		return nil
	}
	var poolErr error
	if d.pool != nil {
		poolErr = d.pool.Close()
	}
	d.closed = true
	if err := d.drv.close(); err != nil {
		return deviceError(d.path, "close", err)
	}
	return poolErr
}

func (d *Device) checkOpen(op string) error {
	if d.closed {
		return newError(ErrCodeDevice, d.path, op, "device is closed", nil)
	}
	return nil
}

// FindDevices finds all V4L2 video capture and output devices on the system.
func FindDevices() ([]DeviceInfo, error) {
	entries, err := os.ReadDir("/sys/class/video4linux")
	if err != nil {
		if os.IsNotExist(err) {
			return []DeviceInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read video4linux directory: %w", err)
	}

	var devices []DeviceInfo

	for _, entry := range entries {
		devicePath := "/dev/" + entry.Name()

		fd, err := openFD(devicePath, true)
		if err != nil {
			logger().Debug("failed to open video device", "path", devicePath, "error", err)
			continue
		}

		var raw v4l2Capability
		err = fd.ioctl(vidiocQuerycap, unsafe.Pointer(&raw))
		_ = fd.close()
		if err != nil {
			logger().Debug("failed to query device capabilities", "path", devicePath, "error", err)
			continue
		}

		caps := capabilityFromRaw(&raw)
		if !caps.Has(CapVideoCapture) && !caps.Has(CapVideoOutput) {
			continue
		}

		indexValue := readSysfsInt(filepath.Join("/sys/class/video4linux", entry.Name(), "index"))

		stableID := findStableID(entry.Name(), indexValue)
		if stableID == "" {
			// Fallback: synthetic ID from bus_info + index
			if strings.HasPrefix(caps.BusInfo, "usb-") {
				stableID = fmt.Sprintf("%s-video-index%d", caps.BusInfo, indexValue)
			} else {
				stableID = fmt.Sprintf("platform-%s-video-index%d", caps.BusInfo, indexValue)
			}
		}

		devices = append(devices, DeviceInfo{
			DevicePath: devicePath,
			DeviceName: caps.Card,
			DeviceID:   stableID,
			Caps:       caps.Effective(),
		})
	}

	return devices, nil
}

// GetDevicePathByID finds the device path for a given stable device ID.
func GetDevicePathByID(deviceID string) (string, error) {
	devices, err := FindDevices()
	if err != nil {
		return "", fmt.Errorf("failed to find devices: %w", err)
	}

	for _, device := range devices {
		if device.DeviceID == deviceID {
			return device.DevicePath, nil
		}
	}

	return "", fmt.Errorf("device with ID %s not found", deviceID)
}

// findStableID looks for a stable ID symlink in /dev/v4l/by-id/
func findStableID(deviceName string, indexValue int) string {
	byIDDir := "/dev/v4l/by-id"
	entries, err := os.ReadDir(byIDDir)
	if err != nil {
		return ""
	}

	expectedSuffix := fmt.Sprintf("-video-index%d", indexValue)

	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink == 0 {
			continue
		}

		target, err := os.Readlink(filepath.Join(byIDDir, entry.Name()))
		if err != nil {
			continue
		}

		if filepath.Base(target) == deviceName && strings.HasSuffix(entry.Name(), expectedSuffix) {
			return entry.Name()
		}
	}

	return ""
}

// readSysfsInt reads an integer value from a sysfs file.
func readSysfsInt(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	val, _ := strconv.Atoi(strings.TrimSpace(string(data)))
	return val
}

// cstr converts a null-terminated byte slice to a Go string.
func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
