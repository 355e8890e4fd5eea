// Package devices finds V4L2 devices, resolves the names users give them
// and describes what they can do.
package devices

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/smazurov/v4lstream/pkg/linuxav/v4l2"
)

// ErrNotFound is returned when a device reference matches nothing.
var ErrNotFound = errors.New("device not found")

// devRoot is where device nodes and the udev symlink trees live.
var devRoot = "/dev"

// findDevices is replaced in tests.
var findDevices = v4l2.FindDevices

// Device is a video node that supports capture or output.
type Device struct {
	Path    string
	Name    string
	ID      string // stable identifier, from /dev/v4l/by-id when present
	Caps    uint32
	Capture bool
	Output  bool
}

// Streaming reports whether the node supports mmap streaming I/O.
func (d Device) Streaming() bool {
	return d.Caps&v4l2.CapStreaming != 0
}

// List returns every capture and output device, ordered by path.
func List() ([]Device, error) {
	infos, err := findDevices()
	if err != nil {
		return nil, err
	}

	out := make([]Device, 0, len(infos))
	for _, info := range infos {
		out = append(out, Device{
			Path:    info.DevicePath,
			Name:    info.DeviceName,
			ID:      info.DeviceID,
			Caps:    info.Caps,
			Capture: info.Caps&v4l2.CapVideoCapture != 0,
			Output:  info.Caps&v4l2.CapVideoOutput != 0,
		})
	}
	slices.SortFunc(out, func(a, b Device) int {
		return comparePaths(a.Path, b.Path)
	})
	return out, nil
}

// comparePaths orders /dev/video2 before /dev/video10.
func comparePaths(a, b string) int {
	pa, na := splitIndex(a)
	pb, nb := splitIndex(b)
	if c := strings.Compare(pa, pb); c != 0 {
		return c
	}
	return na - nb
}

func splitIndex(path string) (string, int) {
	i := len(path)
	for i > 0 && path[i-1] >= '0' && path[i-1] <= '9' {
		i--
	}
	n, _ := strconv.Atoi(path[i:])
	return path[:i], n
}

// Resolve turns a device reference into a node path. A reference is one of:
//
//   - an index, "0" for /dev/video0
//   - an absolute path
//   - a name under /dev/v4l/by-id or /dev/v4l/by-path
//   - a stable ID as reported by List
func Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: empty device reference", ErrNotFound)
	}

	if n, err := strconv.Atoi(ref); err == nil && n >= 0 {
		return filepath.Join(devRoot, "video"+ref), nil
	}

	if filepath.IsAbs(ref) {
		return ref, nil
	}

	// udev symlinks: by-id for USB devices, by-path for everything else.
	for _, dir := range []string{"by-id", "by-path"} {
		if dir == "by-id" && !strings.HasPrefix(ref, "usb-") {
			continue
		}
		candidate := filepath.Join(devRoot, "v4l", dir, ref)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	// Synthetic IDs exist only in List output.
	list, err := List()
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", ref, err)
	}
	for _, d := range list {
		if d.ID == ref {
			return d.Path, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, ref)
}
