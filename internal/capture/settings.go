package capture

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/smazurov/v4lstream/internal/config"
	"github.com/smazurov/v4lstream/pkg/linuxav/v4l2"
)

// ParseSize parses "WIDTHxHEIGHT". An empty string yields 0x0.
func ParseSize(s string) (width, height uint32, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, nil
	}
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid size %q, want WIDTHxHEIGHT", s)
	}
	w, err := strconv.ParseUint(ws, 10, 32)
	if err != nil || w == 0 {
		return 0, 0, fmt.Errorf("invalid width in %q", s)
	}
	h, err := strconv.ParseUint(hs, 10, 32)
	if err != nil || h == 0 {
		return 0, 0, fmt.Errorf("invalid height in %q", s)
	}
	return uint32(w), uint32(h), nil
}

// ParseFourCC validates and packs a pixel format code such as "YUYV". An
// empty string yields 0, meaning "keep the current format".
func ParseFourCC(s string) (v4l2.FourCC, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}
	if len(s) > 4 {
		return 0, fmt.Errorf("pixel format %q is longer than four characters", s)
	}
	for _, c := range []byte(s) {
		if c < 0x20 || c > 0x7e {
			return 0, fmt.Errorf("pixel format %q is not printable ASCII", s)
		}
	}
	return v4l2.NewFourCC(s), nil
}

// SettingsFromProfile converts a stored profile.
func SettingsFromProfile(p config.Profile) (Settings, error) {
	pf, err := ParseFourCC(p.PixelFormat)
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		Width:       p.Width,
		Height:      p.Height,
		PixelFormat: pf,
		FPS:         p.FPS,
		Buffers:     p.Buffers,
	}, nil
}
