package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ErrProfileNotFound is returned when a profile ID is unknown.
var ErrProfileNotFound = errors.New("profile not found")

// Profile is a named capture setup: which device to open and what to ask
// it for. Zero values mean "keep the driver's current setting".
type Profile struct {
	ID          string `toml:"id" json:"id"`
	Device      string `toml:"device" json:"device"` // path, index or stable by-id/by-path name
	Width       uint32 `toml:"width,omitempty" json:"width,omitempty"`
	Height      uint32 `toml:"height,omitempty" json:"height,omitempty"`
	PixelFormat string `toml:"pixel_format,omitempty" json:"pixel_format,omitempty"` // FourCC, e.g. "YUYV"
	FPS         uint32 `toml:"fps,omitempty" json:"fps,omitempty"`
	Buffers     uint32 `toml:"buffers,omitempty" json:"buffers,omitempty"`

	CreatedAt time.Time `toml:"created_at" json:"created_at"`
	UpdatedAt time.Time `toml:"updated_at" json:"updated_at"`
}

// Validate checks the fields a capture session cannot do without.
func (p Profile) Validate() error {
	if p.ID == "" {
		return errors.New("profile ID cannot be empty")
	}
	if p.Device == "" {
		return errors.New("device cannot be empty")
	}
	if len(p.PixelFormat) > 4 {
		return fmt.Errorf("pixel format %q is longer than four characters", p.PixelFormat)
	}
	if (p.Width == 0) != (p.Height == 0) {
		return errors.New("width and height must be set together")
	}
	return nil
}

// ProfilesConfig is the on-disk layout of the profiles file.
type ProfilesConfig struct {
	Version  int                `toml:"version" json:"version"`
	Profiles map[string]Profile `toml:"profiles" json:"profiles"`
}

// ProfileStore keeps capture profiles in a TOML file. Every mutation is
// written back immediately.
type ProfileStore struct {
	mu     sync.RWMutex
	path   string
	config ProfilesConfig
}

// NewProfileStore creates a store backed by path. Nothing is read until Load.
func NewProfileStore(path string) *ProfileStore {
	if path == "" {
		path = "profiles.toml"
	}
	return &ProfileStore{
		path: path,
		config: ProfilesConfig{
			Version:  1,
			Profiles: make(map[string]Profile),
		},
	}
}

// Path returns the backing file.
func (s *ProfileStore) Path() string {
	return s.path
}

// Load reads the profiles file. A missing file leaves the store empty.
func (s *ProfileStore) Load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read profiles: %w", err)
	}

	var cfg ProfilesConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse profiles: %w", err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]Profile)
	}
	if cfg.Version == 0 {
		cfg.Version = 1
	}
	// The table key is authoritative.
	for id, p := range cfg.Profiles {
		p.ID = id
		cfg.Profiles[id] = p
	}

	s.mu.Lock()
	s.config = cfg
	s.mu.Unlock()
	return nil
}

// save writes the file through a temporary sibling so readers, including
// the config watcher, never see a partial file. Callers hold s.mu.
func (s *ProfileStore) save() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create profiles directory: %w", err)
	}

	data, err := toml.Marshal(s.config)
	if err != nil {
		return fmt.Errorf("failed to marshal profiles: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".profiles-*.toml")
	if err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	return nil
}

// Put creates or replaces a profile. CreatedAt survives replacement.
func (s *ProfileStore) Put(p Profile) (Profile, error) {
	p.PixelFormat = strings.ToUpper(strings.TrimSpace(p.PixelFormat))
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := s.config.Profiles[p.ID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	previous, had := s.config.Profiles[p.ID]
	s.config.Profiles[p.ID] = p
	if err := s.save(); err != nil {
		if had {
			s.config.Profiles[p.ID] = previous
		} else {
			delete(s.config.Profiles, p.ID)
		}
		return Profile{}, err
	}
	return p, nil
}

// Remove deletes a profile.
func (s *ProfileStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, ok := s.config.Profiles[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}
	delete(s.config.Profiles, id)
	if err := s.save(); err != nil {
		s.config.Profiles[id] = previous
		return err
	}
	return nil
}

// Get returns one profile.
func (s *ProfileStore) Get(id string) (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.config.Profiles[id]
	return p, ok
}

// List returns every profile ordered by ID.
func (s *ProfileStore) List() []Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Profile, 0, len(s.config.Profiles))
	for _, p := range s.config.Profiles {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Profile) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out
}
