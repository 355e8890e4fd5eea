package capture

import (
	"sync"
	"time"

	"github.com/smazurov/v4lstream/pkg/linuxav/v4l2"
)

type step struct {
	frame Frame
	err   error
}

func good(seq uint32, data string) step {
	return step{frame: Frame{Index: seq % 4, Sequence: seq, Data: []byte(data)}}
}

func corrupted(seq uint32) step {
	return step{
		frame: Frame{Index: seq % 4, Sequence: seq, Corrupted: true},
		err:   &v4l2.Error{Code: v4l2.ErrCodeIO, Op: "VIDIOC_DQBUF", Message: "buffer flagged as corrupted"},
	}
}

func noFrame() step {
	return step{err: v4l2.ErrNoFrame}
}

// fakeSource replays scripted results. Once the script runs out every
// Next reports ErrNoFrame.
type fakeSource struct {
	mu       sync.Mutex
	path     string
	steps    []step
	pos      int
	startErr error
	stopErr  error

	starts    int
	stops     int
	nextCalls int
	closed    bool
}

func newFakeSource(path string, steps ...step) *fakeSource {
	return &fakeSource{path: path, steps: steps}
}

func (s *fakeSource) Path() string { return s.path }

func (s *fakeSource) Format() v4l2.Format {
	return v4l2.Format{Width: 640, Height: 480, PixelFormat: v4l2.NewFourCC("YUYV"), SizeImage: 640 * 480 * 2}
}

func (s *fakeSource) Buffers() int { return 4 }

func (s *fakeSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.starts++
	return nil
}

func (s *fakeSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	return s.stopErr
}

func (s *fakeSource) Next(time.Duration) (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextCalls++
	if s.pos >= len(s.steps) {
		return Frame{}, v4l2.ErrNoFrame
	}
	st := s.steps[s.pos]
	s.pos++
	return st.frame, st.err
}

func (s *fakeSource) Queued() int { return 3 }

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSource) calls() (starts, stops, next int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts, s.stops, s.nextCalls
}

type fakeSink struct {
	mu       sync.Mutex
	writes   []string
	failures map[int]error // keyed by write attempt, starting at 1
	attempts int
	started  bool
	stopped  bool
}

func (s *fakeSink) Path() string { return "/dev/video99" }

func (s *fakeSink) Start() error {
	s.started = true
	return nil
}

func (s *fakeSink) Stop() error {
	s.stopped = true
	return nil
}

func (s *fakeSink) Write(data []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if err := s.failures[s.attempts]; err != nil {
		return err
	}
	s.writes = append(s.writes, string(data))
	return nil
}

func (s *fakeSink) Close() error { return nil }
