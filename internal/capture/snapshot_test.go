package capture

import (
	"context"
	"errors"
	"testing"

	"github.com/smazurov/v4lstream/internal/events"
	"github.com/smazurov/v4lstream/pkg/linuxav/v4l2"
)

func TestSnapshotFromSkipsWarmupFrames(t *testing.T) {
	bus := events.New()
	snapshots := subscribe[events.SnapshotEvent](t, bus)

	last := good(7, "final")
	src := newFakeSource("/dev/video-snap", good(5, "dark"), corrupted(6), good(6, "dim"), last)

	img, err := SnapshotFrom(context.Background(), src, SnapshotOptions{Skip: 2, Bus: bus})
	if err != nil {
		t.Fatalf("SnapshotFrom() error = %v", err)
	}
	if string(img.Data) != "final" || img.Sequence != 7 || img.Format.Width != 640 {
		t.Errorf("image = %+v", img)
	}

	// The image owns its bytes.
	last.frame.Data[0] = 'X'
	if string(img.Data) != "final" {
		t.Errorf("image data aliases the source buffer: %q", img.Data)
	}

	ev := waitEvent(t, snapshots)
	if ev.DevicePath != "/dev/video-snap" || ev.Bytes != 5 || ev.PixelFormat != "YUYV" || ev.Sequence != 7 {
		t.Errorf("snapshot event = %+v", ev)
	}
	if _, stops, _ := src.calls(); stops != 1 {
		t.Errorf("stops = %d, want 1", stops)
	}
}

func TestSnapshotFromNoSignal(t *testing.T) {
	src := newFakeSource("/dev/video-snap-empty")
	_, err := SnapshotFrom(context.Background(), src, SnapshotOptions{Timeout: 1})
	if !errors.Is(err, ErrTooManyFailures) || !errors.Is(err, v4l2.ErrNoFrame) {
		t.Errorf("SnapshotFrom() error = %v", err)
	}
}

func TestSnapshotFromCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := newFakeSource("/dev/video-snap-cancel", good(0, "a"))
	if _, err := SnapshotFrom(ctx, src, SnapshotOptions{}); !errors.Is(err, context.Canceled) {
		t.Errorf("SnapshotFrom() error = %v, want context.Canceled", err)
	}
}
