package api

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/v4lstream/internal/api/models"
	"github.com/smazurov/v4lstream/internal/capture"
	"github.com/smazurov/v4lstream/internal/config"
	"github.com/smazurov/v4lstream/internal/devices"
	"github.com/smazurov/v4lstream/internal/events"
	"github.com/smazurov/v4lstream/internal/logging"
	"github.com/smazurov/v4lstream/pkg/linuxav/v4l2"
)

func TestMain(m *testing.M) {
	logging.Initialize(logging.Config{Level: "info", Format: "text"})
	os.Exit(m.Run())
}

// mockDevices is an in-memory DeviceService.
type mockDevices struct {
	list        []devices.Device
	desc        *devices.Description
	image       *capture.Image
	snapshotErr error

	lastSettings capture.Settings
	lastSkip     int
	lastPath     string
}

func (m *mockDevices) List(_ context.Context) ([]devices.Device, error) {
	return m.list, nil
}

func (m *mockDevices) Resolve(ref string) (string, error) {
	for _, d := range m.list {
		if ref == d.Path || ref == d.ID || "/dev/video"+ref == d.Path {
			return d.Path, nil
		}
	}
	return "", fmt.Errorf("%w: %s", devices.ErrNotFound, ref)
}

func (m *mockDevices) Describe(path string, _ bool) (*devices.Description, error) {
	if m.desc == nil || m.desc.Path != path {
		return nil, &v4l2.Error{Code: v4l2.ErrCodeDevice, Op: "open", Path: path}
	}
	return m.desc, nil
}

func (m *mockDevices) Snapshot(_ context.Context, path string, settings capture.Settings, skip int) (*capture.Image, error) {
	m.lastPath, m.lastSettings, m.lastSkip = path, settings, skip
	if m.snapshotErr != nil {
		return nil, m.snapshotErr
	}
	return m.image, nil
}

func newMockDevices() *mockDevices {
	format := v4l2.Format{Width: 640, Height: 480, PixelFormat: v4l2.PixFmtYUYV, BytesPerLine: 1280, SizeImage: 614400, Field: v4l2.FieldNone}
	return &mockDevices{
		list: []devices.Device{
			{Path: "/dev/video0", Name: "Webcam", ID: "usb-cam-video-index0", Caps: v4l2.CapVideoCapture | v4l2.CapStreaming, Capture: true},
			{Path: "/dev/video4", Name: "Loopback", ID: "platform-v4l2loopback-video", Caps: v4l2.CapVideoOutput | v4l2.CapStreaming, Output: true},
		},
		desc: &devices.Description{
			Path:       "/dev/video0",
			Capability: v4l2.Capability{Driver: "uvcvideo", Card: "Webcam", BusInfo: "usb-0000:00:14.0-1"},
			Direction:  v4l2.BufTypeVideoCapture,
			Current:    format,
			Params:     &v4l2.Params{Interval: v4l2.Fraction{Numerator: 1, Denominator: 30}},
			Formats: []devices.FormatInfo{{
				FormatDesc: v4l2.FormatDesc{Description: "YUYV 4:2:2", PixelFormat: v4l2.PixFmtYUYV},
				Sizes: []devices.SizeInfo{{
					Resolution: v4l2.Resolution{Width: 640, Height: 480},
					Intervals:  []v4l2.Fraction{{Numerator: 1, Denominator: 30}, {Numerator: 1, Denominator: 15}},
				}},
			}},
		},
		image: &capture.Image{Format: format, Sequence: 9, Data: []byte("frame-bytes")},
	}
}

type testServer struct {
	*httptest.Server
	devices *mockDevices
	bus     *events.Bus
}

func newTestServer(t *testing.T, withProfiles bool) *testServer {
	t.Helper()
	mock := newMockDevices()
	bus := events.New()
	opts := &Options{
		AuthUsername: "test",
		AuthPassword: "secret",
		Devices:      mock,
		EventBus:     bus,
	}
	if withProfiles {
		store := config.NewProfileStore(filepath.Join(t.TempDir(), "profiles.toml"))
		if err := store.Load(); err != nil {
			t.Fatal(err)
		}
		opts.Profiles = store
	}
	server := NewServer(opts)
	ts := httptest.NewServer(server.mux)
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, devices: mock, bus: bus}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = strings.NewReader(string(data))
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	req.SetBasicAuth("test", "secret")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestHealthWithoutAuth(t *testing.T) {
	ts := newTestServer(t, false)

	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
	var body models.HealthData
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q", body.Status)
	}
}

func TestAuth(t *testing.T) {
	ts := newTestServer(t, false)

	get := func(t *testing.T, url string, header string) int {
		req, _ := http.NewRequest(http.MethodGet, url, nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	good := base64.StdEncoding.EncodeToString([]byte("test:secret"))
	bad := base64.StdEncoding.EncodeToString([]byte("test:wrong"))

	tests := []struct {
		name   string
		url    string
		header string
		want   int
	}{
		{"missing", "/api/devices", "", http.StatusUnauthorized},
		{"wrong password", "/api/devices", "Basic " + bad, http.StatusUnauthorized},
		{"bearer", "/api/devices", "Bearer token", http.StatusUnauthorized},
		{"header", "/api/devices", "Basic " + good, http.StatusOK},
		{"query", "/api/devices?auth=" + good, "", http.StatusOK},
		{"garbage query", "/api/devices?auth=not-base64!", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := get(t, ts.URL+tt.url, tt.header); got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestListDevices(t *testing.T) {
	ts := newTestServer(t, false)

	var body models.DeviceData
	if status := ts.do(t, http.MethodGet, "/api/devices", nil, &body); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if body.Count != 2 || len(body.Devices) != 2 {
		t.Fatalf("devices = %+v", body)
	}
	cam := body.Devices[0]
	if cam.DevicePath != "/dev/video0" || !cam.Capture || cam.Output {
		t.Errorf("device = %+v", cam)
	}
	if strings.Join(cam.Capabilities, ",") != "Video Capture,Streaming I/O" {
		t.Errorf("capabilities = %v", cam.Capabilities)
	}
}

func TestDeviceFormats(t *testing.T) {
	ts := newTestServer(t, false)

	var body models.DeviceFormatsData
	if status := ts.do(t, http.MethodGet, "/api/devices/0/formats?sizes=true", nil, &body); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if body.Driver != "uvcvideo" || body.Direction != "capture" {
		t.Errorf("header = %+v", body)
	}
	if body.Current.PixelFormat != "YUYV" || body.Current.Width != 640 || body.Current.FPS != 30 {
		t.Errorf("current = %+v", body.Current)
	}
	if len(body.Formats) != 1 || len(body.Formats[0].Sizes) != 1 {
		t.Fatalf("formats = %+v", body.Formats)
	}
	rates := body.Formats[0].Sizes[0].Framerates
	if len(rates) != 2 || rates[0].FPS != 30 || rates[1].FPS != 15 {
		t.Errorf("framerates = %+v", rates)
	}

	if status := ts.do(t, http.MethodGet, "/api/devices/usb-cam-video-index0/formats", nil, nil); status != http.StatusOK {
		t.Errorf("by-id status = %d", status)
	}

	if status := ts.do(t, http.MethodGet, "/api/devices/9/formats", nil, nil); status != http.StatusNotFound {
		t.Errorf("unknown device status = %d, want 404", status)
	}
	// Known node that fails to open.
	if status := ts.do(t, http.MethodGet, "/api/devices/4/formats", nil, nil); status != http.StatusServiceUnavailable {
		t.Errorf("broken device status = %d, want 503", status)
	}
}

func TestDeviceSnapshot(t *testing.T) {
	ts := newTestServer(t, false)

	var body models.SnapshotData
	req := models.SnapshotRequestData{Resolution: "1280x720", PixelFormat: "mjpg", FPS: 15, Skip: 3}
	if status := ts.do(t, http.MethodPost, "/api/devices/0/snapshot", req, &body); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	data, err := base64.StdEncoding.DecodeString(body.Data)
	if err != nil || string(data) != "frame-bytes" {
		t.Errorf("data = %q, %v", data, err)
	}
	if body.Bytes != len("frame-bytes") || body.Sequence != 9 || body.PixelFormat != "YUYV" {
		t.Errorf("snapshot = %+v", body)
	}

	want := capture.Settings{Width: 1280, Height: 720, PixelFormat: v4l2.PixFmtMJPEG, FPS: 15}
	if ts.devices.lastSettings != want || ts.devices.lastSkip != 3 || ts.devices.lastPath != "/dev/video0" {
		t.Errorf("snapshot called with %+v skip %d on %s", ts.devices.lastSettings, ts.devices.lastSkip, ts.devices.lastPath)
	}

	bad := models.SnapshotRequestData{Resolution: "wide"}
	if status := ts.do(t, http.MethodPost, "/api/devices/0/snapshot", bad, nil); status != http.StatusUnprocessableEntity {
		t.Errorf("bad resolution status = %d, want 422", status)
	}

	ts.devices.snapshotErr = fmt.Errorf("%w: last error: %w", capture.ErrTooManyFailures, v4l2.ErrNoFrame)
	if status := ts.do(t, http.MethodPost, "/api/devices/0/snapshot", models.SnapshotRequestData{}, nil); status != http.StatusGatewayTimeout {
		t.Errorf("no signal status = %d, want 504", status)
	}
}

func TestProfiles(t *testing.T) {
	ts := newTestServer(t, true)

	put := models.ProfileRequestData{Device: "usb-cam-video-index0", Width: 1280, Height: 720, PixelFormat: "mjpg", FPS: 30}
	var saved models.ProfileData
	if status := ts.do(t, http.MethodPut, "/api/profiles/desk", put, &saved); status != http.StatusOK {
		t.Fatalf("put status = %d", status)
	}
	if saved.ID != "desk" || saved.PixelFormat != "MJPG" || saved.CreatedAt.IsZero() {
		t.Errorf("saved = %+v", saved)
	}

	var list models.ProfileListData
	ts.do(t, http.MethodGet, "/api/profiles", nil, &list)
	if list.Count != 1 || list.Profiles[0].ID != "desk" {
		t.Errorf("list = %+v", list)
	}

	var snap models.SnapshotData
	if status := ts.do(t, http.MethodPost, "/api/profiles/desk/snapshot?skip=2", nil, &snap); status != http.StatusOK {
		t.Fatalf("snapshot status = %d", status)
	}
	want := capture.Settings{Width: 1280, Height: 720, PixelFormat: v4l2.PixFmtMJPEG, FPS: 30}
	if ts.devices.lastSettings != want || ts.devices.lastSkip != 2 || ts.devices.lastPath != "/dev/video0" {
		t.Errorf("snapshot called with %+v skip %d on %s", ts.devices.lastSettings, ts.devices.lastSkip, ts.devices.lastPath)
	}

	half := models.ProfileRequestData{Device: "0", Width: 640}
	if status := ts.do(t, http.MethodPut, "/api/profiles/half", half, nil); status != http.StatusUnprocessableEntity {
		t.Errorf("width without height status = %d, want 422", status)
	}

	if status := ts.do(t, http.MethodDelete, "/api/profiles/desk", nil, nil); status != http.StatusOK {
		t.Errorf("delete status = %d", status)
	}
	if status := ts.do(t, http.MethodGet, "/api/profiles/desk", nil, nil); status != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", status)
	}
	if status := ts.do(t, http.MethodDelete, "/api/profiles/desk", nil, nil); status != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", status)
	}
}

func TestConfigReload(t *testing.T) {
	ts := newTestServer(t, false)
	if status := ts.do(t, http.MethodPost, "/api/config/reload", nil, nil); status != http.StatusNotFound {
		t.Errorf("status without reloader = %d, want 404", status)
	}

	calls := 0
	var reloadErr error
	server := NewServer(&Options{
		AuthUsername: "test",
		AuthPassword: "secret",
		Devices:      newMockDevices(),
		ReloadConfig: func() error {
			calls++
			return reloadErr
		},
	})
	hs := httptest.NewServer(server.mux)
	defer hs.Close()
	rs := &testServer{Server: hs}

	var resp struct {
		Message string `json:"message"`
	}
	if status := rs.do(t, http.MethodPost, "/api/config/reload", nil, &resp); status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if resp.Message != "config reloaded" || calls != 1 {
		t.Errorf("message = %q calls = %d", resp.Message, calls)
	}

	reloadErr = errors.New("toml: bad key")
	if status := rs.do(t, http.MethodPost, "/api/config/reload", nil, nil); status != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", status)
	}
}

func TestProfileRoutesDisabledWithoutStore(t *testing.T) {
	ts := newTestServer(t, false)
	if status := ts.do(t, http.MethodGet, "/api/profiles", nil, nil); status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
}

func TestLogs(t *testing.T) {
	ts := newTestServer(t, false)

	logger := logging.GetLogger("apitest")
	logger.Info("first entry")
	logger.Warn("second entry")

	var body models.LogListData
	if status := ts.do(t, http.MethodGet, "/api/logs?module=apitest&level=warn", nil, &body); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if body.Count != 1 || body.Entries[0].Message != "second entry" {
		t.Errorf("entries = %+v", body.Entries)
	}

	ts.do(t, http.MethodGet, "/api/logs?module=apitest&limit=1", nil, &body)
	if body.Count != 1 || body.Entries[0].Message != "second entry" {
		t.Errorf("limited entries = %+v", body.Entries)
	}
}

func TestLogLevels(t *testing.T) {
	ts := newTestServer(t, false)
	logging.GetLogger("leveltest")

	var levels models.LogLevelsData
	body := map[string]string{"level": "debug"}
	if status := ts.do(t, http.MethodPut, "/api/logs/levels/leveltest", body, &levels); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if levels.Levels["leveltest"] != "debug" || levels.Levels["global"] == "" {
		t.Errorf("levels = %v", levels.Levels)
	}

	if status := ts.do(t, http.MethodPut, "/api/logs/levels/leveltest", map[string]string{"level": "loud"}, nil); status != http.StatusUnprocessableEntity {
		t.Errorf("invalid level status = %d, want 422", status)
	}
}

func TestEventsStream(t *testing.T) {
	ts := newTestServer(t, false)

	creds := base64.StdEncoding.EncodeToString([]byte("test:secret"))
	resp, err := http.Get(ts.URL + "/api/events?auth=" + creds)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if !strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		t.Fatalf("content type = %q", resp.Header.Get("Content-Type"))
	}

	lines := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	next := func(prefix string) string {
		t.Helper()
		timeout := time.After(2 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					t.Fatal("stream closed")
				}
				if strings.HasPrefix(line, prefix) {
					return line
				}
			case <-timeout:
				t.Fatalf("timeout waiting for %q", prefix)
			}
		}
	}

	if msg := next("data:"); !strings.Contains(msg, "SSE connection established") {
		t.Fatalf("first message = %s", msg)
	}

	ts.bus.Publish(events.DeviceChangedEvent{Action: "added", DevicePath: "/dev/video7", Timestamp: time.Now().Format(time.RFC3339)})

	if ev := next("event:"); ev != "event: device-changed" {
		t.Errorf("event line = %q", ev)
	}
	if msg := next("data:"); !strings.Contains(msg, "/dev/video7") {
		t.Errorf("data = %s", msg)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, false)

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/devices", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("allow origin = %q", resp.Header.Get("Access-Control-Allow-Origin"))
	}
}

func TestToHTTPError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{devices.ErrNotFound, http.StatusNotFound},
		{config.ErrProfileNotFound, http.StatusNotFound},
		{&v4l2.Error{Code: v4l2.ErrCodeResource, Op: "VIDIOC_REQBUFS"}, http.StatusServiceUnavailable},
		{&v4l2.Error{Code: v4l2.ErrCodeDevice, Op: "open"}, http.StatusServiceUnavailable},
		{&v4l2.Error{Code: v4l2.ErrCodeIO, Op: "VIDIOC_DQBUF"}, http.StatusGatewayTimeout},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{&v4l2.Error{Code: v4l2.ErrCodeProtocol, Op: "VIDIOC_QBUF"}, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		err := toHTTPError("failed", tt.err)
		var status interface{ GetStatus() int }
		if !errors.As(err, &status) || status.GetStatus() != tt.want {
			t.Errorf("toHTTPError(%v) = %v, want status %d", tt.err, err, tt.want)
		}
	}
}
