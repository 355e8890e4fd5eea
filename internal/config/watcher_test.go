package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/v4lstream/internal/logging"
)

type testConfig struct {
	Name  string `toml:"name"`
	Value int    `toml:"value"`
}

func loadTestConfig(path string) (testConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return testConfig{}, err
	}
	var cfg testConfig
	err = toml.Unmarshal(data, &cfg)
	return cfg, err
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startWatcher[T any](t *testing.T, path string, loader func(string) (T, error), opts ...WatcherOption[T]) *Watcher[T] {
	t.Helper()
	watcher := NewConfigWatcher(path, loader, newTestLogger(), opts...)
	if err := watcher.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := watcher.Stop(); err != nil {
			t.Errorf("watcher.Stop failed: %v", err)
		}
	})
	// Give the watch time to settle before the first write.
	time.Sleep(100 * time.Millisecond)
	return watcher
}

func TestConfigWatcher_BasicReload(t *testing.T) {
	path := writeConfig(t, "name = \"initial\"\nvalue = 1\n")

	received := make(chan testConfig, 1)
	watcher := NewConfigWatcher(path, loadTestConfig, newTestLogger(), WithDebounce[testConfig](50*time.Millisecond))
	watcher.OnReload(func(cfg testConfig) {
		received <- cfg
	})
	if err := watcher.Start(); err != nil {
		t.Fatal(err)
	}
	defer watcher.Stop()
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte("name = \"updated\"\nvalue = 42\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-received:
		if cfg.Name != "updated" || cfg.Value != 42 {
			t.Errorf("got %+v, want name=updated, value=42", cfg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for config reload")
	}
}

func TestConfigWatcher_AtomicReplace(t *testing.T) {
	path := writeConfig(t, "value = 1\n")

	received := make(chan testConfig, 4)
	watcher := startWatcher(t, path, loadTestConfig, WithDebounce[testConfig](50*time.Millisecond))
	watcher.OnReload(func(cfg testConfig) {
		received <- cfg
	})

	// Editors commonly write a sibling file and rename it over the original.
	for _, value := range []int{2, 3} {
		tmp := filepath.Join(filepath.Dir(path), fmt.Sprintf(".config.toml.%d", value))
		if err := os.WriteFile(tmp, fmt.Appendf(nil, "value = %d\n", value), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.Rename(tmp, path); err != nil {
			t.Fatal(err)
		}

		select {
		case cfg := <-received:
			if cfg.Value != value {
				t.Errorf("got value %d, want %d", cfg.Value, value)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for reload after replace %d", value)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func TestConfigWatcher_IgnoresSiblingFiles(t *testing.T) {
	path := writeConfig(t, "value = 1\n")

	var count atomic.Int32
	watcher := startWatcher(t, path, loadTestConfig, WithDebounce[testConfig](20*time.Millisecond))
	watcher.OnReload(func(testConfig) {
		count.Add(1)
	})

	other := filepath.Join(filepath.Dir(path), "streams.toml")
	if err := os.WriteFile(other, []byte("value = 9\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)

	if got := count.Load(); got != 0 {
		t.Errorf("expected no reloads for a sibling file, got %d", got)
	}
}

func TestConfigWatcher_Unsubscribe(t *testing.T) {
	path := writeConfig(t, "value = 1\n")

	var count1, count2 atomic.Int32
	watcher := startWatcher(t, path, loadTestConfig, WithDebounce[testConfig](50*time.Millisecond))
	watcher.OnReload(func(testConfig) {
		count1.Add(1)
	})
	unsub2 := watcher.OnReload(func(testConfig) {
		count2.Add(1)
	})

	if err := watcher.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	unsub2()
	if err := watcher.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	if got := count1.Load(); got != 2 {
		t.Errorf("handler1: expected 2 calls, got %d", got)
	}
	if got := count2.Load(); got != 1 {
		t.Errorf("handler2: expected 1 call, got %d", got)
	}
}

func TestConfigWatcher_ErrorHandler(t *testing.T) {
	path := writeConfig(t, "name = \"valid\"\nvalue = 1\n")

	errorReceived := make(chan error, 1)
	configReceived := make(chan testConfig, 1)
	watcher := startWatcher(t, path, loadTestConfig,
		WithDebounce[testConfig](50*time.Millisecond),
		WithErrorHandler[testConfig](func(err error) {
			errorReceived <- err
		}),
	)
	watcher.OnReload(func(cfg testConfig) {
		configReceived <- cfg
	})

	if err := os.WriteFile(path, []byte("invalid toml [[["), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-errorReceived:
	case <-configReceived:
		t.Fatal("config handler should not be called on error")
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error handler")
	}
}

func TestConfigWatcher_ReloadReturnsLoaderError(t *testing.T) {
	path := writeConfig(t, "value = 1\n")
	loadErr := errors.New("boom")

	watcher := NewConfigWatcher(path, func(string) (testConfig, error) {
		return testConfig{}, loadErr
	}, newTestLogger())

	called := false
	watcher.OnReload(func(testConfig) {
		called = true
	})
	if err := watcher.Reload(); !errors.Is(err, loadErr) {
		t.Errorf("Reload() error = %v, want %v", err, loadErr)
	}
	if called {
		t.Error("handler called after a failed load")
	}
}

func TestConfigWatcher_Debounce(t *testing.T) {
	path := writeConfig(t, "value = 0\n")

	var count, lastValue atomic.Int32
	watcher := startWatcher(t, path, loadTestConfig, WithDebounce[testConfig](200*time.Millisecond))
	watcher.OnReload(func(cfg testConfig) {
		count.Add(1)
		lastValue.Store(int32(cfg.Value))
	})

	for i := 1; i <= 5; i++ {
		if err := os.WriteFile(path, fmt.Appendf(nil, "value = %d\n", i), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(50 * time.Millisecond)
	}
	time.Sleep(500 * time.Millisecond)

	if got := count.Load(); got != 1 {
		t.Errorf("expected 1 debounced call, got %d", got)
	}
	if got := lastValue.Load(); got != 5 {
		t.Errorf("expected final value 5, got %d", got)
	}
}

func TestConfigWatcher_Stop(t *testing.T) {
	path := writeConfig(t, "value = 1\n")

	var count atomic.Int32
	watcher := NewConfigWatcher(path, loadTestConfig, newTestLogger(), WithDebounce[testConfig](50*time.Millisecond))
	watcher.OnReload(func(testConfig) {
		count.Add(1)
	})
	if err := watcher.Start(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := watcher.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("value = 99\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)

	if got := count.Load(); got != 0 {
		t.Errorf("expected 0 calls after stop, got %d", got)
	}
}

func TestConfigWatcher_LoggingReload(t *testing.T) {
	path := writeConfig(t, loggingTOML)

	received := make(chan logging.Config, 1)
	watcher := startWatcher(t, path, LoadLoggingConfig, WithDebounce[logging.Config](50*time.Millisecond))
	watcher.OnReload(func(cfg logging.Config) {
		received <- cfg
	})

	updated := "[logging]\nlevel = \"error\"\n\n[logging.modules]\napi = \"debug\"\n"
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-received:
		if cfg.Level != "error" || cfg.Modules["api"] != "debug" {
			t.Errorf("reloaded logging config = %+v", cfg)
		}
		if _, ok := cfg.Modules["v4l2"]; ok {
			t.Error("removed module override survived the reload")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for logging reload")
	}
}
