package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWatcher_Reload(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "actuator.yaml", "actors:\n  - entity_id: switch.a\n    type: switch\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewWatcher(NewLoader(zerolog.Nop()), path, zerolog.Nop())
	w.SetDelay(100 * time.Millisecond)

	type reload struct {
		cfg *Config
		err error
	}
	reloads := make(chan reload, 16)
	if err := w.Watch(ctx, func(cfg *Config, err error) { reloads <- reload{cfg, err} }); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer w.Close()

	// Unrelated files in the same directory are ignored.
	writeFile(t, dir, "notes.txt", "ignored")

	content := "actors:\n  - entity_id: switch.a\n    type: switch\n  - entity_id: switch.b\n    type: switch\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	select {
	case r := <-reloads:
		if r.err != nil {
			t.Fatalf("reload failed: %v", r.err)
		}
		if len(r.cfg.Actors) != 2 {
			t.Errorf("expected 2 actors after reload, got %d", len(r.cfg.Actors))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	if err := os.WriteFile(path, []byte("actors: [{type: dimmer}]\n"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case r := <-reloads:
			if r.err != nil {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for failed reload")
		}
	}
}

func TestWatcher_MissingPath(t *testing.T) {
	w := NewWatcher(NewLoader(zerolog.Nop()), filepath.Join(t.TempDir(), "missing.yaml"), zerolog.Nop())
	if err := w.Watch(context.Background(), func(*Config, error) {}); err == nil {
		t.Error("expected error for missing path")
	}
}
