package display

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"streamhostd/pkg/types"
)

const testSettings = `enabled = true
width = 1920
height = 1080
fps = 60

[[modes]]
width = 1920
height = 1080
fps = 60

[[modes]]
width = 2560
height = 1440
fps = 120
`

type fakeSuspender struct{ suspends []time.Duration }

func (f *fakeSuspender) Suspend(d time.Duration) { f.suspends = append(f.suspends, d) }

type fakeOutput struct {
	output string
	mode   types.DisplayMode
	calls  int
}

func (f *fakeOutput) SetOutputMode(output string, mode types.DisplayMode) error {
	f.output = output
	f.mode = mode
	f.calls++
	return nil
}

func newTestController(t *testing.T) (*Controller, *fakeSuspender, *fakeOutput, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "vdd_settings.toml")
	if err := os.WriteFile(path, []byte(testSettings), 0o644); err != nil {
		t.Fatalf("seed settings: %v", err)
	}
	sus := &fakeSuspender{}
	out := &fakeOutput{}
	c, err := New([]string{filepath.Join(dir, "missing.toml"), path}, "VDD1", out, sus, 8*time.Second, zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return c, sus, out, path
}

func TestNewResolvesFirstExistingCandidate(t *testing.T) {
	c, _, _, path := newTestController(t)
	if c.Path() != path {
		t.Fatalf("expected %q, got %q", path, c.Path())
	}
	if _, err := New([]string{"/nonexistent/a.toml"}, "", nil, nil, 0, zerolog.Nop()); !IsNotInstalled(err) {
		t.Fatalf("expected not-installed, got %v", err)
	}
}

func TestModesAndState(t *testing.T) {
	c, _, _, _ := newTestController(t)
	modes, err := c.Modes()
	if err != nil {
		t.Fatalf("modes: %v", err)
	}
	if len(modes) != 2 {
		t.Fatalf("expected 2 modes, got %d", len(modes))
	}
	st, err := c.State()
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if !st.Enabled || st.Current != (types.DisplayMode{Width: 1920, Height: 1080, FPS: 60}) {
		t.Fatalf("unexpected state %+v", st)
	}
	if st.HasChanges || st.Pending != nil {
		t.Fatalf("expected no pending changes, got %+v", st)
	}
}

func TestApplyRejectedLeavesFileUnchanged(t *testing.T) {
	c, sus, out, path := newTestController(t)
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	err = c.ApplySettings(types.DisplayMode{Width: 640, Height: 480, FPS: 30})
	if !IsSettingsInvalid(err) {
		t.Fatalf("expected invalid-settings, got %v", err)
	}
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(before) != string(after) {
		t.Fatal("rejected apply must not mutate the settings file")
	}
	if len(sus.suspends) != 0 || out.calls != 0 {
		t.Fatal("rejected apply must not suspend or touch service config")
	}
}

func TestApplyCommitsModeAndSettles(t *testing.T) {
	c, sus, out, _ := newTestController(t)
	mode := types.DisplayMode{Width: 2560, Height: 1440, FPS: 120}
	if err := c.ApplySettings(mode); err != nil {
		t.Fatalf("apply: %v", err)
	}

	st, err := c.State()
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if st.Current != mode {
		t.Fatalf("expected %+v applied, got %+v", mode, st.Current)
	}
	if st.HasChanges {
		t.Fatal("expected pending cleared after apply")
	}
	if out.calls != 1 || out.output != "VDD1" || out.mode != mode {
		t.Fatalf("expected service output update, got %+v", out)
	}
	if len(sus.suspends) != 1 || sus.suspends[0] != 8*time.Second {
		t.Fatalf("expected one settle suspend, got %v", sus.suspends)
	}
}

func TestStagePending(t *testing.T) {
	c, _, _, _ := newTestController(t)
	mode := types.DisplayMode{Width: 2560, Height: 1440, FPS: 120}
	if err := c.StagePending(mode); err != nil {
		t.Fatalf("stage: %v", err)
	}
	st, err := c.State()
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if !st.HasChanges || st.Pending == nil || *st.Pending != mode {
		t.Fatalf("expected pending %+v, got %+v", mode, st)
	}
	if err := c.StagePending(types.DisplayMode{Width: 1, Height: 2, FPS: 3}); !IsSettingsInvalid(err) {
		t.Fatalf("expected invalid-settings, got %v", err)
	}
}

func TestToggleFlipsAndSettles(t *testing.T) {
	c, sus, _, _ := newTestController(t)
	enabled, err := c.Toggle()
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if enabled {
		t.Fatal("expected disabled after first toggle")
	}
	enabled, err = c.Toggle()
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !enabled {
		t.Fatal("expected enabled after second toggle")
	}
	if len(sus.suspends) != 2 {
		t.Fatalf("expected 2 settle suspends, got %d", len(sus.suspends))
	}
}
