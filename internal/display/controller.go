// Package display controls the virtual display driver through its settings
// file. The driver only accepts modes from its own allowed list, and it
// re-detects asynchronously after any change, so every mutation is followed
// by a settle window during which service status is not trusted.
package display

import (
	"bytes"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/natefinch/atomic"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"

	"streamhostd/internal/common/fsutil"
	"streamhostd/pkg/types"
)

// Suspender suppresses status publishes for the settle window. Satisfied by
// *monitor.Monitor.
type Suspender interface {
	Suspend(d time.Duration)
}

// OutputWriter pushes the applied mode into the service's per-output
// configuration. Satisfied by *svcconfig.Store.
type OutputWriter interface {
	SetOutputMode(output string, mode types.DisplayMode) error
}

// settingsFile is the driver's on-disk TOML settings document.
type settingsFile struct {
	Enabled bool        `toml:"enabled"`
	Width   int         `toml:"width"`
	Height  int         `toml:"height"`
	FPS     int         `toml:"fps"`
	Modes   []modeEntry `toml:"modes"`
}

type modeEntry struct {
	Width  int `toml:"width"`
	Height int `toml:"height"`
	FPS    int `toml:"fps"`
}

// Controller holds the pending-versus-applied view of the driver. A settings
// apply is atomic from the caller's perspective: the whole mode commits in
// one file write or not at all.
type Controller struct {
	path       string
	outputName string
	output     OutputWriter
	suspender  Suspender
	settle     time.Duration
	log        zerolog.Logger

	mu      sync.Mutex
	pending *types.DisplayMode
}

// New locates the driver settings file among candidates and constructs a
// controller. output and suspender may be nil when those integrations are
// not wired (tests, cleanup paths).
func New(candidates []string, outputName string, output OutputWriter, suspender Suspender, settle time.Duration, log zerolog.Logger) (*Controller, error) {
	path := fsutil.FirstExisting(candidates...)
	if path == "" {
		return nil, ErrNotInstalled()
	}
	return &Controller{
		path:       path,
		outputName: outputName,
		output:     output,
		suspender:  suspender,
		settle:     settle,
		log:        log.With().Str("component", "display").Str("settings", path).Logger(),
	}, nil
}

// Path returns the resolved settings file location.
func (c *Controller) Path() string { return c.path }

// Modes returns the driver's allowed resolution/refresh-rate set.
func (c *Controller) Modes() ([]types.DisplayMode, error) {
	sf, err := c.read()
	if err != nil {
		return nil, err
	}
	modes := make([]types.DisplayMode, 0, len(sf.Modes))
	for _, m := range sf.Modes {
		modes = append(modes, types.DisplayMode{Width: m.Width, Height: m.Height, FPS: m.FPS})
	}
	return modes, nil
}

// State returns the current enabled flag and applied mode alongside any
// staged pending mode.
func (c *Controller) State() (types.DisplayState, error) {
	sf, err := c.read()
	if err != nil {
		return types.DisplayState{}, err
	}
	c.mu.Lock()
	pending := c.pending
	c.mu.Unlock()

	st := types.DisplayState{
		Enabled: sf.Enabled,
		Current: types.DisplayMode{Width: sf.Width, Height: sf.Height, FPS: sf.FPS},
	}
	if pending != nil && *pending != st.Current {
		p := *pending
		st.Pending = &p
		st.HasChanges = true
	}
	return st, nil
}

// StagePending validates the mode against the allowed set and stages it
// without touching the file.
func (c *Controller) StagePending(mode types.DisplayMode) error {
	sf, err := c.read()
	if err != nil {
		return err
	}
	if !allowed(sf, mode) {
		return ErrSettingsInvalid(fmt.Sprintf("%dx%d@%d not in driver mode list", mode.Width, mode.Height, mode.FPS))
	}
	c.mu.Lock()
	m := mode
	c.pending = &m
	c.mu.Unlock()
	return nil
}

// ApplySettings validates and commits a mode: one write updates resolution
// and refresh rate together, the service's per-output config is updated, and
// the settle window opens. A rejected mode leaves the file untouched.
func (c *Controller) ApplySettings(mode types.DisplayMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sf, err := c.read()
	if err != nil {
		return err
	}
	if !allowed(sf, mode) {
		return ErrSettingsInvalid(fmt.Sprintf("%dx%d@%d not in driver mode list", mode.Width, mode.Height, mode.FPS))
	}

	sf.Width = mode.Width
	sf.Height = mode.Height
	sf.FPS = mode.FPS
	if err := c.write(sf); err != nil {
		return err
	}
	if c.output != nil {
		if err := c.output.SetOutputMode(c.outputName, mode); err != nil {
			c.log.Error().Err(err).Msg("failed to update service per-output config")
			return err
		}
	}
	c.pending = nil
	c.log.Info().Int("width", mode.Width).Int("height", mode.Height).Int("fps", mode.FPS).Msg("display mode applied")
	c.beginSettle()
	return nil
}

// Toggle flips the enabled flag and opens the settle window. The new state
// is returned.
func (c *Controller) Toggle() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sf, err := c.read()
	if err != nil {
		return false, err
	}
	sf.Enabled = !sf.Enabled
	if err := c.write(sf); err != nil {
		return false, err
	}
	c.log.Info().Bool("enabled", sf.Enabled).Msg("display toggled")
	c.beginSettle()
	return sf.Enabled, nil
}

// SettleDelay returns the configured driver-detection settle window.
func (c *Controller) SettleDelay() time.Duration { return c.settle }

func (c *Controller) beginSettle() {
	if c.suspender == nil || c.settle <= 0 {
		return
	}
	c.suspender.Suspend(c.settle)
}

func (c *Controller) read() (*settingsFile, error) {
	b, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return nil, ErrNotInstalled()
	}
	if err != nil {
		return nil, err
	}
	var sf settingsFile
	if err := toml.Unmarshal(b, &sf); err != nil {
		return nil, fmt.Errorf("parse driver settings %s: %w", c.path, err)
	}
	return &sf, nil
}

func (c *Controller) write(sf *settingsFile) error {
	b, err := toml.Marshal(sf)
	if err != nil {
		return err
	}
	return atomic.WriteFile(c.path, bytes.NewReader(b))
}

func allowed(sf *settingsFile, mode types.DisplayMode) bool {
	for _, m := range sf.Modes {
		if m.Width == mode.Width && m.Height == mode.Height && m.FPS == mode.FPS {
			return true
		}
	}
	return false
}
