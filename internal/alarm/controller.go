// Package alarm drives looped alarm playback from the current threat level.
package alarm

import (
	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/logger"
	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/metrics"
	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/threat"
)

// DefaultVolume is the initial volume preference.
const DefaultVolume = 0.7

// Device is a looped playback output. Start resumes from the current
// position, Stop pauses and rewinds.
type Device interface {
	Start() error
	Stop() error
	SetVolume(v float64) error
}

// State is the user-visible alarm state.
type State struct {
	Muted   bool    `json:"muted"`
	Volume  float64 `json:"volume"`
	Playing bool    `json:"playing"`
}

// ShouldPlay reports whether the alarm must sound.
func ShouldPlay(level threat.Level, muted bool) bool {
	return level != threat.Safe && !muted
}

// Controller keeps a Device in line with the threat level and the user's
// mute and volume preference. Every method must be called from the
// goroutine that owns the session; the device is never driven concurrently.
type Controller struct {
	device  Device
	metrics *metrics.Metrics

	level   threat.Level
	muted   bool
	volume  float64
	playing bool

	applied    float64 // volume last sent to the device, -1 before the first
	startFails int     // consecutive rejected starts
}

// NewController returns a Controller with the given preferences.
func NewController(device Device, m *metrics.Metrics, volume float64, muted bool) *Controller {
	if device == nil {
		device = NopDevice{}
	}
	if m == nil {
		m = metrics.New()
	}
	return &Controller{
		device:  device,
		metrics: m,
		volume:  clamp(volume),
		muted:   muted,
		applied: -1,
	}
}

// Evaluate records the current threat level and syncs the device.
// Re-evaluating an unchanged state is a no-op.
func (c *Controller) Evaluate(level threat.Level) {
	c.level = level
	c.sync()
}

// SetMuted changes the mute preference. The stored volume is kept.
func (c *Controller) SetMuted(muted bool) {
	c.muted = muted
	c.sync()
}

// SetVolume changes the volume preference, clamped to [0,1]. It applies to
// the running playback without restarting it.
func (c *Controller) SetVolume(v float64) {
	c.volume = clamp(v)
	c.sync()
}

// Reset stops playback and forgets the threat level. Preferences survive.
func (c *Controller) Reset() {
	c.level = threat.Safe
	c.startFails = 0
	c.sync()
}

// State returns the current playback settings.
func (c *Controller) State() State {
	return State{Muted: c.muted, Volume: c.volume, Playing: c.playing}
}

func (c *Controller) effectiveVolume() float64 {
	if c.muted {
		return 0
	}
	return c.volume
}

func (c *Controller) sync() {
	if v := c.effectiveVolume(); v != c.applied {
		if err := c.device.SetVolume(v); err != nil {
			logger.Warn("Alarm", "Set volume %.2f failed: %v", v, err)
		} else {
			c.applied = v
		}
	}

	should := ShouldPlay(c.level, c.muted)
	switch {
	case should && !c.playing:
		if err := c.device.Start(); err != nil {
			// Left not playing so the next evaluation retries.
			c.startFails++
			c.metrics.AlarmStartFailures.Add(1)
			if c.startFails == 1 {
				logger.Warn("Alarm", "Playback start rejected: %v", err)
			} else {
				logger.Debug("Alarm", "Playback start rejected (%d in a row): %v", c.startFails, err)
			}
			return
		}
		c.startFails = 0
		c.playing = true
		logger.Info("Alarm", "Playback started (level=%s, volume=%.2f)", c.level, c.volume)
	case !should && c.playing:
		if err := c.device.Stop(); err != nil {
			logger.Warn("Alarm", "Playback stop failed: %v", err)
		}
		c.playing = false
		logger.Info("Alarm", "Playback stopped (level=%s, muted=%v)", c.level, c.muted)
	}
	metrics.SetBool(&c.metrics.AlarmPlaying, c.playing)
}

func clamp(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// NopDevice accepts every command and produces no sound.
type NopDevice struct{}

func (NopDevice) Start() error            { return nil }
func (NopDevice) Stop() error             { return nil }
func (NopDevice) SetVolume(float64) error { return nil }
