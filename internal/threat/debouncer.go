package threat

import "time"

const (
	DefaultWeaponThreshold = 0.60
	DefaultGraceWindow     = 1500 * time.Millisecond
)

// Debouncer holds a weapon detection active for a grace window after the
// last qualifying confidence reading. Not safe for concurrent use; the
// session actor owns it.
type Debouncer struct {
	threshold float64
	window    time.Duration

	last  time.Time
	armed bool
}

// NewDebouncer returns a Debouncer. Non-positive arguments select the defaults.
func NewDebouncer(threshold float64, window time.Duration) *Debouncer {
	if threshold <= 0 {
		threshold = DefaultWeaponThreshold
	}
	if window <= 0 {
		window = DefaultGraceWindow
	}
	return &Debouncer{threshold: threshold, window: window}
}

// Observe records a confidence reading taken at now and reports whether it qualified.
func (d *Debouncer) Observe(confidence float64, now time.Time) bool {
	if confidence < d.threshold {
		return false
	}
	if !d.armed || now.After(d.last) {
		d.last = now
	}
	d.armed = true
	return true
}

// Active reports whether a qualifying reading happened less than one
// grace window before now.
func (d *Debouncer) Active(now time.Time) bool {
	return d.armed && now.Sub(d.last) < d.window
}

// LastQualifying returns the time of the last qualifying reading.
func (d *Debouncer) LastQualifying() (time.Time, bool) {
	return d.last, d.armed
}

// Reset forgets any qualifying reading.
func (d *Debouncer) Reset() {
	d.last = time.Time{}
	d.armed = false
}

// Window returns the grace window.
func (d *Debouncer) Window() time.Duration { return d.window }
