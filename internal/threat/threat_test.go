package threat

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		weapon bool
		viol   bool
		crowd  int
		want   Level
	}{
		{"quiet", false, false, 0, Safe},
		{"crowd at threshold", false, false, 35, Safe},
		{"crowd above threshold", false, false, 36, Warning},
		{"weapon", true, false, 0, Danger},
		{"violence", false, true, 0, Danger},
		{"weapon outranks crowd", true, false, 100, Danger},
		{"violence outranks crowd", false, true, 100, Danger},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.weapon, tt.viol, tt.crowd))
		})
	}
}

func TestClassifierCustomThreshold(t *testing.T) {
	c := Classifier{CrowdThreshold: 10}
	assert.Equal(t, Safe, c.Classify(Signals{CrowdCount: 10}))
	assert.Equal(t, Warning, c.Classify(Signals{CrowdCount: 11}))
	assert.True(t, c.CrowdAlert(11))
	assert.False(t, Classifier{}.CrowdAlert(35))
}

func TestLevelOrderAndText(t *testing.T) {
	assert.Less(t, Safe, Warning)
	assert.Less(t, Warning, Danger)

	b, err := json.Marshal(map[string]Level{"level": Danger})
	require.NoError(t, err)
	assert.JSONEq(t, `{"level":"danger"}`, string(b))

	var back map[string]Level
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, Danger, back["level"])

	_, err = ParseLevel("critical")
	assert.Error(t, err)
}

func TestDebouncerThresholdBoundary(t *testing.T) {
	now := time.Now()

	d := NewDebouncer(0, 0)
	assert.False(t, d.Observe(0.59, now))
	assert.False(t, d.Active(now))

	assert.True(t, d.Observe(0.60, now))
	assert.True(t, d.Active(now))
}

func TestDebouncerGraceWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := NewDebouncer(DefaultWeaponThreshold, DefaultGraceWindow)

	t0 := clock.Now()
	d.Observe(0.9, t0)

	clock.Advance(1499 * time.Millisecond)
	assert.True(t, d.Active(clock.Now()))

	clock.Advance(2 * time.Millisecond)
	assert.False(t, d.Active(clock.Now()))

	last, ok := d.LastQualifying()
	assert.True(t, ok)
	assert.Equal(t, t0, last)
}

func TestDebouncerNeverMovesBackwards(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := NewDebouncer(0, 0)

	d.Observe(0.8, t0)
	d.Observe(0.8, t0.Add(-time.Second))

	last, _ := d.LastQualifying()
	assert.Equal(t, t0, last)
}

func TestDebouncerLowReadingsDoNotExtend(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := NewDebouncer(0, 0)

	d.Observe(0.75, t0)
	d.Observe(0.1, t0.Add(time.Second))
	assert.True(t, d.Active(t0.Add(time.Second)))
	assert.False(t, d.Active(t0.Add(2*time.Second)))
}

func TestDebouncerReset(t *testing.T) {
	t0 := time.Now()
	d := NewDebouncer(0, 0)
	d.Observe(1, t0)
	d.Reset()

	assert.False(t, d.Active(t0))
	_, ok := d.LastQualifying()
	assert.False(t, ok)
}
