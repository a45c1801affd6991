// Package status turns detection service replies into typed snapshots.
package status

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// SafeText is the display value of a weapon or violence field with nothing to report.
const SafeText = "Safe"

// Reply is the body of the detection service status query.
type Reply struct {
	CrowdCount     FlexString `json:"crowd_count"`
	WeaponStatus   string     `json:"weapon_status"`
	ViolenceStatus string     `json:"violence_status"`
	SystemActive   bool       `json:"system_active"`
}

// FlexString accepts a JSON string or number. The service documents
// crowd_count as a string but some builds emit a bare integer.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	if string(b) == "null" {
		*f = ""
		return nil
	}
	*f = FlexString(b)
	return nil
}

// Snapshot is one parsed status reply. Values are immutable once built.
type Snapshot struct {
	CrowdCount       int       `json:"crowdCount"`
	WeaponText       string    `json:"weaponText"`
	WeaponConfidence float64   `json:"weaponConfidence"`
	ViolenceText     string    `json:"violenceText"`
	ViolenceFlag     bool      `json:"violenceFlag"`
	SystemActive     bool      `json:"systemActive"`
	ReceivedAt       time.Time `json:"receivedAt"`
}

// Empty returns the snapshot shown when no session is running.
func Empty() Snapshot {
	return Snapshot{WeaponText: SafeText, ViolenceText: SafeText}
}

var (
	digitsRe = regexp.MustCompile(`\d+`)
	parenRe  = regexp.MustCompile(`\(([^()]*)\)`)
)

var violenceVocabulary = []string{"ALERT", "CRIMINAL"}

// Parse builds a Snapshot from a reply. It never fails: unreadable
// numbers become 0.
func Parse(r Reply, receivedAt time.Time) Snapshot {
	return Snapshot{
		CrowdCount:       ParseCrowdCount(string(r.CrowdCount)),
		WeaponText:       r.WeaponStatus,
		WeaponConfidence: ParseConfidence(r.WeaponStatus),
		ViolenceText:     r.ViolenceStatus,
		ViolenceFlag:     IsViolent(r.ViolenceStatus),
		SystemActive:     r.SystemActive,
		ReceivedAt:       receivedAt,
	}
}

// ParseCrowdCount returns the first run of decimal digits in s, or 0.
func ParseCrowdCount(s string) int {
	m := digitsRe.FindString(s)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		// overflow
		return 0
	}
	return n
}

// ParseConfidence returns the first parenthesized token of s that reads as
// a number in [0,1]. Anything else yields 0.
func ParseConfidence(s string) float64 {
	for _, m := range parenRe.FindAllStringSubmatch(s, -1) {
		c, err := strconv.ParseFloat(strings.TrimSpace(m[1]), 64)
		if err != nil || math.IsNaN(c) {
			continue
		}
		if c < 0 || c > 1 {
			return 0
		}
		return c
	}
	return 0
}

// IsViolent reports whether s carries a violence or criminal activity marker.
func IsViolent(s string) bool {
	upper := strings.ToUpper(s)
	for _, word := range violenceVocabulary {
		if strings.Contains(upper, word) {
			return true
		}
	}
	return false
}
