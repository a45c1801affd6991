// Package threat fuses the detection signals into a single threat level.
package threat

import "fmt"

// Level is ordered: Danger > Warning > Safe.
type Level int

const (
	Safe Level = iota
	Warning
	Danger
)

// DefaultCrowdThreshold is the largest crowd count still considered Safe.
const DefaultCrowdThreshold = 35

func (l Level) String() string {
	switch l {
	case Safe:
		return "safe"
	case Warning:
		return "warning"
	case Danger:
		return "danger"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(b []byte) error {
	lvl, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = lvl
	return nil
}

// ParseLevel is the inverse of Level.String.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "safe":
		return Safe, nil
	case "warning":
		return Warning, nil
	case "danger":
		return Danger, nil
	}
	return Safe, fmt.Errorf("unknown threat level %q", s)
}

// Signals are the classifier inputs for one snapshot.
type Signals struct {
	WeaponActive bool
	Violence     bool
	CrowdCount   int
}

// Classifier maps signals to a Level. The zero value uses DefaultCrowdThreshold.
type Classifier struct {
	CrowdThreshold int
}

// Classify applies the rules in order: weapon or violence is Danger,
// a crowd above the threshold is Warning, everything else is Safe.
func (c Classifier) Classify(s Signals) Level {
	switch {
	case s.WeaponActive || s.Violence:
		return Danger
	case s.CrowdCount > c.threshold():
		return Warning
	default:
		return Safe
	}
}

// CrowdAlert reports whether count alone would raise a Warning.
func (c Classifier) CrowdAlert(count int) bool {
	return count > c.threshold()
}

func (c Classifier) threshold() int {
	if c.CrowdThreshold <= 0 {
		return DefaultCrowdThreshold
	}
	return c.CrowdThreshold
}

// Classify uses the default classifier.
func Classify(weaponActive, violence bool, crowdCount int) Level {
	return Classifier{}.Classify(Signals{WeaponActive: weaponActive, Violence: violence, CrowdCount: crowdCount})
}
