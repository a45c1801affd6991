package detection

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Script is the YAML document read by LoadScript:
//
//	loop: true
//	frames:
//	  - crowd_count: 12
//	    weapon_status: "Knife (0.82)"
//	    violence_status: Safe
type Script struct {
	Loop   bool    `yaml:"loop"`
	Frames []Frame `yaml:"frames"`
}

// ReadScript decodes a script.
func ReadScript(r io.Reader) (*Script, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var s Script
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("detection: decode script: %w", err)
	}
	for i, f := range s.Frames {
		if f.CrowdCount < 0 {
			return nil, fmt.Errorf("detection: frame %d: negative crowd_count", i)
		}
	}
	return &s, nil
}

// LoadScript reads a script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ReadScript(bytes.NewReader(data))
}

// DemoScript walks through every threat level once.
func DemoScript() *Script {
	return &Script{
		Loop: true,
		Frames: []Frame{
			{CrowdCount: 4},
			{CrowdCount: 6},
			{CrowdCount: 7, WeaponStatus: "Knife (0.82)"},
			{CrowdCount: 7, WeaponStatus: "Knife (0.41)"},
			{CrowdCount: 8},
			{CrowdCount: 9},
			{CrowdCount: 38},
			{CrowdCount: 41},
			{CrowdCount: 12, ViolenceStatus: "ALERT: Violence"},
			{CrowdCount: 10},
		},
	}
}
