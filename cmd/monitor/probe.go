package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/status"
	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/threat"
)

// probeResult is what `probe` prints.
type probeResult struct {
	Snapshot     status.Snapshot `json:"snapshot"`
	WeaponActive bool            `json:"weaponActive"`
	ThreatLevel  threat.Level    `json:"threatLevel"`
}

// evaluateOnce classifies a single snapshot the way a fresh session would.
func evaluateOnce(reply status.Reply, now time.Time, threshold float64, crowd int) probeResult {
	snap := status.Parse(reply, now)
	deb := threat.NewDebouncer(threshold, 0)
	deb.Observe(snap.WeaponConfidence, now)
	weapon := deb.Active(now)
	level := threat.Classifier{CrowdThreshold: crowd}.Classify(threat.Signals{
		WeaponActive: weapon,
		Violence:     snap.ViolenceFlag,
		CrowdCount:   snap.CrowdCount,
	})
	return probeResult{Snapshot: snap, WeaponActive: weapon, ThreatLevel: level}
}

func newProbeCommand(opts *rootOptions) *cobra.Command {
	var (
		activate bool
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Fetch one status snapshot and print its classification",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd, opts)
			if err != nil {
				return err
			}
			client, err := newDetectionClient(settings)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			if activate {
				if err := client.Activate(ctx); err != nil {
					return fmt.Errorf("activate: %w", err)
				}
			}
			reply, err := client.FetchStatus(ctx)
			if err != nil {
				return fmt.Errorf("fetch status: %w", err)
			}

			result := evaluateOnce(reply, time.Now(), settings.Session.WeaponThreshold, settings.Session.CrowdThreshold)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().BoolVar(&activate, "activate", false, "Activate detection before fetching")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Request timeout")
	return cmd
}
