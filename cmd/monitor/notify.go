package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/notify"
	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/session"
	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/threat"
)

func newNotifyCommand(opts *rootOptions) *cobra.Command {
	var levelName string

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send a test push notification to the configured services",
		Long: `Send a test push notification through every notify.urls service.

Examples:
  cctv-monitor notify --level=danger
  CCTV_NOTIFY_URLS=telegram://token@telegram?chats=123 cctv-monitor notify`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd, opts)
			if err != nil {
				return err
			}
			if len(settings.Notify.URLs) == 0 {
				return errors.New("no notify.urls configured")
			}
			level, err := threat.ParseLevel(levelName)
			if err != nil {
				return err
			}

			sender, err := newSender(settings.Notify)
			if err != nil {
				return err
			}
			n := notify.NewNotifier(notify.Config{Timeout: settings.Notify.Timeout}, nil, sender, nil)
			if err := n.Notify(cmd.Context(), testState(level, time.Now())); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent %s test notification to %d service(s)\n", level, len(settings.Notify.URLs))
			return nil
		},
	}

	cmd.Flags().StringVar(&levelName, "level", "danger", "Threat level to simulate (safe, warning, danger)")
	return cmd
}

func testState(level threat.Level, now time.Time) session.State {
	s := session.State{
		SessionID:      "test",
		Phase:          session.PhaseActive,
		Active:         true,
		ThreatLevel:    level,
		WeaponStatus:   "Safe",
		ViolenceStatus: "Safe",
		UpdatedAt:      now,
	}
	switch level {
	case threat.Danger:
		s.WeaponStatus = "Test weapon (0.99)"
		s.WeaponActive = true
	case threat.Warning:
		s.CrowdCount = 40
		s.CrowdAlert = true
	}
	return s
}
