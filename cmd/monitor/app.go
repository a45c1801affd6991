package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/alarm"
	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/config"
	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/detection"
	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/logger"
	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/metrics"
	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/notify"
	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/session"
	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/supervisor"
	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/webmonitor"
)

func newDetectionClient(s *config.Settings) (*detection.Client, error) {
	return detection.NewClient(detection.Config{
		BaseURL:      s.Detection.BaseURL,
		ActivatePath: s.Detection.ActivatePath,
		StatusPath:   s.Detection.StatusPath,
	}, &http.Client{})
}

// openAlarmDevice loads the alarm clip. Without audio the monitor still
// runs; the alarm state is tracked but nothing plays.
func openAlarmDevice(s config.AlarmSettings) (alarm.Device, func()) {
	if !s.Enabled {
		logger.Info("Main", "Alarm audio disabled")
		return alarm.NopDevice{}, func() {}
	}
	clip, err := alarm.LoadWAVFile(s.SoundFile)
	if err != nil {
		logger.Warn("Main", "Alarm sound unavailable, continuing silently: %v", err)
		return alarm.NopDevice{}, func() {}
	}
	dev, err := alarm.NewMalgoDevice(clip)
	if err != nil {
		logger.Warn("Main", "Alarm device unavailable, continuing silently: %v", err)
		return alarm.NopDevice{}, func() {}
	}
	logger.Info("Main", "Alarm sound: %s (%d Hz, %d ch)", s.SoundFile, clip.SampleRate, clip.Channels)
	return dev, func() {
		if err := dev.Close(); err != nil {
			logger.Warn("Main", "Closing audio device: %v", err)
		}
	}
}

func newSender(s config.NotifySettings) (notify.Sender, error) {
	return notify.NewShoutrrrSender(s.URLs, logger.Printf{Module: "Shoutrrr", Level: logger.DEBUG})
}

func run(ctx context.Context, s *config.Settings) error {
	logger.Info("Main", "CCTV monitor starting...")
	logger.Info("Main", "Detection service: %s", s.Detection.BaseURL)

	m := metrics.New()

	client, err := newDetectionClient(s)
	if err != nil {
		return err
	}

	device, closeDevice := openAlarmDevice(s.Alarm)
	defer closeDevice()
	ctrl := alarm.NewController(device, m, s.Alarm.Volume, s.Alarm.Muted)

	mgr := session.NewManager(session.Config{
		PollInterval:    s.Session.PollInterval,
		RequestTimeout:  s.Session.RequestTimeout,
		GraceWindow:     s.Session.GraceWindow,
		WeaponThreshold: s.Session.WeaponThreshold,
		CrowdThreshold:  s.Session.CrowdThreshold,
	}, client, ctrl, nil, m)

	tree := supervisor.NewTree(supervisor.TreeConfig{})
	tree.AddCoreService(mgr)

	if len(s.Notify.URLs) > 0 {
		sender, err := newSender(s.Notify)
		if err != nil {
			return err
		}
		tree.AddNotifyService(notify.NewNotifier(notify.Config{
			Cooldown: s.Notify.Cooldown,
			Timeout:  s.Notify.Timeout,
		}, mgr, sender, m))
		logger.Info("Main", "Push notifications: %d service(s)", len(s.Notify.URLs))
	}

	if s.MQTT.Broker != "" {
		mqtt.ERROR = logger.Printf{Module: "MQTT", Level: logger.ERROR}
		mqtt.WARN = logger.Printf{Module: "MQTT", Level: logger.WARN}
		broker := notify.NewPahoBroker(notify.MQTTConfig{
			Broker:   s.MQTT.Broker,
			ClientID: s.MQTT.ClientID,
			Username: s.MQTT.Username,
			Password: s.MQTT.Password,
		})
		tree.AddNotifyService(notify.NewStatePublisher(mgr, broker, s.MQTT.Topic, m))
		logger.Info("Main", "MQTT state topic: %s on %s", s.MQTT.Topic, s.MQTT.Broker)
	}

	tree.AddAPIService(webmonitor.NewServer(webmonitor.Config{
		Addr:         s.HTTP.Addr,
		AssetsDir:    s.HTTP.AssetsDir,
		Keepalive:    s.HTTP.Keepalive,
		ControlRate:  s.HTTP.ControlRate,
		ControlBurst: s.HTTP.ControlBurst,
	}, mgr, m))

	err = tree.Serve(ctx)
	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		logger.Warn("Main", "%d service(s) did not stop in time", len(report))
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor: %w", err)
	}
	logger.Info("Main", "Shutdown complete")
	return nil
}
