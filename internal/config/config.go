// Package config loads monitor settings from defaults, an optional YAML
// file, a .env file, the environment and command line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "CCTV"

type Settings struct {
	Detection DetectionSettings `mapstructure:"detection"`
	Session   SessionSettings   `mapstructure:"session"`
	Alarm     AlarmSettings     `mapstructure:"alarm"`
	HTTP      HTTPSettings      `mapstructure:"http"`
	Notify    NotifySettings    `mapstructure:"notify"`
	MQTT      MQTTSettings      `mapstructure:"mqtt"`
	Log       LogSettings       `mapstructure:"log"`
}

type DetectionSettings struct {
	BaseURL      string `mapstructure:"base_url"`
	ActivatePath string `mapstructure:"activate_path"`
	StatusPath   string `mapstructure:"status_path"`
}

type SessionSettings struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	GraceWindow     time.Duration `mapstructure:"grace_window"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	WeaponThreshold float64       `mapstructure:"weapon_threshold"`
	CrowdThreshold  int           `mapstructure:"crowd_threshold"`
}

type AlarmSettings struct {
	Enabled   bool    `mapstructure:"enabled"`
	SoundFile string  `mapstructure:"sound_file"`
	Volume    float64 `mapstructure:"volume"`
	Muted     bool    `mapstructure:"muted"`
}

type HTTPSettings struct {
	Addr         string        `mapstructure:"addr"`
	AssetsDir    string        `mapstructure:"assets_dir"`
	Keepalive    time.Duration `mapstructure:"keepalive"`
	ControlRate  float64       `mapstructure:"control_rate"`
	ControlBurst int           `mapstructure:"control_burst"`
}

type NotifySettings struct {
	URLs     []string      `mapstructure:"urls"`
	Cooldown time.Duration `mapstructure:"cooldown"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type MQTTSettings struct {
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Color  bool   `mapstructure:"color"`
}

// SetDefaults registers every key with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("detection.base_url", "http://127.0.0.1:5000")
	v.SetDefault("detection.activate_path", "/api/start_detection")
	v.SetDefault("detection.status_path", "/get_status")

	v.SetDefault("session.poll_interval", time.Second)
	v.SetDefault("session.grace_window", 1500*time.Millisecond)
	v.SetDefault("session.request_timeout", time.Duration(0))
	v.SetDefault("session.weapon_threshold", 0.60)
	v.SetDefault("session.crowd_threshold", 35)

	v.SetDefault("alarm.enabled", true)
	v.SetDefault("alarm.sound_file", "assets/alarm.wav")
	v.SetDefault("alarm.volume", 0.7)
	v.SetDefault("alarm.muted", false)

	v.SetDefault("http.addr", ":8090")
	v.SetDefault("http.assets_dir", "")
	v.SetDefault("http.keepalive", 30*time.Second)
	v.SetDefault("http.control_rate", 5.0)
	v.SetDefault("http.control_burst", 10)

	v.SetDefault("notify.urls", []string{})
	v.SetDefault("notify.cooldown", 12*time.Second)
	v.SetDefault("notify.timeout", 10*time.Second)

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.topic", "cctv/threat")
	v.SetDefault("mqtt.client_id", "cctv-monitor")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.color", true)
}

// Options controls where Load looks.
type Options struct {
	ConfigFile string                 // explicit YAML file; empty searches the default paths
	EnvFile    string                 // .env file; missing files are ignored
	Flags      map[string]*pflag.Flag // config key -> overriding flag
}

// Load resolves Settings.
func Load(opts Options) (*Settings, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load %s: %w", envFile, err)
	}

	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "cctv-monitor"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	for key, flag := range opts.Flags {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("config: bind flag %s: %w", flag.Name, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	// "a,b" from the environment arrives as one element.
	s.Notify.URLs = splitList(s.Notify.URLs)

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Validate checks cross-field constraints.
func (s *Settings) Validate() error {
	var errs []error

	u, err := url.Parse(s.Detection.BaseURL)
	if s.Detection.BaseURL == "" || err != nil || u.Host == "" {
		errs = append(errs, fmt.Errorf("detection.base_url %q is not a valid URL", s.Detection.BaseURL))
	}
	if s.Session.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("session.poll_interval must be positive"))
	}
	if s.Session.GraceWindow <= s.Session.PollInterval {
		errs = append(errs, fmt.Errorf("session.grace_window (%v) must exceed session.poll_interval (%v)",
			s.Session.GraceWindow, s.Session.PollInterval))
	}
	if s.Session.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("session.request_timeout must not be negative"))
	}
	if s.Session.WeaponThreshold <= 0 || s.Session.WeaponThreshold > 1 {
		errs = append(errs, fmt.Errorf("session.weapon_threshold must be in (0,1]"))
	}
	if s.Session.CrowdThreshold < 0 {
		errs = append(errs, fmt.Errorf("session.crowd_threshold must not be negative"))
	}
	if s.Alarm.Volume < 0 || s.Alarm.Volume > 1 {
		errs = append(errs, fmt.Errorf("alarm.volume must be in [0,1]"))
	}
	if s.HTTP.ControlRate < 0 || s.HTTP.ControlBurst < 0 {
		errs = append(errs, fmt.Errorf("http.control_rate and http.control_burst must not be negative"))
	}
	if s.MQTT.Broker != "" && s.MQTT.Topic == "" {
		errs = append(errs, fmt.Errorf("mqtt.topic is required when mqtt.broker is set"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
