package webmonitor

import "time"

// Config defines the runtime configuration for the web monitor server.
type Config struct {
	Addr         string
	AssetsDir    string
	Keepalive    time.Duration // SSE keepalive comment and WebSocket ping interval
	ControlRate  float64       // control requests per second, 0 disables limiting
	ControlBurst int
}

// DefaultConfig returns the default server settings.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8090",
		Keepalive:    30 * time.Second,
		ControlRate:  5,
		ControlBurst: 10,
	}
}
