// Package config loads mangeomic settings from file, environment and flags.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/opd-ai/mangeomic/discovery"
	"github.com/opd-ai/mangeomic/protocol"
	"github.com/opd-ai/mangeomic/relay"
	"github.com/opd-ai/mangeomic/sink"
	"github.com/spf13/viper"
)

// Sink kinds.
const (
	SinkPulse = "pulse"
	SinkNull  = "null"
)

// Config holds all desktop peer configuration.
type Config struct {
	// Network
	DiscoveryPort    int    `mapstructure:"discovery_port"`
	StreamPort       int    `mapstructure:"stream_port"`
	BroadcastAddress string `mapstructure:"broadcast_address"`

	// Timing
	DiscoveryInterval       time.Duration `mapstructure:"discovery_interval"`
	DiscoveryReceiveTimeout time.Duration `mapstructure:"discovery_receive_timeout"`
	KeepAliveInterval       time.Duration `mapstructure:"keepalive_interval"`
	ReceiveTimeout          time.Duration `mapstructure:"receive_timeout"`
	HeartbeatTimeout        time.Duration `mapstructure:"heartbeat_timeout"`

	// BufferSize is the largest audio datagram the relay accepts.
	BufferSize int `mapstructure:"buffer_size"`

	// Audio output
	Sink         string `mapstructure:"sink"`
	SinkName     string `mapstructure:"sink_name"`
	SourceName   string `mapstructure:"source_name"`
	SampleFormat string `mapstructure:"sample_format"`
	SampleRate   int    `mapstructure:"sample_rate"`
	Channels     int    `mapstructure:"channels"`
	LatencyMsec  int    `mapstructure:"latency_msec"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
}

// DefaultConfig returns the protocol's standard ports and cadences.
func DefaultConfig() *Config {
	return &Config{
		DiscoveryPort:           protocol.DiscoveryPort,
		StreamPort:              protocol.StreamPort,
		BroadcastAddress:        net.IPv4bcast.String(),
		DiscoveryInterval:       time.Second,
		DiscoveryReceiveTimeout: time.Second,
		KeepAliveInterval:       500 * time.Millisecond,
		ReceiveTimeout:          100 * time.Millisecond,
		HeartbeatTimeout:        5 * time.Second,
		BufferSize:              relay.MaxDatagramSize,
		Sink:                    SinkPulse,
		SinkName:                sink.DefaultSinkName,
		SourceName:              sink.DefaultSourceName,
		SampleFormat:            sink.DefaultFormat,
		SampleRate:              sink.DefaultSampleRate,
		Channels:                sink.DefaultChannels,
		LatencyMsec:             sink.DefaultLatencyMsec,
		LogLevel:                "info",
	}
}

// Load reads configuration into a copy of the defaults. Values come from, in
// increasing priority: defaults, the config file, MANGEOMIC_* environment
// variables, and anything already set on v (bound flags). An explicit path
// must exist; otherwise a missing mangeomic.yaml is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	cfg := DefaultConfig()
	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("mangeomic")
		v.SetConfigType("yaml")
		v.AddConfigPath(getConfigDir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("MANGEOMIC")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("discovery_port", cfg.DiscoveryPort)
	v.SetDefault("stream_port", cfg.StreamPort)
	v.SetDefault("broadcast_address", cfg.BroadcastAddress)
	v.SetDefault("discovery_interval", cfg.DiscoveryInterval)
	v.SetDefault("discovery_receive_timeout", cfg.DiscoveryReceiveTimeout)
	v.SetDefault("keepalive_interval", cfg.KeepAliveInterval)
	v.SetDefault("receive_timeout", cfg.ReceiveTimeout)
	v.SetDefault("heartbeat_timeout", cfg.HeartbeatTimeout)
	v.SetDefault("buffer_size", cfg.BufferSize)
	v.SetDefault("sink", cfg.Sink)
	v.SetDefault("sink_name", cfg.SinkName)
	v.SetDefault("source_name", cfg.SourceName)
	v.SetDefault("sample_format", cfg.SampleFormat)
	v.SetDefault("sample_rate", cfg.SampleRate)
	v.SetDefault("channels", cfg.Channels)
	v.SetDefault("latency_msec", cfg.LatencyMsec)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_file", cfg.LogFile)
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	if c.DiscoveryPort < 1 || c.DiscoveryPort > 65535 {
		return fmt.Errorf("invalid discovery port %d: must be between 1 and 65535", c.DiscoveryPort)
	}
	if c.StreamPort < 1 || c.StreamPort > 65535 {
		return fmt.Errorf("invalid stream port %d: must be between 1 and 65535", c.StreamPort)
	}
	if net.ParseIP(c.BroadcastAddress) == nil {
		return fmt.Errorf("invalid broadcast address %q", c.BroadcastAddress)
	}

	durations := map[string]time.Duration{
		"discovery_interval":        c.DiscoveryInterval,
		"discovery_receive_timeout": c.DiscoveryReceiveTimeout,
		"keepalive_interval":        c.KeepAliveInterval,
		"receive_timeout":           c.ReceiveTimeout,
		"heartbeat_timeout":         c.HeartbeatTimeout,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.KeepAliveInterval >= c.HeartbeatTimeout {
		return fmt.Errorf("keepalive_interval (%s) must be shorter than heartbeat_timeout (%s)",
			c.KeepAliveInterval, c.HeartbeatTimeout)
	}

	if c.BufferSize < 1 || c.BufferSize > relay.MaxDatagramSize {
		return fmt.Errorf("invalid buffer_size %d: must be between 1 and %d", c.BufferSize, relay.MaxDatagramSize)
	}

	switch c.Sink {
	case SinkPulse, SinkNull:
	default:
		return fmt.Errorf("unknown sink %q: expected %q or %q", c.Sink, SinkPulse, SinkNull)
	}
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return fmt.Errorf("sample_rate and channels must be positive")
	}
	return nil
}

// Discovery returns the discovery service settings.
func (c *Config) Discovery() discovery.Config {
	port := strconv.Itoa(c.DiscoveryPort)
	return discovery.Config{
		ListenAddr:     ":" + port,
		BroadcastAddr:  net.JoinHostPort(c.BroadcastAddress, port),
		ReceiveTimeout: c.DiscoveryReceiveTimeout,
		Interval:       c.DiscoveryInterval,
	}
}

// Relay returns the stream relay settings.
func (c *Config) Relay() relay.Config {
	cfg := relay.DefaultConfig()
	cfg.ListenAddr = ":" + strconv.Itoa(c.StreamPort)
	cfg.PeerPort = c.StreamPort
	cfg.KeepAliveInterval = c.KeepAliveInterval
	cfg.ReceiveTimeout = c.ReceiveTimeout
	cfg.HeartbeatTimeout = c.HeartbeatTimeout
	cfg.BufferSize = c.BufferSize
	return cfg
}

// AudioSink builds the configured provider and opener.
func (c *Config) AudioSink() (sink.AudioSinkProvider, sink.Opener) {
	if c.Sink == SinkNull {
		return sink.Null{}, sink.Null{}
	}
	opener := sink.NewPacatOpener(c.SinkName)
	opener.Format = c.SampleFormat
	opener.SampleRate = c.SampleRate
	opener.Channels = c.Channels
	opener.LatencyMsec = c.LatencyMsec
	return sink.NewPulseProvider(c.SinkName, c.SourceName), opener
}

// getConfigDir returns the per-user config directory.
func getConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "mangeomic")
}
