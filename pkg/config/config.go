package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		RateLimitRPS    float64       `yaml:"rate_limit_rps"`
		RateLimitBurst  int           `yaml:"rate_limit_burst"`
	} `yaml:"server"`

	Signal struct {
		HubURL            string          `yaml:"hub_url"`
		PingInterval      time.Duration   `yaml:"ping_interval"`
		PongTimeout       time.Duration   `yaml:"pong_timeout"`
		ReconnectSchedule []time.Duration `yaml:"reconnect_schedule"`
		SendQueueSize     int             `yaml:"send_queue_size"`
		SendRetryAttempts int             `yaml:"send_retry_attempts"`
		MessagesPerSecond float64         `yaml:"messages_per_second"`
		MessageBurst      int             `yaml:"message_burst"`
	} `yaml:"signal"`

	API struct {
		BaseURL        string        `yaml:"base_url"`
		Timeout        time.Duration `yaml:"timeout"`
		RetryCount     int           `yaml:"retry_count"`
		RetryWaitTime  time.Duration `yaml:"retry_wait_time"`
		AuthToken      string        `yaml:"auth_token"`
		BreakerEnabled bool          `yaml:"breaker_enabled"`
	} `yaml:"api"`

	WebRTC struct {
		ICEServers []struct {
			URLs       []string `yaml:"urls"`
			Username   string   `yaml:"username,omitempty"`
			Credential string   `yaml:"credential,omitempty"`
		} `yaml:"ice_servers"`
		PortRange struct {
			Min uint16 `yaml:"min"`
			Max uint16 `yaml:"max"`
		} `yaml:"port_range"`
	} `yaml:"webrtc"`

	Media struct {
		AudioEnabled bool `yaml:"audio_enabled"`
		VideoEnabled bool `yaml:"video_enabled"`
	} `yaml:"media"`

	Reconcile struct {
		PollInterval time.Duration `yaml:"poll_interval"`
		MaxAttempts  int           `yaml:"max_attempts"`
	} `yaml:"reconcile"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled    bool    `yaml:"enabled"`
		JaegerURL  string  `yaml:"jaeger_url"`
		SampleRate float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Signal
	if c.Signal.HubURL == "" {
		return fmt.Errorf("signal.hub_url must not be empty")
	}
	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.PongTimeout <= 0 {
		return fmt.Errorf("signal.pong_timeout must be > 0")
	}
	if len(c.Signal.ReconnectSchedule) == 0 {
		return fmt.Errorf("signal.reconnect_schedule must not be empty")
	}
	if c.Signal.SendQueueSize <= 0 {
		return fmt.Errorf("signal.send_queue_size must be > 0")
	}
	if c.Signal.SendRetryAttempts < 0 {
		return fmt.Errorf("signal.send_retry_attempts must be >= 0")
	}
	if c.Signal.MessagesPerSecond <= 0 {
		return fmt.Errorf("signal.messages_per_second must be > 0")
	}
	if c.Signal.MessageBurst <= 0 {
		return fmt.Errorf("signal.message_burst must be > 0")
	}

	// API
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url must not be empty")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be > 0")
	}
	if c.API.RetryCount < 0 {
		return fmt.Errorf("api.retry_count must be >= 0")
	}

	// WebRTC
	if c.WebRTC.PortRange.Min > 0 || c.WebRTC.PortRange.Max > 0 {
		if c.WebRTC.PortRange.Min == 0 || c.WebRTC.PortRange.Max == 0 {
			return fmt.Errorf("webrtc.port_range.min and max must both be set when one is set")
		}
		if c.WebRTC.PortRange.Min >= c.WebRTC.PortRange.Max {
			return fmt.Errorf("webrtc.port_range.min must be < max")
		}
	}

	// Reconcile
	if c.Reconcile.PollInterval <= 0 {
		return fmt.Errorf("reconcile.poll_interval must be > 0")
	}
	if c.Reconcile.MaxAttempts <= 0 {
		return fmt.Errorf("reconcile.max_attempts must be > 0")
	}

	// Monitoring
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort <= 0 {
		return fmt.Errorf("monitoring.prometheus_port must be > 0 when prometheus_enabled=true")
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate <= 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be in (0, 1]")
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second
	cfg.Server.RateLimitRPS = 50
	cfg.Server.RateLimitBurst = 100

	cfg.Signal.HubURL = "ws://localhost:5000/meetingHub"
	cfg.Signal.PingInterval = 30 * time.Second
	cfg.Signal.PongTimeout = 60 * time.Second
	cfg.Signal.ReconnectSchedule = []time.Duration{
		0,
		2 * time.Second,
		5 * time.Second,
		10 * time.Second,
		20 * time.Second,
	}
	cfg.Signal.SendQueueSize = 128
	cfg.Signal.SendRetryAttempts = 3
	cfg.Signal.MessagesPerSecond = 50
	cfg.Signal.MessageBurst = 100

	cfg.API.BaseURL = "http://localhost:5000/api"
	cfg.API.Timeout = 10 * time.Second
	cfg.API.RetryCount = 2
	cfg.API.RetryWaitTime = 500 * time.Millisecond
	cfg.API.BreakerEnabled = true

	cfg.Media.AudioEnabled = true
	cfg.Media.VideoEnabled = true

	cfg.Reconcile.PollInterval = 200 * time.Millisecond
	cfg.Reconcile.MaxAttempts = 15

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.PrometheusPort = 9090

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	return cfg
}

func (c *Config) applyEnvOverrides() {
	// Apply environment variable overrides
	if addr := os.Getenv("MEETCORE_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if url := os.Getenv("MEETCORE_HUB_URL"); url != "" {
		c.Signal.HubURL = url
	}
	if url := os.Getenv("MEETCORE_API_BASE_URL"); url != "" {
		c.API.BaseURL = url
	}
	if token := os.Getenv("MEETCORE_API_TOKEN"); token != "" {
		c.API.AuthToken = token
	}
	if level := os.Getenv("MEETCORE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}
