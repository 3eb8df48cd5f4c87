package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// Stall policies applied when a source misses the stall timeout
	StallPolicyDrop    = "drop"
	StallPolicyPartial = "partial"

	// Sink output kinds
	OutputLog       = "log"
	OutputWAV       = "wav"
	OutputOto       = "oto"
	OutputPortAudio = "portaudio"
)

// Config represents the complete service configuration
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Control ControlConfig `yaml:"control"`
	HTTP    HTTPConfig    `yaml:"http"`
	Sink    SinkConfig    `yaml:"sink"`
	Logging LoggingConfig `yaml:"logging"`

	// Sources are registered once the engine starts
	Sources []string `yaml:"sources"`
}

// EngineConfig contains mixing engine parameters
type EngineConfig struct {
	SampleRate    int     `yaml:"sample_rate"`
	Channels      int     `yaml:"channels"`
	ChunkDuration float64 `yaml:"chunk_duration"` // seconds
	StallTimeout  float64 `yaml:"stall_timeout"`  // seconds, 0 waits forever
	StallPolicy   string  `yaml:"stall_policy"`
	StreamName    string  `yaml:"stream_name"`
}

// ControlConfig contains the UDP control listener configuration
type ControlConfig struct {
	Enabled     bool   `yaml:"enabled"`
	UDPPort     int    `yaml:"udp_port"`
	BindAddress string `yaml:"bind_address"`
	BufferSize  int    `yaml:"buffer_size"`
	Workers     int    `yaml:"workers"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// SinkConfig selects where composite chunks are played
type SinkConfig struct {
	Outputs   []string `yaml:"outputs"`
	WAVDir    string   `yaml:"wav_dir"`
	Volume    int      `yaml:"volume"` // percent
	QueueSize int      `yaml:"queue_size"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file.
// ${VAR} references are expanded from the environment before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return Parse([]byte(os.ExpandEnv(string(data))))
}

// Parse builds a configuration from YAML, applying defaults before validation
func Parse(data []byte) (*Config, error) {
	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.setDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Default returns a configuration with every field at its default
func Default() *Config {
	config := &Config{}
	config.setDefaults()
	return config
}

func (c *Config) setDefaults() {
	if c.Engine.SampleRate == 0 {
		c.Engine.SampleRate = 16000
	}
	if c.Engine.Channels == 0 {
		c.Engine.Channels = 1
	}
	if c.Engine.ChunkDuration == 0 {
		c.Engine.ChunkDuration = 4
	}
	if c.Engine.StallPolicy == "" {
		c.Engine.StallPolicy = StallPolicyDrop
	}
	if c.Engine.StreamName == "" {
		c.Engine.StreamName = "wav_player"
	}

	if c.Control.UDPPort == 0 {
		c.Control.UDPPort = 4545
	}
	if c.Control.BindAddress == "" {
		c.Control.BindAddress = "0.0.0.0"
	}
	if c.Control.BufferSize == 0 {
		c.Control.BufferSize = 65536
	}
	if c.Control.Workers == 0 {
		c.Control.Workers = 2
	}

	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.Address == "" {
		c.HTTP.Address = "0.0.0.0"
	}

	if len(c.Sink.Outputs) == 0 {
		c.Sink.Outputs = []string{OutputLog}
	}
	if c.Sink.WAVDir == "" {
		c.Sink.WAVDir = "recordings"
	}
	if c.Sink.Volume == 0 {
		c.Sink.Volume = 70
	}
	if c.Sink.QueueSize == 0 {
		c.Sink.QueueSize = 8
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	if err := c.Control.Validate(); err != nil {
		return fmt.Errorf("control config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Sink.Validate(); err != nil {
		return fmt.Errorf("sink config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	for i, path := range c.Sources {
		if path == "" {
			return fmt.Errorf("sources[%d] cannot be empty", i)
		}
	}

	return nil
}

// Validate validates engine configuration
func (e *EngineConfig) Validate() error {
	if e.SampleRate != 16000 {
		return fmt.Errorf("sample_rate must be 16000 Hz, got %d", e.SampleRate)
	}

	if e.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", e.Channels)
	}

	if e.ChunkDuration <= 0 || e.ChunkDuration > 100 {
		return fmt.Errorf("chunk_duration must be in (0, 100] seconds, got %f", e.ChunkDuration)
	}

	if e.StallTimeout < 0 {
		return fmt.Errorf("stall_timeout cannot be negative, got %f", e.StallTimeout)
	}

	if e.StallPolicy != StallPolicyDrop && e.StallPolicy != StallPolicyPartial {
		return fmt.Errorf("stall_policy must be '%s' or '%s', got '%s'",
			StallPolicyDrop, StallPolicyPartial, e.StallPolicy)
	}

	if e.StreamName == "" {
		return fmt.Errorf("stream_name cannot be empty")
	}

	return nil
}

// Validate validates control listener configuration
func (c *ControlConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.UDPPort < 1 || c.UDPPort > 65535 {
		return fmt.Errorf("udp_port must be between 1 and 65535, got %d", c.UDPPort)
	}

	if c.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if c.BufferSize < 1024 {
		return fmt.Errorf("buffer_size must be at least 1024 bytes, got %d", c.BufferSize)
	}

	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates sink configuration
func (s *SinkConfig) Validate() error {
	validOutputs := map[string]bool{
		OutputLog: true, OutputWAV: true, OutputOto: true, OutputPortAudio: true,
	}
	seen := make(map[string]bool, len(s.Outputs))
	for _, out := range s.Outputs {
		if !validOutputs[out] {
			return fmt.Errorf("output must be one of [log, wav, oto, portaudio], got '%s'", out)
		}
		if seen[out] {
			return fmt.Errorf("output '%s' listed more than once", out)
		}
		seen[out] = true
	}

	if seen[OutputWAV] && s.WAVDir == "" {
		return fmt.Errorf("wav_dir cannot be empty when the wav output is enabled")
	}

	if s.Volume < 0 || s.Volume > 100 {
		return fmt.Errorf("volume must be between 0 and 100, got %d", s.Volume)
	}

	if s.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", s.QueueSize)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Output is stdout, stderr or a file path
	return nil
}

// GetChunkDuration returns the chunk duration as a time.Duration
func (e *EngineConfig) GetChunkDuration() time.Duration {
	return time.Duration(e.ChunkDuration * float64(time.Second))
}

// GetStallTimeout returns the stall timeout as a time.Duration
func (e *EngineConfig) GetStallTimeout() time.Duration {
	return time.Duration(e.StallTimeout * float64(time.Second))
}

// Address returns the UDP listen address
func (c *ControlConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.BindAddress, c.UDPPort)
}
