package config

import (
	"fmt"
	"time"

	"github.com/hzvision/cutvision/internal/types"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig    `mapstructure:"server" yaml:"server"`
	PLC         PLCConfig       `mapstructure:"plc" yaml:"plc"`
	Protocol    ProtocolConfig  `mapstructure:"protocol" yaml:"protocol"`
	Capture     CaptureConfig   `mapstructure:"capture" yaml:"capture"`
	Detection   DetectionConfig `mapstructure:"detection" yaml:"detection"`
	CamerasFile string          `mapstructure:"cameras_file" yaml:"cameras_file"`
}

type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port" yaml:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type PLCConfig struct {
	Host              string        `mapstructure:"host" yaml:"host"`
	Port              int           `mapstructure:"port" yaml:"port"`
	UnitID            uint8         `mapstructure:"unit_id" yaml:"unit_id"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval" yaml:"reconnect_interval"`
	Simulate          bool          `mapstructure:"simulate" yaml:"simulate"`
	AutoTrigger       bool          `mapstructure:"auto_trigger" yaml:"auto_trigger"`
}

type ProtocolConfig struct {
	TriggerValues types.TriggerValues `mapstructure:"trigger_values" yaml:"trigger_values"`
	ClassValues   types.ClassValues   `mapstructure:"class_values" yaml:"class_values"`
	PollInterval  time.Duration       `mapstructure:"poll_interval" yaml:"poll_interval"`
	WriteRetries  int                 `mapstructure:"write_retries" yaml:"write_retries"`
	RetryBackoff  time.Duration       `mapstructure:"retry_backoff" yaml:"retry_backoff"`
	GeometryScale float64             `mapstructure:"geometry_scale" yaml:"geometry_scale"`
}

type CaptureConfig struct {
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Simulate     bool          `mapstructure:"simulate" yaml:"simulate"`
	TestImageDir string        `mapstructure:"test_image_dir" yaml:"test_image_dir"`
}

type DetectionConfig struct {
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxConcurrent int64         `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	Simulate      bool          `mapstructure:"simulate" yaml:"simulate"`
	PixelToMM     float64       `mapstructure:"pixel_to_mm" yaml:"pixel_to_mm"`
	MinConfidence float64       `mapstructure:"min_confidence" yaml:"min_confidence"`
}

func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	// Defaults setzen
	viper.SetDefault("server.http_port", 8080)
	viper.SetDefault("server.shutdown_timeout", "30s")
	viper.SetDefault("plc.host", "192.168.3.10")
	viper.SetDefault("plc.port", 502)
	viper.SetDefault("plc.unit_id", 1)
	viper.SetDefault("plc.timeout", "3s")
	viper.SetDefault("plc.reconnect_interval", "2s")
	viper.SetDefault("plc.simulate", false)
	viper.SetDefault("plc.auto_trigger", false)
	viper.SetDefault("protocol.trigger_values.ready", 10)
	viper.SetDefault("protocol.trigger_values.processing", 127)
	viper.SetDefault("protocol.trigger_values.image_ready", 128)
	viper.SetDefault("protocol.class_values.unknown", 1)
	viper.SetDefault("protocol.class_values.cuttable", 2)
	viper.SetDefault("protocol.class_values.reserved", 3)
	viper.SetDefault("protocol.poll_interval", "100ms")
	viper.SetDefault("protocol.write_retries", 3)
	viper.SetDefault("protocol.retry_backoff", "200ms")
	viper.SetDefault("protocol.geometry_scale", 10)
	viper.SetDefault("capture.timeout", "5s")
	viper.SetDefault("capture.simulate", false)
	viper.SetDefault("capture.test_image_dir", "test_img")
	viper.SetDefault("detection.timeout", "5s")
	viper.SetDefault("detection.max_concurrent", 1)
	viper.SetDefault("detection.simulate", false)
	viper.SetDefault("detection.pixel_to_mm", 0.1)
	viper.SetDefault("detection.min_confidence", 0.5)
	viper.SetDefault("cameras_file", "configs/cameras.json")

	// Environment Variables automatisch binden (Viper Feature)
	viper.AutomaticEnv()
	viper.SetEnvPrefix("CUTVISION")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the invariants no camera worker may start without.
func (c *Config) Validate() error {
	if err := c.Protocol.TriggerValues.Validate(); err != nil {
		return err
	}
	if err := c.Protocol.ClassValues.Validate(); err != nil {
		return err
	}
	if c.Protocol.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.Protocol.PollInterval)
	}
	if c.Protocol.WriteRetries < 1 {
		return fmt.Errorf("write_retries must be at least 1, got %d", c.Protocol.WriteRetries)
	}
	if c.Protocol.GeometryScale <= 0 {
		return fmt.Errorf("geometry_scale must be positive, got %v", c.Protocol.GeometryScale)
	}
	if c.Detection.MaxConcurrent < 1 {
		return fmt.Errorf("detection.max_concurrent must be at least 1, got %d", c.Detection.MaxConcurrent)
	}
	return nil
}

// Dump renders the effective configuration for -dump-config.
func (c *Config) Dump() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	return string(out), nil
}
