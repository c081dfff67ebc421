package config

import (
	"ViewfinderOverlay/logger"
	"ViewfinderOverlay/pipeline"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendDNN    = "dnn"
	BackendRemote = "remote"
)

type Config struct {
	HTTPPort         int    `yaml:"httpPort"`
	RPCPort          int    `yaml:"rpcPort"`
	MetricsPort      int    `yaml:"metricsPort"`
	ModelPath        string `yaml:"modelPath"`
	LabelsPath       string `yaml:"labelsPath"`
	Backend          string `yaml:"backend"`
	UseGPU           bool   `yaml:"useGPU"`
	RemoteURL        string `yaml:"remoteURL"`
	RemoteTimeoutMs  int    `yaml:"remoteTimeoutMs"`
	Ordering         string `yaml:"ordering"`
	MaxInFlight      int    `yaml:"maxInFlight"`
	SessionIdleMs    int    `yaml:"sessionIdleMs"`
	UseRegServer     bool   `yaml:"useRegServer"`
	RegServerHost    string `yaml:"regServerHost"`
	RegServerPort    int    `yaml:"regServerPort"`
	HeartbeatSeconds int    `yaml:"heartbeatSeconds"`
	LogMode          string `yaml:"logMode"`
}

func Default() Config {
	return Config{
		HTTPPort:         8080,
		RPCPort:          50051,
		MetricsPort:      50053,
		ModelPath:        "models/cereal_model.onnx",
		LabelsPath:       "models/labels.txt",
		Backend:          BackendDNN,
		RemoteTimeoutMs:  2000,
		Ordering:         pipeline.OrderDropStale.String(),
		SessionIdleMs:    5000,
		HeartbeatSeconds: 5,
		LogMode:          logger.ModeProduction,
	}
}

// Load reads a YAML file over Default and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) fillDefaults() {
	d := Default()
	if c.HTTPPort == 0 {
		c.HTTPPort = d.HTTPPort
	}
	if c.RPCPort == 0 {
		c.RPCPort = d.RPCPort
	}
	if c.MetricsPort == 0 {
		c.MetricsPort = d.MetricsPort
	}
	if c.Backend == "" {
		c.Backend = d.Backend
	}
	if c.RemoteTimeoutMs <= 0 {
		c.RemoteTimeoutMs = d.RemoteTimeoutMs
	}
	if c.SessionIdleMs <= 0 {
		c.SessionIdleMs = d.SessionIdleMs
	}
	if c.HeartbeatSeconds <= 0 {
		c.HeartbeatSeconds = d.HeartbeatSeconds
	}
	if c.LogMode == "" {
		c.LogMode = d.LogMode
	}
}

func (c Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendDNN:
	case BackendRemote:
		if c.RemoteURL == "" {
			errs = append(errs, errors.New("remoteURL is required for the remote backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	if _, err := pipeline.ParseOrdering(c.Ordering); err != nil {
		errs = append(errs, err)
	}
	if c.LogMode != logger.ModeProduction && c.LogMode != logger.ModeDevelopment {
		errs = append(errs, fmt.Errorf("unknown logMode %q", c.LogMode))
	}
	if c.UseRegServer && (c.RegServerHost == "" || c.RegServerPort == 0) {
		errs = append(errs, errors.New("regServerHost and regServerPort are required when useRegServer is set"))
	}
	return errors.Join(errs...)
}

func (c Config) SessionIdle() time.Duration {
	return time.Duration(c.SessionIdleMs) * time.Millisecond
}

func (c Config) RemoteTimeout() time.Duration {
	return time.Duration(c.RemoteTimeoutMs) * time.Millisecond
}

func (c Config) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatSeconds) * time.Second
}
