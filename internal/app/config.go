package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	PipelinePath string // .hcl file, directory of .hcl files, or a .yml document
	WorkRoot     string // base directory for per-job working directories

	LogFormat       string
	LogLevel        string
	Workers         int
	FailFast        bool
	HealthcheckPort int
}

// NewConfig validates a Config. Only the pipeline path is mandatory; every
// other field has a usable zero or is validated by the CLI layer.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.PipelinePath == "" {
		return nil, errors.New("PipelinePath is a required configuration field and cannot be empty")
	}
	return &cfg, nil
}
