package app

import "errors"

// Config holds what the entrypoint must decide before the host can start.
// Everything else lives in the host's configuration file.
type Config struct {
	// ConfigPath is the host's HCL configuration file.
	ConfigPath string

	LogFormat string
	LogLevel  string

	// Listen and URL override the configuration file when set.
	Listen string
	URL    string
}

// NewConfig validates a Config.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ConfigPath == "" {
		return nil, errors.New("ConfigPath is a required configuration field and cannot be empty")
	}

	return &cfg, nil
}
