package registry

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// DefaultPort is the listen port used when none is configured.
const DefaultPort = 3000

// Config is the immutable registry configuration snapshot, built once per
// server start and consumed by the bootstrapper.
type Config struct {
	// Local marks the registry as a local development instance.
	Local bool `json:"local"`

	// Verbosity is the registry log verbosity (trace, debug, info, warn, error).
	Verbosity string `json:"verbosity" validate:"omitempty,oneof=trace debug info warn error"`

	// RootPath is the absolute component root directory.
	RootPath string `json:"root_path" validate:"required"`

	// Port is the HTTP listen port.
	Port int `json:"port" validate:"gte=1,lte=65535"`

	// BaseURL is the externally visible base URL.
	BaseURL string `json:"base_url" validate:"required,url"`

	// Environment labels the environment served (dev, staging, prod).
	Environment string `json:"environment" validate:"required"`

	// Dependencies is the resolved runtime dependency set of all components.
	Dependencies []string `json:"dependencies"`
}

// NewConfig builds a dev registry configuration for the given root and port,
// applying the default port and base URL when unset.
func NewConfig(rootPath string, port int, dependencies []string) Config {
	if port == 0 {
		port = DefaultPort
	}
	return Config{
		Local:        true,
		Verbosity:    "info",
		RootPath:     rootPath,
		Port:         port,
		BaseURL:      fmt.Sprintf("http://localhost:%d", port),
		Environment:  "dev",
		Dependencies: dependencies,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid registry configuration: %w", err)
	}
	return nil
}
