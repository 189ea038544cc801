package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_DATA_DIR keeps the device stores for inspection and must start empty; a temp dir is used when unset
	DataDir string `envconfig:"E2E_DATA_DIR"`
	// E2E_DEBUG_JSON dumps every command output
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
