package bot

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	coreconfig "github.com/dkurbatov/coursebot/core/config"
	"github.com/dkurbatov/coursebot/core/database"
	"github.com/dkurbatov/coursebot/internal/course"
)

// Config is the full application configuration: the reusable core plus
// the course content table and the optional journal database.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Course   course.Config   `yaml:"course"`
	Database database.Config `yaml:"database"`
}

// CoreConfig implements cmd.ConfigCarrier.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Config
}

// Load reads the YAML file, applies environment overrides, and validates.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("config: env overrides: %w", err)
	}

	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return nil, err
	}
	if err := cfg.Course.Normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}
