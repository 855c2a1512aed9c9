package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// keyDelimiter replaces viper's "." so dotted schema names can be map keys.
const keyDelimiter = "::"

// Load reads configuration from the specified file path.
// It supports YAML files and performs environment variable substitution.
func Load(configPath string) (*Config, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return LoadFromViper(v)
}

// LoadFromViper creates a Config from an existing Viper instance.
// Useful for testing or when Viper is configured externally.
func LoadFromViper(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := substituteEnvVars(cfg); err != nil {
		return nil, fmt.Errorf("failed to substitute environment variables: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR_NAME} or $VAR_NAME patterns
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// substituteEnvVars replaces ${VAR_NAME} patterns in path-like settings.
func substituteEnvVars(cfg *Config) error {
	for i, p := range cfg.Compiler.IncludePaths {
		cfg.Compiler.IncludePaths[i] = expandEnvVar(p)
	}

	cfg.Cache.Dir = expandEnvVar(cfg.Cache.Dir)
	cfg.Logging.Output = expandEnvVar(cfg.Logging.Output)

	return nil
}

// expandEnvVar expands environment variables in the format ${VAR} or $VAR.
func expandEnvVar(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Return original if env var not found
		return match
	})
}

// Overrides holds CLI flag values. Zero values leave the configuration untouched.
type Overrides struct {
	LogLevel     string
	LogFormat    string
	Root         string
	IncludePaths []string
	StubOnly     bool
	NoCache      bool
}

// ApplyOverrides applies CLI flag overrides to the configuration.
// Include paths from flags are searched before configured ones.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.LogLevel != "" {
		c.Logging.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		c.Logging.Format = o.LogFormat
	}
	if o.Root != "" {
		c.Namespace.Root = o.Root
	}
	if len(o.IncludePaths) > 0 {
		c.Compiler.IncludePaths = append(append([]string{}, o.IncludePaths...), c.Compiler.IncludePaths...)
	}
	if o.StubOnly {
		c.Modules.StubOnly = true
	}
	if o.NoCache {
		c.Cache.Enabled = false
	}
}
