// Package config provides configuration structures and loading for protomod.
package config

// Config represents the complete application configuration.
type Config struct {
	Namespace NamespaceConfig `yaml:"namespace" mapstructure:"namespace"`
	Compiler  CompilerConfig  `yaml:"compiler" mapstructure:"compiler"`
	Modules   ModulesConfig   `yaml:"modules" mapstructure:"modules"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Lock      LockConfig      `yaml:"lock" mapstructure:"lock"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
}

// NamespaceConfig controls how synthesized modules are named and resolved.
type NamespaceConfig struct {
	Root      string            `yaml:"root" mapstructure:"root"`             // Identity prefix for synthesized modules
	WellKnown map[string]string `yaml:"well_known" mapstructure:"well_known"` // Dotted schema name -> Go module path
}

// CompilerConfig represents schema compiler settings.
type CompilerConfig struct {
	IncludePaths      []string         `yaml:"include_paths" mapstructure:"include_paths"`
	IncludeImports    bool             `yaml:"include_imports" mapstructure:"include_imports"`
	IncludeSourceInfo bool             `yaml:"include_source_info" mapstructure:"include_source_info"`
	CommentOptions    map[string]int32 `yaml:"comment_options" mapstructure:"comment_options"` // Element kind -> option field number
	Parallelism       int              `yaml:"parallelism" mapstructure:"parallelism"`         // 0 means GOMAXPROCS
}

// ModulesConfig represents module synthesis settings.
type ModulesConfig struct {
	StubOnly bool   `yaml:"stub_only" mapstructure:"stub_only"`
	Suffix   string `yaml:"suffix" mapstructure:"suffix"` // Appended to file stems when naming stub modules
}

// CacheConfig represents the on-disk compile cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Dir     string `yaml:"dir" mapstructure:"dir"` // Defaults to the user cache directory
}

// LockConfig represents the session lock settings.
type LockConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
	Output string `yaml:"output" mapstructure:"output"` // stdout, stderr, or file path
}

// CommentOptionKinds lists the element kinds that accept a comment option.
var CommentOptionKinds = []string{
	"message", "field", "oneof", "enum", "enum_value", "service", "method", "extension",
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Namespace: NamespaceConfig{
			Root:      "protomod",
			WellKnown: map[string]string{},
		},
		Compiler: CompilerConfig{
			IncludeImports:    true,
			IncludeSourceInfo: true,
			CommentOptions:    map[string]int32{},
		},
		Modules: ModulesConfig{
			StubOnly: false,
		},
		Cache: CacheConfig{
			Enabled: false,
		},
		Lock: LockConfig{
			TimeoutSeconds: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}
