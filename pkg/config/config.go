// Package config loads the skill subsystem configuration through viper.
// Values come from defaults, an optional config.yaml, AGENT_SKILLS_* environment
// variables and bound CLI flags, in increasing order of precedence.
package config

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ipdelete/agent-base-sub000/pkg/logger"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Sentinel values accepted in skills.enabled.
const (
	EnabledAll          = "all"
	EnabledAllUntrusted = "all-untrusted"
	EnabledNone         = "none"
)

const (
	DefaultScriptTimeout   = 60 * time.Second
	DefaultMaxOutputBytes  = 1 << 20
	DefaultMaxArgs         = 100
	DefaultMaxArgBytes     = 4 * 1024
	DefaultStderrTailBytes = 500
	DefaultMaxParallel     = 4

	envPrefix = "AGENT_SKILLS"
	homeDir   = ".agent-base"
)

// SkillsConfig controls which skills are loaded and from where.
type SkillsConfig struct {
	Enabled      []string `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	BundledDir   string   `mapstructure:"bundled_dir" json:"bundled_dir" yaml:"bundled_dir"`
	UserDir      string   `mapstructure:"user_dir" json:"user_dir" yaml:"user_dir"`
	ExtraDirs    []string `mapstructure:"extra_dirs" json:"extra_dirs" yaml:"extra_dirs"`
	RegistryPath string   `mapstructure:"registry_path" json:"registry_path" yaml:"registry_path"`
	MaxParallel  int      `mapstructure:"max_parallel" json:"max_parallel" yaml:"max_parallel"`
	// ToolsetConfig holds free-form options per canonical skill name. Toolsets
	// decode their own section.
	ToolsetConfig map[string]map[string]any `mapstructure:"toolset_config" json:"toolset_config" yaml:"toolset_config"`
}

// SandboxConfig bounds script execution.
type SandboxConfig struct {
	Timeout         time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
	MaxOutputBytes  int           `mapstructure:"max_output_bytes" json:"max_output_bytes" yaml:"max_output_bytes"`
	MaxArgs         int           `mapstructure:"max_args" json:"max_args" yaml:"max_args"`
	MaxArgBytes     int           `mapstructure:"max_arg_bytes" json:"max_arg_bytes" yaml:"max_arg_bytes"`
	StderrTailBytes int           `mapstructure:"stderr_tail_bytes" json:"stderr_tail_bytes" yaml:"stderr_tail_bytes"`
	// Interpreters maps a file extension without the leading dot to the argv
	// prefix used to launch scripts with that extension.
	Interpreters map[string][]string `mapstructure:"interpreters" json:"interpreters" yaml:"interpreters"`
	SafeEnv      []string            `mapstructure:"safe_env" json:"safe_env" yaml:"safe_env"`
}

// TracingConfig mirrors the OpenTelemetry settings.
type TracingConfig struct {
	Enabled bool    `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Sampler string  `mapstructure:"sampler" json:"sampler" yaml:"sampler"`
	Ratio   float64 `mapstructure:"ratio" json:"ratio" yaml:"ratio"`
}

// Config is the shared configuration object. It is also what every
// instantiated toolset receives.
type Config struct {
	Skills    SkillsConfig  `mapstructure:"skills" json:"skills" yaml:"skills"`
	Sandbox   SandboxConfig `mapstructure:"sandbox" json:"sandbox" yaml:"sandbox"`
	Tracing   TracingConfig `mapstructure:"tracing" json:"tracing" yaml:"tracing"`
	LogLevel  string        `mapstructure:"log_level" json:"log_level" yaml:"log_level"`
	LogFormat string        `mapstructure:"log_format" json:"log_format" yaml:"log_format"`
}

// Default returns the configuration used when nothing is configured.
func Default() *Config {
	return &Config{
		Skills: SkillsConfig{
			Enabled:      []string{EnabledAll},
			BundledDir:   "~/" + homeDir + "/bundled-skills",
			UserDir:      "~/" + homeDir + "/skills",
			RegistryPath: "~/" + homeDir + "/skills-registry.json",
			MaxParallel:  DefaultMaxParallel,
		},
		Sandbox: SandboxConfig{
			Timeout:         DefaultScriptTimeout,
			MaxOutputBytes:  DefaultMaxOutputBytes,
			MaxArgs:         DefaultMaxArgs,
			MaxArgBytes:     DefaultMaxArgBytes,
			StderrTailBytes: DefaultStderrTailBytes,
			Interpreters: map[string][]string{
				"py": {"python3"},
				"sh": {"sh"},
			},
			SafeEnv: []string{"PATH", "HOME", "LANG", "LC_ALL", "TMPDIR", "TERM", "SYSTEMROOT"},
		},
		Tracing: TracingConfig{
			Sampler: "always",
			Ratio:   1,
		},
		LogLevel:  "info",
		LogFormat: "fmt",
	}
}

// SetDefaults registers Default() values on v so that environment variables
// and config files override individual keys.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("skills.enabled", d.Skills.Enabled)
	v.SetDefault("skills.bundled_dir", d.Skills.BundledDir)
	v.SetDefault("skills.user_dir", d.Skills.UserDir)
	v.SetDefault("skills.registry_path", d.Skills.RegistryPath)
	v.SetDefault("skills.max_parallel", d.Skills.MaxParallel)
	v.SetDefault("sandbox.timeout", d.Sandbox.Timeout)
	v.SetDefault("sandbox.max_output_bytes", d.Sandbox.MaxOutputBytes)
	v.SetDefault("sandbox.max_args", d.Sandbox.MaxArgs)
	v.SetDefault("sandbox.max_arg_bytes", d.Sandbox.MaxArgBytes)
	v.SetDefault("sandbox.stderr_tail_bytes", d.Sandbox.StderrTailBytes)
	v.SetDefault("sandbox.interpreters", d.Sandbox.Interpreters)
	v.SetDefault("sandbox.safe_env", d.Sandbox.SafeEnv)
	v.SetDefault("tracing.sampler", d.Tracing.Sampler)
	v.SetDefault("tracing.ratio", d.Tracing.Ratio)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
}

// InitViper wires environment variables and the config file search path into v.
// A missing config file is not an error.
func InitViper(v *viper.Viper) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME/" + homeDir)
	v.AddConfigPath(".")

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return errors.Wrap(err, "failed to read config file")
	}
	return nil
}

// Load decodes v into a Config. Out-of-range values fall back to defaults with
// a warning rather than failing the whole load.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.GetViper()
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal skills configuration")
	}

	cfg.normalize(context.Background())
	return cfg, nil
}

func (c *Config) normalize(ctx context.Context) {
	d := Default()
	log := logger.G(ctx)

	c.Skills.Enabled = splitEnabled(c.Skills.Enabled)
	if c.Skills.MaxParallel <= 0 {
		c.Skills.MaxParallel = d.Skills.MaxParallel
	}

	if c.Sandbox.Timeout <= 0 {
		log.WithField("timeout", c.Sandbox.Timeout).Warn("invalid sandbox timeout, using default")
		c.Sandbox.Timeout = d.Sandbox.Timeout
	}
	if c.Sandbox.MaxOutputBytes <= 0 {
		log.WithField("max_output_bytes", c.Sandbox.MaxOutputBytes).Warn("invalid sandbox output cap, using default")
		c.Sandbox.MaxOutputBytes = d.Sandbox.MaxOutputBytes
	}
	if c.Sandbox.MaxArgs <= 0 {
		c.Sandbox.MaxArgs = d.Sandbox.MaxArgs
	}
	if c.Sandbox.MaxArgBytes <= 0 {
		c.Sandbox.MaxArgBytes = d.Sandbox.MaxArgBytes
	}
	if c.Sandbox.StderrTailBytes <= 0 {
		c.Sandbox.StderrTailBytes = d.Sandbox.StderrTailBytes
	}
	if len(c.Sandbox.Interpreters) == 0 {
		c.Sandbox.Interpreters = d.Sandbox.Interpreters
	}

	c.Skills.BundledDir = ExpandHomePath(c.Skills.BundledDir)
	c.Skills.UserDir = ExpandHomePath(c.Skills.UserDir)
	c.Skills.RegistryPath = ExpandHomePath(c.Skills.RegistryPath)
	for i, dir := range c.Skills.ExtraDirs {
		c.Skills.ExtraDirs[i] = ExpandHomePath(dir)
	}
}

// splitEnabled accepts both list values and a single comma separated string
// (as delivered by AGENT_SKILLS_SKILLS_ENABLED="a,b").
func splitEnabled(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// ToolsetOptions returns the free-form option map configured for a skill.
func (c *Config) ToolsetOptions(canonicalSkill string) map[string]any {
	if c == nil || c.Skills.ToolsetConfig == nil {
		return nil
	}
	return c.Skills.ToolsetConfig[canonicalSkill]
}

// ExpandHomePath expands a leading ~ to the user's home directory
func ExpandHomePath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}

// Interpreter returns the argv prefix configured for a file extension. ext
// may be given with or without its leading dot.
func (s SandboxConfig) Interpreter(ext string) ([]string, bool) {
	key := strings.ToLower(strings.TrimPrefix(ext, "."))
	for k, argv := range s.Interpreters {
		if strings.ToLower(strings.TrimPrefix(k, ".")) == key && len(argv) > 0 {
			return argv, true
		}
	}
	return nil, false
}

// ScriptExtensions returns the dotted extensions that have an interpreter.
func (s SandboxConfig) ScriptExtensions() []string {
	exts := make([]string, 0, len(s.Interpreters))
	for k, argv := range s.Interpreters {
		if len(argv) == 0 {
			continue
		}
		exts = append(exts, "."+strings.ToLower(strings.TrimPrefix(k, ".")))
	}
	sort.Strings(exts)
	return exts
}
