package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// DefaultRuntime is the runtime tag used when neither the project nor the
// top-level configuration names one.
const DefaultRuntime = "composer:7.1"

// DefaultPackagistURL is the Packagist metadata mirror queried by default.
const DefaultPackagistURL = "https://repo.packagist.org"

var (
	ErrConfigNotFound     = errors.New("config file not found")
	ErrNoProjects         = errors.New("no projects configured")
	ErrMissingAPIBaseURL  = errors.New("missing required field: source_control.api_base_url")
	ErrMissingProjectID   = errors.New("missing required field: source_control.project_id")
	ErrMissingAccessToken = errors.New("missing required field: source_control.access_token")
)

// envVarPattern matches ${VAR_NAME} syntax for environment variable substitution
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Config represents the application configuration
type Config struct {
	Runtime   string          `yaml:"runtime,omitempty" toml:"runtime"`
	Packagist PackagistConfig `yaml:"packagist" toml:"packagist"`
	Git       GitConfig       `yaml:"git" toml:"git"`
	Container ContainerConfig `yaml:"container" toml:"container"`
	Projects  []Project       `yaml:"projects" toml:"projects"`
}

// GitConfig holds the identity used for update commits
type GitConfig struct {
	User  string `yaml:"user" toml:"user"`
	Email string `yaml:"email" toml:"email"`
}

// ContainerConfig selects the container CLI used for update runs
type ContainerConfig struct {
	Binary string `yaml:"binary,omitempty" toml:"binary"`
}

// PackagistConfig holds registry settings
type PackagistConfig struct {
	BaseURL string   `yaml:"base_url,omitempty" toml:"base_url"`
	Timeout Duration `yaml:"timeout,omitempty" toml:"timeout"`
}

// Project is one monitored repository
type Project struct {
	Name          string              `yaml:"name,omitempty" toml:"name"`
	Runtime       string              `yaml:"runtime,omitempty" toml:"runtime"`
	SourceControl SourceControlConfig `yaml:"source_control" toml:"source_control"`
}

// SourceControlConfig holds the connection parameters for a project's GitLab host
type SourceControlConfig struct {
	APIBaseURL  string    `yaml:"api_base_url" toml:"api_base_url"`
	ProjectID   ProjectID `yaml:"project_id" toml:"project_id"`
	AccessToken string    `yaml:"access_token" toml:"access_token"`
	Ref         string    `yaml:"ref,omitempty" toml:"ref"`
}

// ProjectID is a GitLab project identifier: either a numeric ID or a
// "group/project" path. Both forms are accepted as YAML/TOML integers or strings.
type ProjectID string

// UnmarshalYAML implements yaml.Unmarshaler
func (p *ProjectID) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("project_id: expected scalar, got %v", node.Tag)
	}
	*p = ProjectID(strings.TrimSpace(node.Value))
	return nil
}

// UnmarshalTOML implements toml.Unmarshaler
func (p *ProjectID) UnmarshalTOML(v interface{}) error {
	switch val := v.(type) {
	case string:
		*p = ProjectID(strings.TrimSpace(val))
	case int64:
		*p = ProjectID(strconv.FormatInt(val, 10))
	default:
		return fmt.Errorf("project_id: unsupported type %T", v)
	}
	return nil
}

// Duration is a time.Duration written as "30s" in config files
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.parse(node.Value)
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, used by the TOML decoder
func (d *Duration) UnmarshalText(text []byte) error {
	return d.parse(string(text))
}

func (d *Duration) parse(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Label returns a human-readable identifier for log lines.
// It never includes the access token.
func (p Project) Label() string {
	if p.Name != "" {
		return p.Name
	}
	return fmt.Sprintf("%s#%s", p.SourceControl.APIBaseURL, p.SourceControl.ProjectID)
}

// String implements fmt.Stringer without exposing the access token
func (p Project) String() string {
	return fmt.Sprintf("project %s (%s, id %s)", p.Label(), p.SourceControl.APIBaseURL, p.SourceControl.ProjectID)
}

// Validate checks the source-control connection parameters
func (p Project) Validate() error {
	sc := p.SourceControl
	switch {
	case sc.APIBaseURL == "":
		return fmt.Errorf("%s: %w", p.Label(), ErrMissingAPIBaseURL)
	case sc.ProjectID == "":
		return fmt.Errorf("%s: %w", p.Label(), ErrMissingProjectID)
	case sc.AccessToken == "":
		return fmt.Errorf("%s: %w", p.Label(), ErrMissingAccessToken)
	}
	return nil
}

// RuntimeFor returns the runtime tag used for a project's generated automation
func (c *Config) RuntimeFor(p Project) string {
	if p.Runtime != "" {
		return p.Runtime
	}
	if c.Runtime != "" {
		return c.Runtime
	}
	return DefaultRuntime
}

// ConfigPaths returns all possible config file paths in priority order
// 1. $XDG_CONFIG_HOME/nightwatch/config.yaml (default ~/.config)
// 2. ~/.nightwatch/config.yaml (legacy fallback)
func ConfigPaths() ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}

	return []string{
		filepath.Join(xdgConfig, "nightwatch", "config.yaml"),
		filepath.Join(home, ".nightwatch", "config.yaml"),
	}, nil
}

// FindConfigPath returns the first existing config file path
func FindConfigPath() (string, error) {
	paths, err := ConfigPaths()
	if err != nil {
		return "", err
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w: looked in %s", ErrConfigNotFound, strings.Join(paths, ", "))
}

// Load reads configuration from path, or from the first available default
// location when path is empty.
func Load(path string) (*Config, error) {
	if path == "" {
		found, err := FindConfigPath()
		if err != nil {
			return nil, err
		}
		path = found
	}
	return LoadFrom(path)
}

// LoadFrom reads configuration from a specific file path.
// Files ending in .toml are decoded as TOML, everything else as YAML.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg *Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		cfg, err = ParseTOML(data)
	} else {
		cfg, err = ParseYAML(data)
	}
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// ParseYAML decodes YAML content and applies defaults
func ParseYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return cfg.finish()
}

// ParseTOML decodes TOML content and applies defaults
func ParseTOML(data []byte) (*Config, error) {
	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config TOML: %w", err)
	}
	return cfg.finish()
}

func (c *Config) finish() (*Config, error) {
	if len(c.Projects) == 0 {
		return nil, ErrNoProjects
	}

	if c.Packagist.BaseURL == "" {
		c.Packagist.BaseURL = DefaultPackagistURL
	}
	c.Packagist.BaseURL = strings.TrimRight(c.Packagist.BaseURL, "/")
	if c.Packagist.Timeout == 0 {
		c.Packagist.Timeout = Duration(30 * time.Second)
	}
	if c.Git.User == "" {
		c.Git.User = "NightWatch"
	}
	if c.Git.Email == "" {
		c.Git.Email = "nightwatch@localhost"
	}
	if c.Container.Binary == "" {
		c.Container.Binary = "docker"
	}

	for i := range c.Projects {
		sc := &c.Projects[i].SourceControl
		sc.APIBaseURL = strings.TrimRight(SubstituteEnvVars(sc.APIBaseURL), "/")
		sc.AccessToken = SubstituteEnvVars(sc.AccessToken)
	}

	return c, nil
}

// SaveTo writes configuration as YAML to a specific file path
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	// Tokens may be stored inline, keep the file private
	return os.WriteFile(path, data, 0600)
}

// SubstituteEnvVars replaces ${VAR_NAME} patterns in a string with
// the corresponding environment variable values.
// If an environment variable is not set, the pattern is replaced with an empty string.
func SubstituteEnvVars(value string) string {
	return envVarPattern.ReplaceAllStringFunc(value, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}
