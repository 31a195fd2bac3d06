// internal/config/config.go
//
// This package handles configuration and the .chainforge directory structure.
// Every project that runs chainforge gets a .chainforge/ folder in its root
// holding the config file, the chain database, logs and dub output.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	// Dir is the name of the directory we create in each project
	Dir = ".chainforge"

	// DefaultTemplate is the template key used when none is given.
	DefaultTemplate = "demo"
)

const defaultProjectConfigYAML = `# chainforge project configuration
version: 1

# Content library the templates below are bound from.
library: library.yaml

# Chain and segment persistence. driver is memory or sqlite.
store:
  driver: sqlite
  path: .chainforge/state/chains.db

production:
  cycle_interval: 1s
  max_parallel: 4
  max_consecutive_failures: 3
  max_segments_per_cycle: 64

templates:
  demo:
    craft_ahead_seconds: 20
    dub_ahead_seconds: 10
    delta_arc_beat_layers_to_prioritize: kick
    detail_layer_order: Bass,Stripe,Pad,Sticky,Stab

status:
  enabled: true
  host: 127.0.0.1
  port: 7420
  max_body_bytes: 65536

logging:
  level: info
  format: text
`

// StoreConfig selects the chain store.
type StoreConfig struct {
	Driver string `yaml:"driver" validate:"oneof=memory sqlite"`
	Path   string `yaml:"path"`
}

// ProductionConfig tunes the craft/dub loop.
type ProductionConfig struct {
	CycleInterval          time.Duration `yaml:"cycle_interval" validate:"gt=0"`
	MaxParallel            int           `yaml:"max_parallel" validate:"gte=1"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures" validate:"gte=1"`
	MaxSegmentsPerCycle    int           `yaml:"max_segments_per_cycle" validate:"gte=1"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// ProjectConfig models .chainforge/config.yaml.
type ProjectConfig struct {
	Version    int                       `yaml:"version" validate:"gte=1"`
	Library    string                    `yaml:"library"`
	Store      StoreConfig               `yaml:"store"`
	Production ProductionConfig          `yaml:"production"`
	Templates  map[string]TemplateConfig `yaml:"templates" validate:"dive"`
	Status     StatusConfig              `yaml:"status"`
	Logging    LoggingConfig             `yaml:"logging"`
}

// Config holds the runtime configuration for chainforge.
type Config struct {
	// ProjectDir is the directory chainforge was started from
	ProjectDir string

	// StateDir is ProjectDir/.chainforge
	StateDir string

	Project ProjectConfig
}

var validate = validator.New()

// InitDir creates the .chainforge directory structure in the given project directory.
//
// Structure created:
// .chainforge/
// ├── logs/   <- chainforge.log and the transition journal
// ├── state/  <- chain database
// └── dub/    <- segment plans handed to dub
func InitDir(projectDir string) error {
	root := filepath.Join(projectDir, Dir)
	dirs := []string{
		filepath.Join(root, "logs"),
		filepath.Join(root, "state"),
		filepath.Join(root, "dub"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return ensureProjectConfig(filepath.Join(root, "config.yaml"))
}

// NewConfig creates a new Config instance populated with project settings.
// A missing config file yields the defaults.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir: projectDir,
		StateDir:   filepath.Join(projectDir, Dir),
		Project:    defaultProjectConfig(),
	}
	cfg.Project.normalize(projectDir)
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	if level := strings.TrimSpace(os.Getenv("CHAINFORGE_LOG_LEVEL")); level != "" {
		cfg.Project.Logging.Level = strings.ToLower(level)
		if err := cfg.Project.validate(); err != nil {
			return nil, fmt.Errorf("config: CHAINFORGE_LOG_LEVEL: %w", err)
		}
	}
	if err := cfg.Project.Status.applyEnv(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Project.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.StateDir, "logs")
}

// DubDir returns where dubbed segment plans are written
func (c *Config) DubDir() string {
	return filepath.Join(c.StateDir, "dub")
}

// JournalPath returns the transition journal path
func (c *Config) JournalPath() string {
	return filepath.Join(c.LogsDir(), "journey.log")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.StateDir, "config.yaml")
}

// LibraryPath returns the resolved content library path.
func (c *Config) LibraryPath() string {
	return c.Project.Library
}

// Template returns the configuration for a template key. Unknown keys get
// the defaults so a library template can run without a config entry.
func (c *Config) Template(key string) TemplateConfig {
	if t, ok := c.Project.Templates[key]; ok {
		return t
	}
	return DefaultTemplateConfig()
}

// TemplateKeys lists configured template keys in order.
func (c *Config) TemplateKeys() []string {
	keys := make([]string, 0, len(c.Project.Templates))
	for k := range c.Project.Templates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetTemplate stores a template config and persists the file.
func (c *Config) SetTemplate(key string, t TemplateConfig) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("config: template key is required")
	}
	if c.Project.Templates == nil {
		c.Project.Templates = map[string]TemplateConfig{}
	}
	c.Project.Templates[key] = t
	return c.saveProjectConfig()
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize(c.ProjectDir)
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	pc := ProjectConfig{}
	pc.applyDefaults()
	return pc
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if pc.Library == "" {
		pc.Library = "library.yaml"
	}
	if pc.Store.Driver == "" {
		pc.Store.Driver = "sqlite"
	}
	if pc.Store.Path == "" {
		pc.Store.Path = filepath.Join(Dir, "state", "chains.db")
	}
	if pc.Production.CycleInterval == 0 {
		pc.Production.CycleInterval = time.Second
	}
	if pc.Production.MaxParallel == 0 {
		pc.Production.MaxParallel = 4
	}
	if pc.Production.MaxConsecutiveFailures == 0 {
		pc.Production.MaxConsecutiveFailures = 3
	}
	if pc.Production.MaxSegmentsPerCycle == 0 {
		pc.Production.MaxSegmentsPerCycle = 64
	}
	if pc.Templates == nil {
		pc.Templates = map[string]TemplateConfig{}
	}
	if len(pc.Templates) == 0 {
		pc.Templates[DefaultTemplate] = DefaultTemplateConfig()
	}
	for key, t := range pc.Templates {
		t.applyDefaults()
		pc.Templates[key] = t
	}
	pc.Status.applyDefaults()
	if pc.Logging.Level == "" {
		pc.Logging.Level = "info"
	}
	if pc.Logging.Format == "" {
		pc.Logging.Format = "text"
	}
}

func (pc *ProjectConfig) normalize(base string) {
	pc.Library = resolvePath(base, pc.Library)
	pc.Store.Driver = strings.ToLower(strings.TrimSpace(pc.Store.Driver))
	pc.Store.Path = resolvePath(base, pc.Store.Path)
	pc.Logging.Level = strings.ToLower(strings.TrimSpace(pc.Logging.Level))
	pc.Logging.Format = strings.ToLower(strings.TrimSpace(pc.Logging.Format))
	pc.Status.Host = strings.TrimSpace(pc.Status.Host)
	if pc.Status.Host == "" {
		pc.Status.Host = DefaultStatusHost
	}
	for key, t := range pc.Templates {
		t.normalize()
		pc.Templates[key] = t
	}
}

func (pc *ProjectConfig) validate() error {
	if err := validate.Struct(pc); err != nil {
		return err
	}
	if pc.Store.Driver == "sqlite" && pc.Store.Path == "" {
		return fmt.Errorf("store.path is required for the sqlite driver")
	}
	for key, t := range pc.Templates {
		if err := t.validate(); err != nil {
			return fmt.Errorf("templates[%s]: %w", key, err)
		}
	}
	return nil
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0644)
}

func (c *Config) saveProjectConfig() error {
	if c == nil {
		return fmt.Errorf("config: nil receiver")
	}
	c.Project.applyDefaults()
	c.Project.normalize(c.ProjectDir)
	if err := c.Project.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(c.StateDir, 0o755); err != nil {
		return fmt.Errorf("config: ensure state dir: %w", err)
	}
	data, err := yaml.Marshal(c.Project)
	if err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	if err := os.WriteFile(c.ProjectConfigPath(), data, 0644); err != nil {
		return fmt.Errorf("config: write project config: %w", err)
	}
	return nil
}
