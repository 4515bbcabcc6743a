// internal/config/config.go
//
// This package handles configuration and the .stepwise directory structure.
// A project opts in by running `stepwise init`, which creates .stepwise/ next
// to its workflow file. Everything here is optional: without a config file the
// defaults below apply.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// Dir is the name of the directory stepwise creates in each project.
	Dir = ".stepwise"

	// ShellEnv overrides the configured shell.
	ShellEnv = "STEPWISE_SHELL"

	defaultShell     = "sh"
	defaultLogLevel  = "warn"
	defaultLogFormat = "text"
)

const defaultProjectConfigYAML = `# stepwise project configuration
version: 1

# Interpreter used as "<shell> -c <command>" for every step.
shell: sh

# Offer retry/substitute/skip/abort when a step fails. Disable for CI.
interactive: true

# Diagnostics written to stderr (or .stepwise/logs/stepwise.log with --log-file).
log_level: warn
log_format: text

# Append every run to .stepwise/logs/journal.log (see "stepwise journal").
journal: true

# Extra environment for step commands.
env: {}
`

const sampleWorkflowYAML = `version: "1"
name: example
commands:
  - name: Say hello
    id: hello
    command: echo hello
  - name: Checks
    parallel:
      - name: Disk
        command: df -h .
      - name: Optional lint
        command: "false"
        skippable: true
  - name: Greet back
    dependsOn: [hello]
    condition: 'stdout("hello") == "hello"'
    command: echo "hello was said"
`

// ProjectConfig models .stepwise/config.yaml.
type ProjectConfig struct {
	Version     int               `yaml:"version"`
	Shell       string            `yaml:"shell,omitempty"`
	Interactive *bool             `yaml:"interactive,omitempty"`
	LogLevel    string            `yaml:"log_level,omitempty"`
	LogFormat   string            `yaml:"log_format,omitempty"`
	Journal     bool              `yaml:"journal"`
	Env         map[string]string `yaml:"env,omitempty"`
}

// Config holds the runtime configuration for one project.
type Config struct {
	// ProjectDir is the directory holding the workflow file.
	ProjectDir string

	// StepwiseDir is ProjectDir/.stepwise
	StepwiseDir string

	Project ProjectConfig
}

// InitProjectDir creates the .stepwise directory structure, a default config
// and, when absent, a sample workflow file. Existing files are left alone.
//
// Structure created:
// .stepwise/
// ├── config.yaml
// └── logs/        <- stepwise.log and journal.log
func InitProjectDir(projectDir, workflowFile string) error {
	stepwiseDir := filepath.Join(projectDir, Dir)
	if err := os.MkdirAll(filepath.Join(stepwiseDir, "logs"), 0o755); err != nil {
		return fmt.Errorf("config: ensure %s: %w", Dir, err)
	}
	if err := ensureFile(filepath.Join(stepwiseDir, "config.yaml"), defaultProjectConfigYAML); err != nil {
		return err
	}
	if workflowFile != "" {
		if err := ensureFile(filepath.Join(projectDir, workflowFile), sampleWorkflowYAML); err != nil {
			return err
		}
	}
	return nil
}

// NewConfig loads .stepwise/config.yaml from projectDir, falling back to
// defaults when the file does not exist.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:  projectDir,
		StepwiseDir: filepath.Join(projectDir, Dir),
		Project:     defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.StepwiseDir, "logs")
}

// JournalPath returns the run journal location.
func (c *Config) JournalPath() string {
	return filepath.Join(c.LogsDir(), "journal.log")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.StepwiseDir, "config.yaml")
}

// Shell returns the command interpreter, honouring STEPWISE_SHELL.
func (c *Config) Shell() string {
	if shell := strings.TrimSpace(os.Getenv(ShellEnv)); shell != "" {
		return shell
	}
	return c.Project.Shell
}

// Interactive reports whether failures should prompt for recovery.
func (c *Config) Interactive() bool {
	return c.Project.Interactive == nil || *c.Project.Interactive
}

// Env returns the configured extra environment as sorted KEY=value entries.
func (c *Config) Env() []string {
	if len(c.Project.Env) == 0 {
		return nil
	}
	out := make([]string, 0, len(c.Project.Env))
	for key, value := range c.Project.Env {
		out = append(out, key+"="+value)
	}
	sort.Strings(out)
	return out
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

	parsed := ProjectConfig{Journal: true}
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Version:   1,
		Shell:     defaultShell,
		LogLevel:  defaultLogLevel,
		LogFormat: defaultLogFormat,
		Journal:   true,
	}
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if strings.TrimSpace(pc.Shell) == "" {
		pc.Shell = defaultShell
	}
	if strings.TrimSpace(pc.LogLevel) == "" {
		pc.LogLevel = defaultLogLevel
	}
	if strings.TrimSpace(pc.LogFormat) == "" {
		pc.LogFormat = defaultLogFormat
	}
}

func (pc *ProjectConfig) normalize() {
	pc.Shell = strings.TrimSpace(pc.Shell)
	pc.LogLevel = strings.ToLower(strings.TrimSpace(pc.LogLevel))
	pc.LogFormat = strings.ToLower(strings.TrimSpace(pc.LogFormat))
	if len(pc.Env) > 0 {
		env := make(map[string]string, len(pc.Env))
		for key, value := range pc.Env {
			env[strings.TrimSpace(key)] = value
		}
		pc.Env = env
	}
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	switch pc.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error")
	}
	switch pc.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be 'text' or 'json'")
	}
	for key := range pc.Env {
		if key == "" || strings.Contains(key, "=") {
			return fmt.Errorf("env: invalid variable name %q", key)
		}
	}
	return nil
}

func ensureFile(path, content string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: stat %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
