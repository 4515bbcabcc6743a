package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewConfigDefaultsWhenMissing(t *testing.T) {
	t.Setenv(ShellEnv, "")
	c, err := NewConfig(t.TempDir())
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if c.Project.Version != 1 {
		t.Fatalf("expected default version == 1, got %d", c.Project.Version)
	}
	if c.Shell() != "sh" || !c.Interactive() || !c.Project.Journal {
		t.Fatalf("unexpected defaults: %+v", c.Project)
	}
	if c.Env() != nil {
		t.Fatalf("expected no extra env, got %v", c.Env())
	}
}

func TestLoadProjectConfigParsesYaml(t *testing.T) {
	t.Setenv(ShellEnv, "")
	projectDir := t.TempDir()
	stepwiseDir := filepath.Join(projectDir, Dir)
	if err := os.MkdirAll(stepwiseDir, 0755); err != nil {
		t.Fatal(err)
	}
	configYAML := strings.TrimSpace(`
version: 1
shell: " bash "
interactive: false
log_level: DEBUG
log_format: json
journal: false
env:
  DEPLOY_ENV: staging
  " REGION ": eu-west-1
`)
	if err := os.WriteFile(filepath.Join(stepwiseDir, "config.yaml"), []byte(configYAML), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if c.Shell() != "bash" {
		t.Fatalf("expected trimmed shell, got %q", c.Shell())
	}
	if c.Interactive() {
		t.Fatalf("interactive should be disabled")
	}
	if c.Project.LogLevel != "debug" || c.Project.LogFormat != "json" || c.Project.Journal {
		t.Fatalf("unexpected logging settings: %+v", c.Project)
	}
	env := c.Env()
	if len(env) != 2 || env[0] != "DEPLOY_ENV=staging" || env[1] != "REGION=eu-west-1" {
		t.Fatalf("unexpected env: %v", env)
	}
}

func TestShellEnvironmentOverride(t *testing.T) {
	t.Setenv(ShellEnv, "zsh")
	c, err := NewConfig(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if c.Shell() != "zsh" {
		t.Fatalf("expected %s to override the shell, got %q", ShellEnv, c.Shell())
	}
}

func TestLoadProjectConfigValidation(t *testing.T) {
	cases := map[string]string{
		"level":  "log_level: loud\n",
		"format": "log_format: xml\n",
		"env":    "env:\n  \"A=B\": x\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			projectDir := t.TempDir()
			stepwiseDir := filepath.Join(projectDir, Dir)
			if err := os.MkdirAll(stepwiseDir, 0755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(filepath.Join(stepwiseDir, "config.yaml"), []byte("version: 1\n"+body), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := NewConfig(projectDir); err == nil {
				t.Fatalf("expected validation error but got none")
			}
		})
	}
}

func TestInitProjectDirWritesDefaultsOnce(t *testing.T) {
	projectDir := t.TempDir()
	if err := InitProjectDir(projectDir, "workflow.yml"); err != nil {
		t.Fatalf("init: %v", err)
	}
	for _, path := range []string{
		filepath.Join(projectDir, Dir, "config.yaml"),
		filepath.Join(projectDir, Dir, "logs"),
		filepath.Join(projectDir, "workflow.yml"),
	} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s to exist: %v", path, err)
		}
	}
	custom := []byte("name: mine\n")
	workflowPath := filepath.Join(projectDir, "workflow.yml")
	if err := os.WriteFile(workflowPath, custom, 0644); err != nil {
		t.Fatal(err)
	}
	if err := InitProjectDir(projectDir, "workflow.yml"); err != nil {
		t.Fatalf("second init: %v", err)
	}
	data, _ := os.ReadFile(workflowPath)
	if string(data) != string(custom) {
		t.Fatalf("init must not overwrite an existing workflow")
	}
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("generated config must load: %v", err)
	}
	if c.Project.LogLevel != "warn" {
		t.Fatalf("unexpected generated log level %q", c.Project.LogLevel)
	}
}
