package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadProjectConfigDefaultsWhenMissing(t *testing.T) {
	projectDir := t.TempDir()
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if c.Project.Version != 1 {
		t.Fatalf("expected default version == 1, got %d", c.Project.Version)
	}
	if c.Project.Store.Driver != "sqlite" {
		t.Fatalf("expected sqlite driver, got %q", c.Project.Store.Driver)
	}
	if !strings.HasPrefix(c.Project.Store.Path, projectDir) {
		t.Fatalf("expected store path under project, got %s", c.Project.Store.Path)
	}
	tpl := c.Template(DefaultTemplate)
	if tpl.CraftAheadSeconds != 20 || tpl.MainProgramLengthMaxDelta != 280 {
		t.Fatalf("unexpected template defaults %+v", tpl)
	}
	if !tpl.DeltaArc() || !tpl.AutoCrescendo() {
		t.Fatalf("expected delta arc and auto crescendo enabled by default")
	}
}

func TestInitDirWritesLoadableConfig(t *testing.T) {
	projectDir := t.TempDir()
	if err := InitDir(projectDir); err != nil {
		t.Fatalf("InitDir: %v", err)
	}
	for _, sub := range []string{"logs", "state", "dub"} {
		if _, err := os.Stat(filepath.Join(projectDir, Dir, sub)); err != nil {
			t.Fatalf("expected %s dir: %v", sub, err)
		}
	}
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if c.Project.Production.CycleInterval != time.Second {
		t.Fatalf("expected 1s cycle interval, got %s", c.Project.Production.CycleInterval)
	}
	if c.Project.Status.Port != DefaultStatusPort || c.Project.Status.MaxBodyBytes != DefaultStatusMaxBodyBytes {
		t.Fatalf("unexpected status section %+v", c.Project.Status)
	}
	if got := c.Template("demo").BeatLayersToPrioritize(); len(got) != 1 || got[0] != "kick" {
		t.Fatalf("unexpected beat priorities %v", got)
	}
}

func TestLoadProjectConfigParsesYaml(t *testing.T) {
	projectDir := t.TempDir()
	stateDir := filepath.Join(projectDir, Dir)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		t.Fatal(err)
	}
	configYAML := strings.TrimSpace(`
version: 1
library: content/library.yaml
store:
  driver: memory
production:
  cycle_interval: 250ms
  max_parallel: 2
templates:
  night:
    craft_ahead_seconds: 10
    dub_ahead_seconds: 0
    delta_arc_enabled: false
    delta_arc_detail_layers_to_prioritize: " bass , pad "
    choice_mute_probability:
      Drum: 0.25
    seed: 42
`)
	if err := os.WriteFile(filepath.Join(stateDir, "config.yaml"), []byte(configYAML), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if c.LibraryPath() != filepath.Join(projectDir, "content", "library.yaml") {
		t.Fatalf("library path not resolved: %s", c.LibraryPath())
	}
	if c.Project.Production.CycleInterval != 250*time.Millisecond {
		t.Fatalf("unexpected interval %s", c.Project.Production.CycleInterval)
	}
	night := c.Template("night")
	if night.DeltaArc() {
		t.Fatalf("expected delta arc disabled")
	}
	if night.CraftAhead() != 10*time.Second || night.DubAhead() != 10*time.Second {
		t.Fatalf("unexpected ahead windows %s %s", night.CraftAhead(), night.DubAhead())
	}
	if got := night.DetailLayersToPrioritize(); len(got) != 2 || got[1] != "pad" {
		t.Fatalf("unexpected detail priorities %v", got)
	}
	if night.MuteProbability("drum") != 0.25 {
		t.Fatalf("expected case-insensitive mute probability")
	}
	if night.Seed != 42 {
		t.Fatalf("expected seed 42, got %d", night.Seed)
	}
	if _, ok := c.Project.Templates[DefaultTemplate]; ok {
		t.Fatalf("default template should not be injected when templates are configured")
	}
}

func TestLoadProjectConfigValidation(t *testing.T) {
	cases := map[string]string{
		"driver":    "store:\n  driver: postgres\n",
		"crescendo": "templates:\n  x:\n    intensity_auto_crescendo_minimum: 0.9\n    intensity_auto_crescendo_maximum: 0.5\n",
		"mute":      "templates:\n  x:\n    choice_mute_probability:\n      Drum: 2\n",
		"level":     "logging:\n  level: chatty\n",
		"port":      "status:\n  port: 70000\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			projectDir := t.TempDir()
			stateDir := filepath.Join(projectDir, Dir)
			if err := os.MkdirAll(stateDir, 0755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(filepath.Join(stateDir, "config.yaml"), []byte(body), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := NewConfig(projectDir); err == nil {
				t.Fatalf("expected validation error but got none")
			}
		})
	}
}

func TestLogLevelEnvOverride(t *testing.T) {
	t.Setenv("CHAINFORGE_LOG_LEVEL", "DEBUG")
	c, err := NewConfig(t.TempDir())
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if c.Project.Logging.Level != "debug" {
		t.Fatalf("expected debug level, got %s", c.Project.Logging.Level)
	}
}

func TestStatusEnvOverride(t *testing.T) {
	t.Setenv("CHAINFORGE_STATUS_PORT", "9001")
	t.Setenv("CHAINFORGE_STATUS_HOST", "0.0.0.0")
	t.Setenv("CHAINFORGE_STATUS_ENABLED", "false")
	c, err := NewConfig(t.TempDir())
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	status := c.Project.Status
	if status.Port != 9001 || status.Host != "0.0.0.0" || status.IsEnabled() {
		t.Fatalf("status = %+v", status)
	}
}

func TestStatusEnvOverrideRejectsBadPort(t *testing.T) {
	for _, port := range []string{"http", "0", "70000"} {
		t.Setenv("CHAINFORGE_STATUS_PORT", port)
		if _, err := NewConfig(t.TempDir()); err == nil {
			t.Fatalf("expected error for CHAINFORGE_STATUS_PORT=%s", port)
		}
	}
}

func TestStatusDefaultsWithoutConfigFile(t *testing.T) {
	status := StatusConfig{}.Resolved()
	if !status.IsEnabled() || status.Host != DefaultStatusHost || status.Port != DefaultStatusPort {
		t.Fatalf("status = %+v", status)
	}
	if status.ReadTimeout != 15*time.Second || status.IdleTimeout != time.Minute {
		t.Fatalf("timeouts = %+v", status)
	}
}

func TestSetTemplatePersists(t *testing.T) {
	projectDir := t.TempDir()
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	tpl := DefaultTemplateConfig()
	tpl.CraftAheadSeconds = 5
	if err := c.SetTemplate("short", tpl); err != nil {
		t.Fatalf("SetTemplate: %v", err)
	}
	reloaded, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Template("short").CraftAheadSeconds != 5 {
		t.Fatalf("expected persisted template")
	}
}
