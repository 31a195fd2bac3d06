package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var testLibrary = filepath.Join("..", "..", "internal", "content", "testdata", "library.yaml")

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestValidateReportsTemplates(t *testing.T) {
	out, err := execute(t, "validate", testLibrary)
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "OK: ") || !strings.Contains(out, "template demo:") || !strings.Contains(out, "template drums-only:") {
		t.Fatalf("unexpected report:\n%s", out)
	}
}

func TestValidateRejectsBrokenLibrary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	body := "version: 1\nprograms:\n  - id: m\n    type: Main\n    name: M\n    tempo: 120\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write library: %v", err)
	}
	out, err := execute(t, "validate", path)
	if err == nil {
		t.Fatalf("expected validation failure")
	}
	if !strings.Contains(out, "Invalid: ") || !strings.Contains(out, "need at least one binding") {
		t.Fatalf("unexpected report:\n%s", out)
	}
}

func TestCraftWritesDubPlans(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "plans")
	library, err := filepath.Abs(testLibrary)
	if err != nil {
		t.Fatalf("abs: %v", err)
	}
	out, err := execute(t, "craft", "--dir", dir, "--library", library,
		"--template", "demo", "--seconds", "8", "--seed", "42", "--out", outDir)
	if err != nil {
		t.Fatalf("craft: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Initial") || !strings.Contains(out, "seed 42") {
		t.Fatalf("unexpected craft output:\n%s", out)
	}
	plans, err := filepath.Glob(filepath.Join(outDir, "*", "*.json"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(plans) == 0 {
		t.Fatalf("expected dubbed plans under %s", outDir)
	}
}

func TestInitCreatesProject(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "init", "--dir", dir)
	if err != nil {
		t.Fatalf("init: %v\n%s", err, out)
	}
	if _, err := os.Stat(filepath.Join(dir, ".chainforge", "config.yaml")); err != nil {
		t.Fatalf("config not written: %v", err)
	}
}
