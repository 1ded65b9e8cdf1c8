package template

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"overture/internal/directive"
)

func TestBuiltinsParse(t *testing.T) {
	store := NewStore(nil)
	for _, tmpl := range store.List() {
		directives, err := store.Expand(tmpl.Name, map[string]string{
			"app_name": "calculator",
			"port":     "8000",
		})
		if err != nil {
			t.Fatalf("expand %s: %v", tmpl.Name, err)
		}
		if _, err := directive.ParseAll(directives); err != nil {
			t.Fatalf("builtin %s does not parse: %v", tmpl.Name, err)
		}
	}
}

func TestExpandSubstitutesPlaceholders(t *testing.T) {
	store := NewStore(nil)
	directives, err := store.Expand("textual_dev", map[string]string{
		"app_name": "file_browser",
		"port":     "9001",
	})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if directives[0] != "APP#green=textual serve file_browser.py --port 9001" {
		t.Fatalf("unexpected expansion: %q", directives[0])
	}
}

func TestExpandUsesDefaults(t *testing.T) {
	store := NewStore(nil)
	directives, err := store.Expand("textual_dev", map[string]string{"app_name": "calculator"})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if directives[0] != "APP#green=textual serve calculator.py --port 8000" {
		t.Fatalf("default not applied: %q", directives[0])
	}
}

func TestExpandMissingSubstitution(t *testing.T) {
	store := NewStore(nil)
	_, err := store.Expand("textual_dev", nil)
	var missing *MissingSubstitutionError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSubstitutionError, got %v", err)
	}
	if missing.Key != "app_name" {
		t.Fatalf("expected app_name missing, got %q", missing.Key)
	}
}

func TestExpandUnknownTemplate(t *testing.T) {
	store := NewStore(nil)
	_, err := store.Expand("nope", nil)
	var unknown *UnknownTemplateError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownTemplateError, got %v", err)
	}
}

func writeTemplateFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}
}

func TestLoadDirMergesAndShadows(t *testing.T) {
	dir := t.TempDir()
	writeTemplateFile(t, dir, "smoke.yaml", "name: smoke\ndirectives:\n  - \"A=echo {word}\"\n")
	writeTemplateFile(t, dir, "full_stack.yaml", "directives:\n  - \"ONLY=echo shadowed\"\n")
	writeTemplateFile(t, dir, "broken.yaml", "directives: {not a list\n")
	writeTemplateFile(t, dir, "notes.txt", "ignored")

	store := NewStore(nil)
	if err := store.LoadDir(dir); err != nil {
		t.Fatalf("load: %v", err)
	}

	directives, err := store.Expand("smoke", map[string]string{"word": "hi"})
	if err != nil || directives[0] != "A=echo hi" {
		t.Fatalf("file template not loaded: %v %v", directives, err)
	}

	// File template with the builtin's name wins; name defaults to the
	// file stem.
	shadowed, ok := store.Get("full_stack")
	if !ok || shadowed.Builtin || len(shadowed.Directives) != 1 {
		t.Fatalf("expected file template to shadow builtin, got %+v", shadowed)
	}

	if _, ok := store.Get("broken"); ok {
		t.Fatalf("broken file must be skipped")
	}
}

func TestLoadDirMissingIsNoop(t *testing.T) {
	store := NewStore(nil)
	if err := store.LoadDir(filepath.Join(t.TempDir(), "missing")); err != nil {
		t.Fatalf("missing dir: %v", err)
	}
	if len(store.List()) != 4 {
		t.Fatalf("builtins lost: %v", store.List())
	}
}

func TestWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.Watch(ctx, dir); err != nil {
		t.Fatalf("watch: %v", err)
	}

	writeTemplateFile(t, dir, "live.yaml", "directives:\n  - \"A=echo live\"\n")

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := store.Get("live"); ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("template never reloaded")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
