package config

import (
	"os"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Defaults.SprintDays != 10 || cfg.Defaults.Initiative != "General" {
		t.Fatalf("unexpected defaults %+v", cfg.Defaults)
	}
	if cfg.Events.SubjectPrefix != "hutracker" || cfg.Server.Addr == "" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestFromYAMLKeepsDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("calendar:\n  timezone: UTC\nwebhooks:\n  - url: https://example.com/hook\n    events: [item.created]\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "UTC" {
		t.Fatalf("unexpected location %v %v", loc, err)
	}
	if cfg.Defaults.SprintDays != 10 {
		t.Fatalf("unset values must keep defaults, got %d", cfg.Defaults.SprintDays)
	}
	if len(cfg.Webhooks) != 1 || !cfg.Webhooks[0].IsEnabled() {
		t.Fatalf("unexpected webhooks %+v", cfg.Webhooks)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"timezone", "calendar:\n  timezone: Mars/Olympus\n", "timezone"},
		{"sprint days", "defaults:\n  sprint_days: -1\n", "sprint_days"},
		{"level", "logging:\n  level: loud\n", "logging.level"},
		{"s3 key", "export:\n  s3:\n    bucket: b\n    key: \"\"\n", "s3.key"},
		{"webhook url", "webhooks:\n  - url: ftp://x\n", "http(s)"},
		{"webhook event", "webhooks:\n  - url: http://x\n    events: [\"\"]\n", "empty event"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromYAML([]byte(tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestWriteDefaultAndLoad(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected missing config error")
	}
	cfg, err := LoadOptional(dir)
	if err != nil || cfg.Defaults.SprintDays != 10 {
		t.Fatalf("optional load should return defaults, got %+v %v", cfg, err)
	}
	path, created, err := WriteDefault(dir)
	if err != nil || !created {
		t.Fatalf("write default: %v %v", created, err)
	}
	if _, created, _ := WriteDefault(dir); created {
		t.Fatalf("existing config must not be overwritten")
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != GenerateDefault() {
		t.Fatalf("unexpected file content")
	}
	if _, err := Load(dir); err != nil {
		t.Fatalf("load: %v", err)
	}
}
