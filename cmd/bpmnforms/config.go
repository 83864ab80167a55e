package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rendis/bpmnforms/internal/graph"
	"github.com/rendis/bpmnforms/internal/scheduler"
)

// Config holds all bpmnforms configuration.
// Priority: flags > env vars > settings.json > defaults.
type Config struct {
	DBPath            string `json:"db_path"`
	LogLevel          string `json:"log_level"`
	LogJSON           bool   `json:"log_json"`
	ServiceName       string `json:"service_name"`
	Binding           string `json:"binding"`
	CatalogPath       string `json:"catalog_path"`
	FirstStepTemplate string `json:"first_step_template"`
	NextStepTemplate  string `json:"next_step_template"`
	PruneSchedule     string `json:"prune_schedule"`
	Retention         string `json:"retention"`
}

func defaultConfig() Config {
	return Config{
		DBPath:        filepath.Join(bpmnformsDir(), "bpmnforms.db"),
		LogLevel:      "info",
		Binding:       string(graph.BindingLinked),
		PruneSchedule: scheduler.DefaultSchedule,
		Retention:     "720h",
	}
}

func bpmnformsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bpmnforms"
	}
	return filepath.Join(home, ".bpmnforms")
}

func settingsPath() string {
	return filepath.Join(bpmnformsDir(), "settings.json")
}

// loadConfig layers settings.json (ignored when missing) and BPMNFORMS_*
// env vars over the defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	env := map[string]*string{
		"BPMNFORMS_DB_PATH":             &cfg.DBPath,
		"BPMNFORMS_LOG_LEVEL":           &cfg.LogLevel,
		"BPMNFORMS_SERVICE_NAME":        &cfg.ServiceName,
		"BPMNFORMS_BINDING":             &cfg.Binding,
		"BPMNFORMS_CATALOG":             &cfg.CatalogPath,
		"BPMNFORMS_FIRST_STEP_TEMPLATE": &cfg.FirstStepTemplate,
		"BPMNFORMS_NEXT_STEP_TEMPLATE":  &cfg.NextStepTemplate,
		"BPMNFORMS_PRUNE_SCHEDULE":      &cfg.PruneSchedule,
		"BPMNFORMS_RETENTION":           &cfg.Retention,
	}
	for key, dst := range env {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("BPMNFORMS_LOG_JSON"); v != "" {
		cfg.LogJSON = v == "true" || v == "1"
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch graph.BindingMode(c.Binding) {
	case graph.BindingLinked, graph.BindingKey:
	default:
		return fmt.Errorf("binding must be %q or %q, got %q", graph.BindingLinked, graph.BindingKey, c.Binding)
	}
	if _, err := c.retention(); err != nil {
		return err
	}
	return nil
}

// retention parses Retention. "30d" style day counts are accepted besides
// Go durations.
func (c Config) retention() (time.Duration, error) {
	if days, ok := strings.CutSuffix(c.Retention, "d"); ok {
		var n int
		if _, err := fmt.Sscanf(days, "%d", &n); err == nil && n > 0 {
			return time.Duration(n) * 24 * time.Hour, nil
		}
	}
	d, err := time.ParseDuration(c.Retention)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("retention must be a positive duration, got %q", c.Retention)
	}
	return d, nil
}
