package main

import (
	"testing"

	"github.com/banshee-data/parking.report/internal/config"
)

// TestFlagDefaults verifies that overriding flags default to empty so config
// values win unless a flag is given.
func TestFlagDefaults(t *testing.T) {
	for name, f := range map[string]*string{
		"config":   configFile,
		"spaces":   spacesPath,
		"status":   statusPath,
		"db":       dbPath,
		"detector": detectorSource,
		"listen":   listen,
	} {
		if f == nil {
			t.Fatalf("%s flag not defined", name)
		}
		if *f != "" {
			t.Errorf("expected %s default to be empty, got %q", name, *f)
		}
	}
	if *debugLog {
		t.Error("expected debug default to be false")
	}
	if *versionFlag {
		t.Error("expected version default to be false")
	}
}

func TestApplyOverrides(t *testing.T) {
	defer func(old string) { *dbPath = old }(*dbPath)
	defer func(old string) { *listen = old }(*listen)
	*dbPath = "/var/lib/parking/sessions.db"
	*listen = listenOff

	cfg := &config.Config{}
	applyOverrides(cfg)

	if got := cfg.GetDBPath(); got != "/var/lib/parking/sessions.db" {
		t.Errorf("db path = %q", got)
	}
	if got := cfg.GetListen(); got != listenOff {
		t.Errorf("listen = %q", got)
	}
	// Untouched flags leave the defaults in place.
	if got := cfg.GetSpacesPath(); got != "spaces.json" {
		t.Errorf("spaces path = %q, want default", got)
	}
}
