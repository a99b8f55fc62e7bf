package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInitCommandWritesDefaultConfig(t *testing.T) {
	tmp := t.TempDir()
	configPath := filepath.Join(tmp, "ems.yaml")

	cmd := initCmd()
	cmd.SetArgs([]string{"--config", configPath})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute init: %v", err)
	}

	if _, err := os.Stat(configPath); err != nil {
		t.Fatalf("expected config file to be written: %v", err)
	}
}

func TestParseUintRejectsInvalidInput(t *testing.T) {
	if _, err := parseUint("not-a-number"); err == nil {
		t.Fatalf("expected error")
	}
	n, err := parseUint("1500")
	if err != nil || n != 1500 {
		t.Fatalf("expected 1500, got %d, %v", n, err)
	}
}
