package main

import (
	"testing"
	"time"
)

func TestParseGlobalFlags(t *testing.T) {
	flags, args, err := parseGlobalFlags([]string{"--json", "--timeout", "45s", "run", "flow.json"})
	if err != nil {
		t.Fatalf("parseGlobalFlags: %v", err)
	}
	if !flags.JSON {
		t.Error("expected JSON flag set")
	}
	if flags.Timeout != 45*time.Second {
		t.Errorf("timeout = %v, want 45s", flags.Timeout)
	}
	if len(args) != 2 || args[0] != "run" || args[1] != "flow.json" {
		t.Errorf("unexpected remaining args: %v", args)
	}
}

func TestParseGlobalFlagsEquals(t *testing.T) {
	flags, args, err := parseGlobalFlags([]string{"--config=custom.yaml", "plan", "flow.yaml"})
	if err != nil {
		t.Fatalf("parseGlobalFlags: %v", err)
	}
	if flags.ConfigPath != "custom.yaml" {
		t.Errorf("config path = %q, want custom.yaml", flags.ConfigPath)
	}
	if len(args) != 2 {
		t.Errorf("unexpected remaining args: %v", args)
	}
}

func TestParseGlobalFlagsErrors(t *testing.T) {
	cases := [][]string{
		{"--timeout"},
		{"--timeout", "not-a-duration"},
		{"--config"},
		{"--bogus"},
	}
	for _, args := range cases {
		if _, _, err := parseGlobalFlags(args); err == nil {
			t.Errorf("parseGlobalFlags(%v) did not fail", args)
		}
	}
}

func TestNormalizeCell(t *testing.T) {
	cases := map[string]string{
		"":              "-",
		"  ":            "-",
		"one  two":      "one two",
		" padded\tcol ": "padded col",
	}
	for input, want := range cases {
		if got := normalizeCell(input); got != want {
			t.Errorf("normalizeCell(%q) = %q, want %q", input, got, want)
		}
	}
}
