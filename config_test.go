// config_test.go: size/duration string parsing and path helpers
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package rtslog

import "testing"

func TestParseSize(t *testing.T) {
	cases := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"100", 100, false},
		{"1KB", 1024, false},
		{"2MB", 2 * 1024 * 1024, false},
		{"1GB", 1024 * 1024 * 1024, false},
		{"3T", 3 * 1024 * 1024 * 1024 * 1024, false},
		{"", 0, true},
		{"5XB", 0, true},
	}
	for _, c := range cases {
		got, err := ParseSize(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseSize(%q): expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSize(%q): unexpected error %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseSize(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParseDuration(t *testing.T) {
	cases := []struct {
		in      string
		wantErr bool
	}{
		{"24h", false},
		{"7d", false},
		{"2w", false},
		{"1y", false},
		{"", true},
		{"5zz", true},
	}
	for _, c := range cases {
		_, err := ParseDuration(c.in)
		if c.wantErr != (err != nil) {
			t.Errorf("ParseDuration(%q): err=%v, wantErr=%v", c.in, err, c.wantErr)
		}
	}
}

func TestConfigOutputPath(t *testing.T) {
	c := &Config{ProgName: "myapp"}
	if got := c.outputPath(); got != "myapp.eventlog" {
		t.Errorf("outputPath() = %q, want myapp.eventlog", got)
	}

	c.PID = 42
	if got := c.outputPath(); got != "myapp.42.eventlog" {
		t.Errorf("outputPath() with PID = %q, want myapp.42.eventlog", got)
	}
}

func TestApplyDefaults(t *testing.T) {
	c := &Config{ProgName: "app"}
	if err := c.applyDefaults(); err != nil {
		t.Fatalf("applyDefaults: %v", err)
	}
	if c.BufferSize != DefaultBufferCapacity {
		t.Errorf("BufferSize default = %d, want %d", c.BufferSize, DefaultBufferCapacity)
	}
	if c.Clock == nil || c.WallClock == nil {
		t.Errorf("expected default Clock/WallClock to be populated")
	}
	if wc, ok := c.WallClock.(*cachedWallClockHandle); ok {
		wc.Stop()
	}
	if c.RetryCount != 3 {
		t.Errorf("RetryCount default = %d, want 3", c.RetryCount)
	}
}
