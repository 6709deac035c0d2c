package mconfig

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveLoadBinaryConfiguration_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.bin")

	payload := []byte(`{"workers": 4, "mode": "test"}`)
	if err := SaveBinaryConfiguration(path, payload, 0); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := LoadBinaryConfiguration(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("round trip mismatch: got %q, want %q", got, payload)
	}
}

func TestSaveBinaryConfiguration_EmptyPath(t *testing.T) {
	if err := SaveBinaryConfiguration("", []byte("x"), 0); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestSaveBinaryConfiguration_HeaderBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.bin")
	if err := SaveBinaryConfiguration(path, []byte("abc"), 0); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if len(raw) < 6 {
		t.Fatalf("file too short: %d bytes", len(raw))
	}
	if raw[0] != 0x43 || raw[1] != 0x52 || raw[2] != 0x45 || raw[3] != 0x4D {
		t.Fatalf("expected little-endian MERC magic, got % x", raw[0:4])
	}
	if version := binary.LittleEndian.Uint16(raw[4:6]); version != 1 {
		t.Fatalf("expected version 1, got %d", version)
	}
}

func TestLoadBinaryConfiguration_BadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.bin")
	if err := os.WriteFile(path, make([]byte, 32), 0o644); err != nil {
		t.Fatalf("write bad file: %v", err)
	}
	if _, err := LoadBinaryConfiguration(path); err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestLoadBinaryConfiguration_ChecksumMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.bin")
	if err := SaveBinaryConfiguration(path, []byte("original"), 0); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	raw[blobHeaderSize] ^= 0xFF // flip a payload byte without updating the checksum
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	if _, err := LoadBinaryConfiguration(path); err == nil {
		t.Fatal("expected checksum mismatch error")
	}
}

func TestNewConfig_Defaults(t *testing.T) {
	c := NewConfig()
	if c.CacheIntensiveThreshold != DefaultCacheIntensiveThreshold {
		t.Fatalf("expected default cache threshold, got %v", c.CacheIntensiveThreshold)
	}
	if c.MemoryIntensiveThresholdMB != DefaultMemoryIntensiveThresholdMB {
		t.Fatalf("expected default memory threshold, got %v", c.MemoryIntensiveThresholdMB)
	}
	if c.Grade(95) != "A" || c.Grade(65) != "D" || c.Grade(10) != "F" {
		t.Fatalf("unexpected default grade mapping")
	}
}

func TestWithGradeThresholds_SortsDescending(t *testing.T) {
	c := NewConfig(WithGradeThresholds([]GradeBand{
		{MinScore: 50, Label: "PASS"},
		{MinScore: 90, Label: "EXCELLENT"},
	}))
	if c.Grade(95) != "EXCELLENT" {
		t.Fatalf("expected EXCELLENT for 95, got %s", c.Grade(95))
	}
	if c.Grade(60) != "PASS" {
		t.Fatalf("expected PASS for 60, got %s", c.Grade(60))
	}
	if c.Grade(10) != "F" {
		t.Fatalf("expected F below every band, got %s", c.Grade(10))
	}
}

func TestWithCacheAndMemoryThresholds(t *testing.T) {
	c := NewConfig(
		WithCacheIntensiveThreshold(0.5),
		WithMemoryIntensiveThreshold(10),
	)
	if c.CacheIntensiveThreshold != 0.5 {
		t.Fatalf("expected 0.5, got %v", c.CacheIntensiveThreshold)
	}
	if c.MemoryIntensiveThresholdMB != 10 {
		t.Fatalf("expected 10, got %v", c.MemoryIntensiveThresholdMB)
	}
}
