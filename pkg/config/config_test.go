package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseDefaultsAndValidation(t *testing.T) {
	dir := t.TempDir()
	pcap := filepath.Join(dir, "capture.pcap")
	if err := os.WriteFile(pcap, []byte{0xd4, 0xc3, 0xb2, 0xa1}, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Parse([]string{"-p", pcap})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.SDPort != 30490 {
		t.Fatalf("SDPort = %d, want 30490", cfg.SDPort)
	}
	if cfg.OutputFormat != "text" {
		t.Fatalf("OutputFormat = %q, want text", cfg.OutputFormat)
	}
	if cfg.HasVLANFilter {
		t.Fatal("expected no vlan filter by default")
	}
}

func TestParseMissingPCAPFile(t *testing.T) {
	if _, err := Parse([]string{"-p", "/nonexistent/path.pcap"}); err == nil {
		t.Fatal("expected error for missing pcap file")
	}
}

func TestParseInvalidOutputFormat(t *testing.T) {
	dir := t.TempDir()
	pcap := filepath.Join(dir, "capture.pcap")
	os.WriteFile(pcap, []byte{0}, 0o644)

	if _, err := Parse([]string{"-p", pcap, "-o", "xml"}); err == nil {
		t.Fatal("expected error for unsupported output format")
	}
}

func TestParseVLANFilter(t *testing.T) {
	dir := t.TempDir()
	pcap := filepath.Join(dir, "capture.pcap")
	os.WriteFile(pcap, []byte{0}, 0o644)

	cfg, err := Parse([]string{"-p", pcap, "--vlan", "42"})
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.HasVLANFilter || cfg.VLANFilter != 42 {
		t.Fatalf("vlan filter = %v/%d", cfg.HasVLANFilter, cfg.VLANFilter)
	}
}
