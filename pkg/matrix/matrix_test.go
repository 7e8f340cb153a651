package matrix

import (
	"os"
	"path/filepath"
	"testing"
)

const jsonDoc = `{
  "AR-PACKAGES": [
    {
      "ELEMENTS": [
        {
          "SOMEIP-SERVICE-INTERFACE": {
            "SHORT-NAME": "EngineService",
            "SOMEIP-SERVICE-ID": "0x1234",
            "METHODS": [
              {"SHORT-NAME": "StartEngine", "SOMEIP-METHOD-ID": "0x0001"}
            ],
            "FIELDS": [
              {"SHORT-NAME": "RPM", "SOMEIP-FIELD-ID": "0x0010"}
            ]
          }
        }
      ],
      "SUB-PACKAGES": []
    }
  ]
}`

func TestLoadJSONMatrix(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "matrix.json")
	if err := os.WriteFile(path, []byte(jsonDoc), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := m.ServiceName(0x1234); got != "EngineService" {
		t.Fatalf("ServiceName = %q", got)
	}
	if got := m.MethodName(0x1234, 0x0001); got != "StartEngine" {
		t.Fatalf("MethodName = %q", got)
	}
	if got := m.MethodName(0x1234, 0x0010); got != "RPM_GET" {
		t.Fatalf("field GET name = %q", got)
	}
	if got := m.MethodName(0x1234, 0x0010|fieldSetBit); got != "RPM_SET" {
		t.Fatalf("field SET name = %q", got)
	}
	if got := m.MethodName(0x1234, 0x0010|fieldNotifierBit); got != "RPM_NOTIFIER" {
		t.Fatalf("field NOTIFIER name = %q", got)
	}
	if got := m.ServiceName(0x9999); got != "0x9999" {
		t.Fatalf("unmapped service should fall back to hex, got %q", got)
	}
}

func TestLoadUnrecognizedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "matrix.txt")
	os.WriteFile(path, []byte("irrelevant"), 0o644)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unrecognized extension")
	}
}
