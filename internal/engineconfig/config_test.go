package engineconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/brettsam/offlinesync/internal/syncengine"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := DefaultConfig()
	if cfg.CallbackConcurrency != want.CallbackConcurrency ||
		cfg.MinSupportedProtocolVersion != want.MinSupportedProtocolVersion ||
		len(cfg.DefaultSystemProperties) != len(want.DefaultSystemProperties) {
		t.Fatalf("cfg = %+v, want defaults %+v", cfg, want)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MinSupportedProtocolVersion != syncengine.MinSupportedProtocolVersion {
		t.Fatalf("MinSupportedProtocolVersion = %q", cfg.MinSupportedProtocolVersion)
	}
}

func TestLoadParsesTOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.toml")
	contents := `
callback_concurrency = 8
min_supported_protocol_version = "2.0.0"
default_system_properties = ["version", "updatedAt"]
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CallbackConcurrency != 8 {
		t.Fatalf("CallbackConcurrency = %d, want 8", cfg.CallbackConcurrency)
	}
	if cfg.MinSupportedProtocolVersion != "2.0.0" {
		t.Fatalf("MinSupportedProtocolVersion = %q", cfg.MinSupportedProtocolVersion)
	}

	props := cfg.SystemProperties()
	if !props.Has(syncengine.SystemPropertyVersion) || !props.Has(syncengine.SystemPropertyUpdatedAt) {
		t.Fatalf("SystemProperties() = %v, want version+updatedAt", props)
	}
	if props.Has(syncengine.SystemPropertyDeleted) {
		t.Fatalf("SystemProperties() = %v, did not expect deleted", props)
	}
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(path, []byte("not = [valid"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error decoding malformed TOML")
	}
}
