package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "absent.yaml"), dir)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Fusion.Enabled || !cfg.Verify.Enabled {
		t.Error("defaults must enable fusion and verification")
	}
	if cfg.Verify.HardCasePath != cfg.Paths.HardCases {
		t.Errorf("hard case path = %q", cfg.Verify.HardCasePath)
	}
	if cfg.VoteGate.MinAgreementSamples == 0 {
		t.Error("vote gate defaults missing")
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prism.yaml")
	doc := `
logging:
  level: debug
fusion:
  cluster_iou: 0.4
  call_timeout_ms: 5000
  provider_enabled:
    gpt: false
verify:
  max_per_minute: 3
vote_gate:
  voting_enabled: false
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path, dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q", cfg.Logging.Level)
	}
	if cfg.Fusion.ClusterIoU != 0.4 || cfg.Fusion.CallTimeoutMs != 5000 {
		t.Errorf("fusion = %+v", cfg.Fusion)
	}
	if enabled, ok := cfg.Fusion.ProviderEnabled["gpt"]; !ok || enabled {
		t.Errorf("provider_enabled = %v", cfg.Fusion.ProviderEnabled)
	}
	if cfg.Verify.MaxPerMinute != 3 {
		t.Errorf("verify = %+v", cfg.Verify)
	}
	if cfg.VoteGate.VotingEnabled {
		t.Error("vote_gate override lost")
	}
	// Untouched sections keep their defaults.
	if cfg.PseudoLabel.AgreementThreshold == 0 {
		t.Error("pseudo_label defaults lost")
	}
}

func TestLoad_MalformedFileErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("fusion: ["), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path, dir); err == nil {
		t.Fatal("expected parse error")
	}
}
