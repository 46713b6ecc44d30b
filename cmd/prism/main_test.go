package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

// execute runs the root command in-process and returns its combined output.
func execute(t *testing.T, args ...string) string {
	t.Helper()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("execute %v: %v\n%s", args, err, buf.String())
	}
	return buf.String()
}

func TestFuse_PrintsCanonicalResult(t *testing.T) {
	dir := t.TempDir()
	out := execute(t, "fuse", "--dir", dir, "--image", "img://test")
	if !strings.Contains(out, "Agreement score:") {
		t.Errorf("missing agreement score in output:\n%s", out)
	}
	if !strings.Contains(out, "Acne") {
		t.Errorf("expected fused acne concern in output:\n%s", out)
	}
	// Provider outputs were recorded for the pseudo-label factory.
	if m, err := filepath.Glob(filepath.Join(dir, "artifacts", "*.ndjson")); err != nil || len(m) == 0 {
		t.Errorf("no artifacts recorded under %s/artifacts", dir)
	}
}

func TestVerify_PrintsVerdicts(t *testing.T) {
	dir := t.TempDir()
	out := execute(t, "verify", "--dir", dir, "--image", "img://test")
	if !strings.Contains(out, "Agreement score:") {
		t.Errorf("missing agreement score in output:\n%s", out)
	}
}

func TestGate_MissingTable(t *testing.T) {
	dir := t.TempDir()
	out := execute(t, "gate", "--dir", dir, "--type", "acne")
	if !strings.Contains(out, "Use verifier: false") {
		t.Errorf("missing table must not trust the verifier:\n%s", out)
	}
	if !strings.Contains(out, "Reliability Table Missing") {
		t.Errorf("expected named reason in output:\n%s", out)
	}
}

func TestStatus_EmptyDir(t *testing.T) {
	dir := t.TempDir()
	out := execute(t, "status", "--dir", dir)
	if !strings.Contains(out, "Model outputs:     0") {
		t.Errorf("expected zero counts in output:\n%s", out)
	}
	if !strings.Contains(out, "Calibration model:  none") {
		t.Errorf("expected missing model note in output:\n%s", out)
	}
}

func TestReliability_EmptyArtifacts(t *testing.T) {
	dir := t.TempDir()
	out := execute(t, "reliability", "--dir", dir)
	if !strings.Contains(out, "0 buckets") {
		t.Errorf("expected empty table summary:\n%s", out)
	}
}
