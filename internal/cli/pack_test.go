package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gzhole/agentlock/internal/policy"
)

const cloudPack = `name: cloud-response
description: Cloud containment actions
version: "1.0"
author: soc
thresholds:
  trust: 0.9
disruptive_actions: [REVOKE_SESSION]
injection_markers: [disregard]
`

func writePack(t *testing.T, dir, file, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, file), []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestPackList(t *testing.T) {
	dir := t.TempDir()

	var buf bytes.Buffer
	if err := packList(&buf, dir, policy.DefaultPolicy()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No policy packs installed.") {
		t.Errorf("unexpected output for empty dir:\n%s", buf.String())
	}

	writePack(t, dir, "cloud-response.yaml", cloudPack)
	writePack(t, dir, "_strict.yaml", "name: strict\nthresholds:\n  burst_count: 2\n")
	writePack(t, dir, "broken.yaml", "name: [")

	buf.Reset()
	if err := packList(&buf, dir, policy.DefaultPolicy()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"cloud-response",
		"v1.0 by soc  (2 additions)",
		"strict",
		"invalid:",
		"Effective thresholds: trust 0.90, burst 4 in 1m0s",
		"REVOKE_SESSION",
		"disregard",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("list missing %q:\n%s", want, out)
		}
	}
}

func TestPackEnableDisable(t *testing.T) {
	dir := t.TempDir()
	writePack(t, dir, "cloud-response.yaml", cloudPack)
	var buf bytes.Buffer

	if err := packDisable(&buf, dir, "cloud-response"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "_cloud-response.yaml")); err != nil {
		t.Errorf("disabled pack should be renamed: %v", err)
	}
	if err := packDisable(&buf, dir, "cloud-response"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "already disabled") {
		t.Errorf("expected already-disabled notice:\n%s", buf.String())
	}

	if err := packEnable(&buf, dir, "cloud-response"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "cloud-response.yaml")); err != nil {
		t.Errorf("enabled pack should be renamed back: %v", err)
	}

	if err := packEnable(&buf, dir, "missing"); err == nil {
		t.Error("expected error for unknown pack")
	}
	if err := packDisable(&buf, dir, "missing"); err == nil {
		t.Error("expected error for unknown pack")
	}
}

func TestPackShow(t *testing.T) {
	dir := t.TempDir()
	writePack(t, dir, "_cloud-response.yaml", cloudPack)

	var buf bytes.Buffer
	if err := packShow(&buf, dir, "cloud-response"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "REVOKE_SESSION") {
		t.Errorf("show should print the pack file:\n%s", buf.String())
	}
	if err := packShow(&buf, dir, "nope"); err == nil {
		t.Error("expected error for unknown pack")
	}
}
