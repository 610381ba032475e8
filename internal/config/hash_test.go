package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteChecksumsRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "pipebot.yaml")
	if err := os.WriteFile(path, []byte("service:\n  name: test\n"), 0600); err != nil {
		t.Fatal(err)
	}

	manifest, err := WriteChecksums(path)
	if err != nil {
		t.Fatalf("WriteChecksums() failed: %v", err)
	}
	if manifest.Hashes["pipebot.yaml"] == "" {
		t.Fatal("expected hash for pipebot.yaml")
	}

	loaded, err := LoadChecksums(tmpDir)
	if err != nil {
		t.Fatalf("LoadChecksums() failed: %v", err)
	}
	if loaded.Hashes["pipebot.yaml"] != manifest.Hashes["pipebot.yaml"] {
		t.Errorf("loaded hash = %q, want %q", loaded.Hashes["pipebot.yaml"], manifest.Hashes["pipebot.yaml"])
	}

	if err := verifyConfigHash(path); err != nil {
		t.Errorf("verifyConfigHash() failed on untouched file: %v", err)
	}
}

func TestWriteChecksumsPreservesOtherEntries(t *testing.T) {
	tmpDir := t.TempDir()
	a := filepath.Join(tmpDir, "a.yaml")
	b := filepath.Join(tmpDir, "b.yaml")
	for _, p := range []string{a, b} {
		if err := os.WriteFile(p, []byte("x: 1\n"), 0600); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := WriteChecksums(a); err != nil {
		t.Fatal(err)
	}
	manifest, err := WriteChecksums(b)
	if err != nil {
		t.Fatal(err)
	}
	if len(manifest.Hashes) != 2 {
		t.Fatalf("len(manifest.Hashes) = %d, want 2", len(manifest.Hashes))
	}
}

func TestVerifyConfigHashDetectsTampering(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "pipebot.yaml")
	if err := os.WriteFile(path, []byte("a: 1\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := WriteChecksums(path); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("a: 2\n"), 0600); err != nil {
		t.Fatal(err)
	}

	err := verifyConfigHash(path)
	if err == nil {
		t.Fatal("expected verification failure after modification")
	}
	if !strings.Contains(err.Error(), "hash mismatch") {
		t.Errorf("error = %v, want hash mismatch", err)
	}
}

func TestVerifyConfigHashWithoutManifest(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "pipebot.yaml")
	if err := os.WriteFile(path, []byte("a: 1\n"), 0600); err != nil {
		t.Fatal(err)
	}

	if err := verifyConfigHash(path); err != nil {
		t.Errorf("verifyConfigHash() without manifest = %v, want nil", err)
	}
}

func TestVerifyConfigHashUnlistedFile(t *testing.T) {
	tmpDir := t.TempDir()
	listed := filepath.Join(tmpDir, "listed.yaml")
	unlisted := filepath.Join(tmpDir, "unlisted.yaml")
	for _, p := range []string{listed, unlisted} {
		if err := os.WriteFile(p, []byte("a: 1\n"), 0600); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := WriteChecksums(listed); err != nil {
		t.Fatal(err)
	}

	if err := verifyConfigHash(unlisted); err == nil {
		t.Fatal("expected error for file missing from manifest")
	}
}

func TestLoadChecksumsRejectsUnknownVersion(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, ChecksumFile), []byte("version: 7\nhashes: {}\n"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadChecksums(tmpDir); err == nil {
		t.Fatal("expected error for unsupported version")
	}
}
