package main

import (
	"os"
	"path/filepath"
	"testing"
)

func run(t *testing.T, dataDir string, args ...string) error {
	t.Helper()
	root := newRootCmd()
	base := []string{"--datadir", dataDir, "--salt", "s", "--backend", "file", "--log-level", "error"}
	root.SetArgs(append(args, base...))
	return root.Execute()
}

func TestGenerateAndOwner(t *testing.T) {
	dir := t.TempDir()
	if err := run(t, dir, "generate", "--account", "alice"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	// Allocation survives the process: a new invocation finds the owner.
	if err := run(t, dir, "owner", "0x7f76d524acdcb75087190fabe9c45ff1744433df"); err != nil {
		t.Fatalf("owner: %v", err)
	}
	if err := run(t, dir, "owner", "0x484daa2e49b3e6924e5b348f3e18949afa4ae1a5"); err == nil {
		t.Fatal("owner of unallocated index 1 should fail")
	}
}

func TestGenerateAtDoesNotAllocate(t *testing.T) {
	dir := t.TempDir()
	if err := run(t, dir, "generate", "--account", "alice", "--index", "1"); err != nil {
		t.Fatalf("generate --index: %v", err)
	}
	if err := run(t, dir, "owner", "0x484daa2e49b3e6924e5b348f3e18949afa4ae1a5"); err == nil {
		t.Fatal("derived-only wallet must not be allocated")
	}
}

func TestCreditDebit(t *testing.T) {
	dir := t.TempDir()
	if err := run(t, dir, "credit", "--account", "bob", "--amount", "1e18"); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := run(t, dir, "debit", "--account", "bob", "--amount", "400000000000000000"); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if err := run(t, dir, "debit", "--account", "bob", "--amount", "1e18"); err == nil {
		t.Fatal("overdraft debit should fail")
	}
	if err := run(t, dir, "balance", "--account", "bob"); err != nil {
		t.Fatalf("balance: %v", err)
	}
	if err := run(t, dir, "credit", "--account", "bob", "--amount", "-1"); err == nil {
		t.Fatal("negative credit should fail")
	}
}

func TestRequiresSalt(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"accounts", "--datadir", t.TempDir(), "--backend", "memory"})
	if err := root.Execute(); err == nil {
		t.Fatal("expected error without salt")
	}
}

func TestInit(t *testing.T) {
	dir := t.TempDir()
	root := newRootCmd()
	root.SetArgs([]string{"init", "--datadir", dir})
	if err := root.Execute(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "monterrey.yaml")); err != nil {
		t.Fatalf("config not written: %v", err)
	}

	root = newRootCmd()
	root.SetArgs([]string{"init", "--datadir", dir})
	if err := root.Execute(); err == nil {
		t.Fatal("init should not overwrite an existing config")
	}
}
