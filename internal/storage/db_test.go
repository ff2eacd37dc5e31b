package storage

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// testBackend runs the shared test suite against a Backend implementation.
func testBackend(t *testing.T, db Backend) {
	t.Helper()

	if err := db.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	t.Run("SetAndGet", func(t *testing.T) {
		if err := db.Set("key1", "value1"); err != nil {
			t.Fatalf("Set() error: %v", err)
		}

		val, ok, err := db.Get("key1")
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if !ok || val != "value1" {
			t.Errorf("Get() = %q, %v, want %q, true", val, ok, "value1")
		}
	})

	t.Run("GetNonexistent", func(t *testing.T) {
		_, ok, err := db.Get("nonexistent")
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if ok {
			t.Error("Get() for missing key should report absent")
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		db.Set("ow", "first")
		db.Set("ow", "second")

		val, _, err := db.Get("ow")
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if val != "second" {
			t.Errorf("Get() after overwrite = %q, want %q", val, "second")
		}
	})

	t.Run("EmptyValue", func(t *testing.T) {
		if err := db.Set("empty", ""); err != nil {
			t.Fatalf("Set() empty value error: %v", err)
		}
		val, ok, err := db.Get("empty")
		if err != nil {
			t.Fatalf("Get() empty value error: %v", err)
		}
		if !ok || val != "" {
			t.Errorf("Get() = %q, %v, want empty present value", val, ok)
		}
	})

	t.Run("Keys", func(t *testing.T) {
		db.Set("alice@@count", "1")
		db.Set("bob@@count", "2")

		keys, err := db.Keys()
		if err != nil {
			t.Fatalf("Keys() error: %v", err)
		}
		var counts []string
		for _, k := range keys {
			if strings.HasSuffix(k, "@@count") {
				counts = append(counts, k)
			}
		}
		sort.Strings(counts)
		if len(counts) != 2 || counts[0] != "alice@@count" || counts[1] != "bob@@count" {
			t.Errorf("count keys = %v", counts)
		}
	})

	t.Run("Commit", func(t *testing.T) {
		c, ok := db.(Committer)
		if !ok {
			t.Skip("backend does not implement Committer")
		}
		err := c.Commit(map[string]string{"c1": "x", "c2": "y", "ow": "third"})
		if err != nil {
			t.Fatalf("Commit() error: %v", err)
		}
		for k, want := range map[string]string{"c1": "x", "c2": "y", "ow": "third"} {
			if got, _, _ := db.Get(k); got != want {
				t.Errorf("Get(%q) after commit = %q, want %q", k, got, want)
			}
		}
	})

	t.Run("Flush", func(t *testing.T) {
		if err := db.Flush(); err != nil {
			t.Errorf("Flush() error: %v", err)
		}
	})
}

func TestMemoryBackend(t *testing.T) {
	db := NewMemory()
	defer db.Close()
	testBackend(t, db)
}

func TestMemoryBackend_Closed(t *testing.T) {
	db := NewMemory()
	db.Close()
	if err := db.Set("k", "v"); err != ErrClosed {
		t.Errorf("Set() after Close = %v, want ErrClosed", err)
	}
}

func TestFileBackend(t *testing.T) {
	db := NewFile(t.TempDir())
	defer db.Close()
	testBackend(t, db)
}

func TestBadgerBackend(t *testing.T) {
	dir := t.TempDir()
	db, err := NewBadger(dir)
	if err != nil {
		t.Fatalf("NewBadger() error: %v", err)
	}
	defer db.Close()
	testBackend(t, db)
}

func TestBadgerBackend_Persistence(t *testing.T) {
	dir := t.TempDir()

	// Write data.
	db1, err := NewBadger(dir)
	if err != nil {
		t.Fatalf("NewBadger() error: %v", err)
	}
	db1.Set("persist", "data")
	db1.Close()

	// Reopen and read.
	db2, err := NewBadger(dir)
	if err != nil {
		t.Fatalf("NewBadger() reopen error: %v", err)
	}
	defer db2.Close()

	val, ok, err := db2.Get("persist")
	if err != nil {
		t.Fatalf("Get() after reopen error: %v", err)
	}
	if !ok || val != "data" {
		t.Errorf("persisted value = %q, want %q", val, "data")
	}
}

func TestFileBackend_Persistence(t *testing.T) {
	dir := t.TempDir()

	db1 := NewFile(dir)
	if err := db1.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	db1.Set(CountKey("alice"), "3")
	db1.Set(BalanceKey("alice"), "0xde0b6b3a7640000")
	db1.Close()

	db2 := NewFile(dir)
	if err := db2.Initialize(); err != nil {
		t.Fatalf("Initialize() reopen error: %v", err)
	}
	defer db2.Close()
	if v, _, _ := db2.Get(CountKey("alice")); v != "3" {
		t.Errorf("count after reopen = %q, want 3", v)
	}
	if v, _, _ := db2.Get(BalanceKey("alice")); v != "0xde0b6b3a7640000" {
		t.Errorf("balance after reopen = %q", v)
	}
}

func TestFileBackend_ExclusiveLock(t *testing.T) {
	dir := t.TempDir()

	daemon := NewFile(dir)
	if err := daemon.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	if err := daemon.Set(CountKey("alice"), "1"); err != nil {
		t.Fatal(err)
	}

	cli := NewFile(dir)
	if err := cli.Initialize(); !errors.Is(err, ErrLocked) {
		t.Fatalf("second Initialize() = %v, want ErrLocked", err)
	}
	if err := cli.Set(CountKey("alice"), "2"); err == nil {
		t.Fatal("Set() on an unlocked backend succeeded")
	}

	if err := daemon.Commit(map[string]string{BlockKey: "101"}); err != nil {
		t.Fatal(err)
	}
	daemon.Close()

	// Once released, the next opener sees everything the holder wrote.
	if err := cli.Initialize(); err != nil {
		t.Fatalf("Initialize() after Close error: %v", err)
	}
	defer cli.Close()
	if v, _, _ := cli.Get(CountKey("alice")); v != "1" {
		t.Errorf("count = %q, want 1", v)
	}
	if v, _, _ := cli.Get(BlockKey); v != "101" {
		t.Errorf("block = %q, want 101", v)
	}
}

func TestFileBackend_MalformedReleasesLock(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, FileName), []byte("{not json"), 0600)

	if err := NewFile(dir).Initialize(); err == nil || errors.Is(err, ErrLocked) {
		t.Fatalf("Initialize() = %v, want parse error", err)
	}
	os.WriteFile(filepath.Join(dir, FileName), []byte("{}"), 0600)
	db := NewFile(dir)
	if err := db.Initialize(); err != nil {
		t.Fatalf("Initialize() after failed open = %v", err)
	}
	db.Close()
}

func TestFileBackend_NumericValues(t *testing.T) {
	dir := t.TempDir()
	doc := `{"alice@@count": 2, "@@block": 17000000, "alice@@balance": "0x10"}`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(doc), 0600); err != nil {
		t.Fatal(err)
	}

	db := NewFile(dir)
	if err := db.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	if v, _, _ := db.Get("alice@@count"); v != "2" {
		t.Errorf("count = %q, want 2", v)
	}
	if v, _, _ := db.Get(BlockKey); v != "17000000" {
		t.Errorf("block = %q, want 17000000", v)
	}
}

func TestFileBackend_Malformed(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, FileName), []byte("{not json"), 0600)

	db := NewFile(dir)
	if err := db.Initialize(); err == nil {
		t.Error("Initialize() should fail on malformed document")
	}
}

func TestFileBackend_FilePermissions(t *testing.T) {
	db := NewFile(t.TempDir())
	db.Initialize()
	db.Set("k", "v")

	info, err := os.Stat(db.Path())
	if err != nil {
		t.Fatalf("Stat() error: %v", err)
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		t.Errorf("db file should be 0600, got %o", perm)
	}
}

func TestFileBackend_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "monterrey")
	db := NewFile(dir)
	if err := db.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	if err := db.Set("k", "v"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, FileName)); err != nil {
		t.Errorf("db file not created: %v", err)
	}
}

func TestKeys(t *testing.T) {
	if CountKey("alice") != "alice@@count" {
		t.Errorf("CountKey = %q", CountKey("alice"))
	}
	if BalanceKey("alice") != "alice@@balance" {
		t.Errorf("BalanceKey = %q", BalanceKey("alice"))
	}
	acct, ok := AccountFromCountKey("user@example.com@@count")
	if !ok || acct != "user@example.com" {
		t.Errorf("AccountFromCountKey = %q, %v", acct, ok)
	}
	if _, ok := AccountFromCountKey("alice@@balance"); ok {
		t.Error("balance key should not parse as count key")
	}
	if _, ok := AccountFromCountKey(BlockKey); ok {
		t.Error("block key should not parse as count key")
	}
}
