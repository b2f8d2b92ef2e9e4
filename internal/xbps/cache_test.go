package xbps

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCachedPackageName(t *testing.T) {
	tests := []struct {
		filename string
		want     string
		wantOK   bool
	}{
		{"gtk4-devel-1.2.3_1.x86_64.xbps", "gtk4-devel", true},
		{"NetworkManager-1.50.0_1.x86_64.xbps", "NetworkManager", true},
		{"AppStream-1.0.4_2.x86_64.xbps", "AppStream", true},
		{"rust-1.75.0_1.x86_64.xbps", "rust", true},
		{"some-package-with-dashes-1.0.0_1.noarch.xbps", "some-package-with-dashes", true},
		{"foo-1.0_1.x86_64.xbps.sig2", "", false},
		{"noversion.x86_64.xbps", "", false},
	}
	for _, tt := range tests {
		got, ok := CachedPackageName(tt.filename)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("CachedPackageName(%q) = (%q, %v), want (%q, %v)", tt.filename, got, ok, tt.want, tt.wantOK)
		}
	}
}

// writeCache creates package files in dir, each one hour older than the
// one before it.
func writeCache(t *testing.T, dir string, names ...string) {
	t.Helper()
	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	for i, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(strings.Repeat("x", 1024)), 0644); err != nil {
			t.Fatal(err)
		}
		mtime := base.Add(-time.Duration(i) * time.Hour)
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSelectObsoleteKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	writeCache(t, dir,
		"foo-1.2_1.x86_64.xbps",
		"foo-1.1_1.x86_64.xbps",
		"foo-1.0_1.x86_64.xbps",
		"bar-2.0_1.noarch.xbps",
		"foo-1.2_1.x86_64.xbps.sig2",
	)

	files, err := ListCachedPackages(dir)
	if err != nil {
		t.Fatalf("ListCachedPackages() error: %v", err)
	}
	if len(files) != 4 {
		t.Fatalf("listed %d files, want 4", len(files))
	}

	obsolete := SelectObsolete(files, 2)
	if len(obsolete) != 1 || filepath.Base(obsolete[0].Path) != "foo-1.0_1.x86_64.xbps" {
		t.Errorf("SelectObsolete(keep 2) = %+v", obsolete)
	}
	if got := SelectObsolete(files, 0); len(got) != 2 {
		t.Errorf("SelectObsolete(keep 0) removed %d files, want 2 (keep at least one)", len(got))
	}
}

func TestListCachedPackagesMissingDir(t *testing.T) {
	files, err := ListCachedPackages(filepath.Join(t.TempDir(), "absent"))
	if err != nil || files != nil {
		t.Errorf("ListCachedPackages(missing) = %v, %v", files, err)
	}
}

func TestClient_CleanCache(t *testing.T) {
	dir := t.TempDir()
	writeCache(t, dir, "foo-1.1_1.x86_64.xbps", "foo-1.0_1.x86_64.xbps")

	fr := newFakeRunner()
	fr.on("pgrep -x xbps-install|xbps-remove|xbps-pkgdb", CommandResult{ExitCode: 1})
	fr.on("pkexec rm -f "+filepath.Join(dir, "foo-1.0_1.x86_64.xbps"), CommandResult{})
	tools := DefaultTools()
	tools.PackageCache = dir
	tools.CacheKeep = 1
	c := NewClient(tools, fr)

	result, err := c.CleanCache(context.Background())
	if err != nil {
		t.Fatalf("CleanCache() error: %v", err)
	}
	if !result.Success() || !strings.Contains(result.Stdout, "Removed 1 cached package file, freed 1.0 KiB.") {
		t.Errorf("result = %+v", result)
	}
}

func TestClient_CleanCacheNothingToDo(t *testing.T) {
	dir := t.TempDir()
	writeCache(t, dir, "foo-1.1_1.x86_64.xbps")

	fr := newFakeRunner()
	fr.on("pgrep -x xbps-install|xbps-remove|xbps-pkgdb", CommandResult{ExitCode: 1})
	tools := DefaultTools()
	tools.PackageCache = dir
	c := NewClient(tools, fr)

	result, err := c.CleanCache(context.Background())
	if err != nil || !strings.Contains(result.Stdout, "No obsolete packages") {
		t.Errorf("CleanCache() = %+v, %v", result, err)
	}
	for _, call := range fr.calls {
		if strings.Contains(call, "rm") {
			t.Errorf("unexpected removal: %s", call)
		}
	}
}

func TestClient_CleanCacheLocked(t *testing.T) {
	fr := newFakeRunner()
	fr.on("pgrep -x xbps-install|xbps-remove|xbps-pkgdb", CommandResult{Stdout: "4242\n"})
	c := NewClient(DefaultTools(), fr)

	if _, err := c.CleanCache(context.Background()); !errors.Is(err, ErrCacheLocked) {
		t.Errorf("CleanCache() error = %v, want ErrCacheLocked", err)
	}
}

func TestClient_CleanCacheRemoveFailure(t *testing.T) {
	dir := t.TempDir()
	writeCache(t, dir, "foo-1.1_1.x86_64.xbps", "foo-1.0_1.x86_64.xbps")

	fr := newFakeRunner()
	fr.on("pgrep -x xbps-install|xbps-remove|xbps-pkgdb", CommandResult{ExitCode: 1})
	fr.on("pkexec rm -f "+filepath.Join(dir, "foo-1.0_1.x86_64.xbps"), CommandResult{ExitCode: 126, Stderr: "Not authorized"})
	tools := DefaultTools()
	tools.PackageCache = dir
	tools.CacheKeep = 1
	c := NewClient(tools, fr)

	result, err := c.CleanCache(context.Background())
	if err != nil {
		t.Fatalf("CleanCache() error: %v", err)
	}
	if result.ExitCode != 126 || result.Stderr != "Not authorized" {
		t.Errorf("result = %+v", result)
	}
}
