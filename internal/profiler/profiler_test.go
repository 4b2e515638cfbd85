package profiler

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestProfiler_Profile_NonexistentPath(t *testing.T) {
	p := New(NewCache(10, time.Hour), "robocopy", t.TempDir(), nil)

	_, err := p.Profile(context.Background(), `C:\does\not\exist`, false)
	if err == nil {
		t.Fatal("expected error for nonexistent path")
	}
}

func TestProfiler_Profile_PathIsAFile(t *testing.T) {
	dir := t.TempDir()
	filePath := dir + "/not-a-dir.txt"
	writeFixture(t, filePath, "x")

	p := New(NewCache(10, time.Hour), "robocopy", dir, nil)
	_, err := p.Profile(context.Background(), filePath, false)
	if err == nil {
		t.Fatal("expected error profiling a file path as a directory")
	}
}

func TestProfiler_ProfileMany_SequentialFallbackBelowThreshold(t *testing.T) {
	p := New(NewCache(10, time.Hour), "robocopy", t.TempDir(), nil)

	paths := []string{`C:\missing\one`, `C:\missing\two`}
	outcomes := p.ProfileMany(context.Background(), paths, false, 4)

	if len(outcomes) != len(paths) {
		t.Fatalf("want %d outcomes, got %d", len(paths), len(outcomes))
	}
	for i, o := range outcomes {
		if o.Path != paths[i] {
			t.Errorf("outcome %d path = %q, want %q", i, o.Path, paths[i])
		}
		if o.Err == nil {
			t.Errorf("outcome %d: expected error for missing path", i)
		}
	}
}

func writeFixture(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write fixture %s: %v", path, err)
	}
}
