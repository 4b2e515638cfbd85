package snapshot

import (
	"testing"
	"time"
)

func TestTracker_RecordForgetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tr := NewTracker(dir)

	snap := Snapshot{ID: "shadow-1", SourceVolume: `C:\`, CreatedAt: time.Now()}
	if err := tr.Record(snap); err != nil {
		t.Fatalf("record: %v", err)
	}

	entries, err := tr.readLocked()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(entries) != 1 || entries[0].ShadowID != "shadow-1" {
		t.Fatalf("unexpected entries: %+v", entries)
	}

	if err := tr.Forget("shadow-1"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	entries, err = tr.readLocked()
	if err != nil {
		t.Fatalf("read after forget: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries after forget, got %+v", entries)
	}
}

func TestRecoverOrphans_ReleasesAndClearsFile(t *testing.T) {
	dir := t.TempDir()
	tr := NewTracker(dir)

	if err := tr.Record(Snapshot{ID: "orphan-1", SourceVolume: `C:\`, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := tr.Record(Snapshot{ID: "orphan-2", SourceVolume: `D:\`, IsRemote: true, ServerName: "fileserver01", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("record: %v", err)
	}

	var released []string
	err := RecoverOrphans(dir, func(shadowID, sourceVolume string, isRemote bool, serverName string) error {
		released = append(released, shadowID)
		return nil
	})
	if err != nil {
		t.Fatalf("recover orphans: %v", err)
	}
	if len(released) != 2 {
		t.Fatalf("want 2 releases, got %d: %v", len(released), released)
	}

	entries, err := tr.readLocked()
	if err != nil {
		t.Fatalf("read after recovery: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected tracking file cleared, got %+v", entries)
	}
}

func TestRecoverOrphans_NoFileIsNoop(t *testing.T) {
	dir := t.TempDir()
	called := false
	err := RecoverOrphans(dir, func(string, string, bool, string) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatal("did not expect release to be called with no tracking file")
	}
}
