package checkpoint

import (
	"os"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, "session-a", nil)

	cp := Checkpoint{
		SessionID:           uuid.NewString(),
		SavedAt:             time.Now().UTC(),
		ProfileIndex:        1,
		CurrentProfileName:  "nightly-share",
		CompletedChunkPaths: []string{`C:\Data\a`, `C:\Data\b`},
		CompletedCount:      2,
		BytesComplete:       1024,
		StartTime:           time.Now().UTC(),
	}

	if err := s.Save(cp); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected a loaded checkpoint, got nil")
	}
	if loaded.CompletedCount != 2 || loaded.CurrentProfileName != "nightly-share" {
		t.Fatalf("loaded checkpoint mismatch: %+v", loaded)
	}
}

func TestStore_Load_MissingFileReturnsNil(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, "session-b", nil)

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded != nil {
		t.Fatalf("expected nil for missing checkpoint, got %+v", loaded)
	}
}

func TestStore_Load_VersionMismatchReturnsNil(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, "session-c", nil)

	cp := Checkpoint{SessionID: uuid.NewString()}
	if err := s.Save(cp); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Tamper with the version directly on disk to simulate an older/newer
	// incompatible schema.
	raw, err := os.ReadFile(s.path)
	if err != nil {
		t.Fatalf("read raw: %v", err)
	}
	var decoded Checkpoint
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode raw: %v", err)
	}
	decoded.Version = "0.1"
	tampered, err := json.Marshal(decoded)
	if err != nil {
		t.Fatalf("encode tampered: %v", err)
	}
	if err := os.WriteFile(s.path, tampered, 0644); err != nil {
		t.Fatalf("write tampered: %v", err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded != nil {
		t.Fatalf("expected nil for a version mismatch, got %+v", loaded)
	}
}

func TestStore_Remove(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, "session-d", nil)

	if err := s.Save(Checkpoint{SessionID: uuid.NewString()}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Remove(); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.Remove(); err != nil {
		t.Fatalf("remove on already-missing file should be a no-op: %v", err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded != nil {
		t.Fatal("expected no checkpoint after removal")
	}
}

func TestIsCompleted_CaseInsensitiveAndTolerant(t *testing.T) {
	cp := &Checkpoint{CompletedChunkPaths: []string{`C:\Data\A`, ""}}

	if !IsCompleted(`c:\data\a`, cp) {
		t.Fatal("expected case-insensitive match")
	}
	if IsCompleted(`C:\Data\B`, cp) {
		t.Fatal("did not expect a match for an unrelated path")
	}
	if IsCompleted(`anything`, nil) {
		t.Fatal("expected false for a nil checkpoint")
	}
}
