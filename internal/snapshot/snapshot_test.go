package snapshot

import (
	"testing"
)

func TestTranslate_RelativePath(t *testing.T) {
	snap := Snapshot{SourceVolume: `C:\`, LinkPath: `C:\Temp\shadow-link`}
	got, err := Translate(`C:\relative\file.txt`, snap)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == "" {
		t.Fatal("expected a non-empty translated path")
	}
}

func TestTranslate_RootCase(t *testing.T) {
	snap := Snapshot{SourceVolume: `C:\`, LinkPath: `C:\Temp\shadow-link`}
	got, err := TranslateWithRoots(`C:\`, `C:\`, snap.LinkPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != snap.LinkPath {
		t.Fatalf("want shadow root %q for volume-root case, got %q", snap.LinkPath, got)
	}
}

func TestTranslate_OutsideVolumeIsError(t *testing.T) {
	_, err := TranslateWithRoots(`D:\other`, `C:\`, `C:\Temp\shadow-link`)
	if err == nil {
		t.Fatal("expected error translating a path outside the source volume")
	}
}

func TestIsTransient_KnownCode(t *testing.T) {
	if !IsTransient(170, "") {
		t.Fatal("expected code 170 to be classified transient")
	}
}

func TestIsTransient_MessageFallback(t *testing.T) {
	if !IsTransient(0, "the resource is currently in use by another process") {
		t.Fatal("expected an 'in use' message to be classified transient")
	}
	if IsTransient(0, "access is denied") {
		t.Fatal("did not expect an access-denied message to be classified transient")
	}
}

func TestShadowRoot_PrefersJunctionWhenRemote(t *testing.T) {
	snap := Snapshot{IsRemote: true, JunctionPath: `\\server\share\shadow`, LinkPath: `C:\ignored`}
	if got := snap.ShadowRoot(); got != snap.JunctionPath {
		t.Fatalf("want junction path, got %q", got)
	}
}

func TestShadowRoot_UsesLinkWhenLocal(t *testing.T) {
	snap := Snapshot{LinkPath: `C:\Temp\shadow-link`}
	if got := snap.ShadowRoot(); got != snap.LinkPath {
		t.Fatalf("want link path, got %q", got)
	}
}
