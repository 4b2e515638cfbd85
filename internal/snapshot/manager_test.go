package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeLocal struct {
	createCalls   int
	failUntil     int
	linkRemoved   bool
	released      bool
}

func (f *fakeLocal) Preflight(ctx context.Context, volume string) error { return nil }

func (f *fakeLocal) Create(ctx context.Context, volume string) (string, string, error) {
	f.createCalls++
	if f.createCalls <= f.failUntil {
		return "", "", errors.New("provider busy, try again")
	}
	return "shadow-1", `\\?\GLOBALROOT\Device\Shadow1`, nil
}

func (f *fakeLocal) CreateLink(ctx context.Context, devicePath, tempDir string) (string, error) {
	return tempDir + `\link-shadow-1`, nil
}

func (f *fakeLocal) RemoveLink(ctx context.Context, linkPath string) error {
	f.linkRemoved = true
	return nil
}

func (f *fakeLocal) Release(ctx context.Context, id string) error {
	f.released = true
	return nil
}

func TestManager_CreateLocal_Succeeds(t *testing.T) {
	local := &fakeLocal{}
	mgr := New(local, nil, NewTracker(t.TempDir()), RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond}, t.TempDir(), nil)

	snap, err := mgr.CreateLocal(context.Background(), `C:\`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.ID != "shadow-1" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestManager_CreateLocal_RetriesTransientThenSucceeds(t *testing.T) {
	local := &fakeLocal{failUntil: 2}
	mgr := New(local, nil, NewTracker(t.TempDir()), RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond}, t.TempDir(), nil)

	_, err := mgr.CreateLocal(context.Background(), `C:\`)
	if err != nil {
		t.Fatalf("expected eventual success, got: %v", err)
	}
	if local.createCalls != 3 {
		t.Fatalf("want 3 create attempts, got %d", local.createCalls)
	}
}

func TestManager_CreateLocal_NonTransientFailsImmediately(t *testing.T) {
	local := &failingLocal{message: "access is denied"}
	mgr := New(local, nil, NewTracker(t.TempDir()), RetryPolicy{MaxAttempts: 5, Delay: time.Millisecond}, t.TempDir(), nil)

	_, err := mgr.CreateLocal(context.Background(), `C:\`)
	if err == nil {
		t.Fatal("expected error")
	}
	if local.calls != 1 {
		t.Fatalf("want exactly 1 attempt for a non-transient failure, got %d", local.calls)
	}
}

type failingLocal struct {
	message string
	calls   int
}

func (f *failingLocal) Preflight(ctx context.Context, volume string) error { return nil }
func (f *failingLocal) Create(ctx context.Context, volume string) (string, string, error) {
	f.calls++
	return "", "", errors.New(f.message)
}
func (f *failingLocal) CreateLink(ctx context.Context, devicePath, tempDir string) (string, error) {
	return "", nil
}
func (f *failingLocal) RemoveLink(ctx context.Context, linkPath string) error { return nil }
func (f *failingLocal) Release(ctx context.Context, id string) error         { return nil }

func TestManager_Teardown_LocalOrdering(t *testing.T) {
	local := &fakeLocal{}
	mgr := New(local, nil, NewTracker(t.TempDir()), RetryPolicy{}, t.TempDir(), nil)

	snap, err := mgr.CreateLocal(context.Background(), `C:\`)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := mgr.Teardown(context.Background(), snap); err != nil {
		t.Fatalf("teardown: %v", err)
	}
	if !local.linkRemoved || !local.released {
		t.Fatalf("expected both link removal and release, got linkRemoved=%v released=%v", local.linkRemoved, local.released)
	}
}

func TestManager_CreateLocal_NoProviderConfigured(t *testing.T) {
	mgr := New(nil, nil, nil, RetryPolicy{}, t.TempDir(), nil)
	if _, err := mgr.CreateLocal(context.Background(), `C:\`); err == nil {
		t.Fatal("expected error with no local provider configured")
	}
}
