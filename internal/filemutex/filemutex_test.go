package filemutex

import (
	"testing"
	"time"
)

func TestMutex_LockUnlockRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := New(dir, "test")

	if err := m.Lock(time.Second); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := m.Unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}
}

func TestMutex_SecondAcquireTimesOut(t *testing.T) {
	dir := t.TempDir()
	name := "contended"

	holder := New(dir, name)
	if err := holder.Lock(time.Second); err != nil {
		t.Fatalf("holder lock: %v", err)
	}
	defer holder.Unlock()

	contender := New(dir, name)
	err := contender.Lock(50 * time.Millisecond)
	if err == nil {
		contender.Unlock()
		t.Fatal("expected second acquire to time out while the first holds the lock")
	}
}

func TestWithLock_RunsEvenOnTimeout(t *testing.T) {
	dir := t.TempDir()
	name := "withlock"

	holder := New(dir, name)
	if err := holder.Lock(time.Second); err != nil {
		t.Fatalf("holder lock: %v", err)
	}
	defer holder.Unlock()

	ran := false
	contender := New(dir, name)
	WithLock(contender, 20*time.Millisecond, func() { ran = true })

	if !ran {
		t.Fatal("expected fn to run unsynchronized after a lock timeout")
	}
}
