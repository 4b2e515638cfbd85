package profiler

import (
	"testing"
	"time"

	"replicurse/internal/types"
)

func TestCache_GetMiss(t *testing.T) {
	c := NewCache(10, time.Hour)
	if _, ok := c.Get(`C:\Data`, time.Now()); ok {
		t.Fatal("expected miss on empty cache")
	}
}

func TestCache_PutThenGet(t *testing.T) {
	c := NewCache(10, time.Hour)
	now := time.Now()
	c.Put(types.DirectoryProfile{Path: `C:\Data`, TotalBytes: 100, FileCount: 5, LastScanned: now})

	entry, ok := c.Get(`c:\data\`, now)
	if !ok {
		t.Fatal("expected hit with differently-cased, trailing-separator path")
	}
	if entry.TotalBytes != 100 {
		t.Fatalf("total bytes = %d, want 100", entry.TotalBytes)
	}
}

func TestCache_StaleEntryIsMiss(t *testing.T) {
	c := NewCache(10, time.Minute)
	past := time.Now().Add(-time.Hour)
	c.Put(types.DirectoryProfile{Path: `C:\Data`, LastScanned: past})

	if _, ok := c.Get(`C:\Data`, time.Now()); ok {
		t.Fatal("expected stale entry to miss")
	}
}

func TestCache_EvictionKeepsWithinBudget(t *testing.T) {
	c := NewCache(10, time.Hour)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 20; i++ {
		c.Put(types.DirectoryProfile{
			Path:        pathFor(i),
			LastScanned: base.Add(time.Duration(i) * time.Second),
		})
	}
	if c.Len() > 11 {
		t.Fatalf("expected eviction to keep cache near budget, got %d entries", c.Len())
	}
}

func TestCache_Invalidate(t *testing.T) {
	c := NewCache(10, time.Hour)
	now := time.Now()
	c.Put(types.DirectoryProfile{Path: `C:\Data`, LastScanned: now})
	c.Invalidate(`C:\Data`)

	if _, ok := c.Get(`C:\Data`, now); ok {
		t.Fatal("expected invalidated entry to miss")
	}
}

func pathFor(i int) string {
	return `C:\Data\dir` + string(rune('a'+i))
}
