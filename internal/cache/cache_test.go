// ABOUTME: Tests for the audio result cache
// ABOUTME: Covers LRU eviction order, TTL aging, refcounts, and persistence
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/VoiceDeck/voicedeck-go/pkg/audio"
)

func makeBuffer(frames int) *audio.Buffer {
	samples := make([]int32, frames*2)
	for i := range samples {
		samples[i] = int32(i % 1000)
	}
	return audio.NewBuffer(samples, audio.Format{SampleRate: 48000, Channels: 2})
}

func TestGetMissAndHit(t *testing.T) {
	c := New(Config{MaxBytes: 1 << 20}, nil)

	if got := c.Get("absent"); got != nil {
		t.Fatal("expected miss for absent key")
	}

	buf := makeBuffer(100)
	c.Put("k1", buf)
	buf.Release()

	got := c.Get("k1")
	if got == nil {
		t.Fatal("expected hit after Put")
	}
	if got != buf {
		t.Error("hit should return the stored buffer instance")
	}
	got.Release()

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats = %+v, want 1 hit 1 miss", stats)
	}
}

func TestRefcountOwnership(t *testing.T) {
	c := New(Config{MaxBytes: 1 << 20}, nil)

	buf := makeBuffer(10)
	c.Put("k", buf) // cache takes its own ref
	if got := buf.Refs(); got != 2 {
		t.Fatalf("refs after Put = %d, want 2", got)
	}

	got := c.Get("k")
	if got.Refs() != 3 {
		t.Fatalf("refs after Get = %d, want 3", got.Refs())
	}

	c.Remove("k")
	if got.Refs() != 2 {
		t.Fatalf("refs after Remove = %d, want 2", got.Refs())
	}
}

func TestLRUEvictionOrder(t *testing.T) {
	// Each buffer is 10 frames * 2 channels * 4 bytes = 80 bytes.
	// Capacity for exactly three entries.
	c := New(Config{MaxBytes: 240}, nil)

	for i := 1; i <= 3; i++ {
		buf := makeBuffer(10)
		c.Put(fmt.Sprintf("k%d", i), buf)
		buf.Release()
	}

	// Touch k1 so k2 becomes least recent
	if got := c.Get("k1"); got == nil {
		t.Fatal("k1 missing before eviction")
	} else {
		got.Release()
	}

	buf := makeBuffer(10)
	c.Put("k4", buf)
	buf.Release()

	if got := c.Get("k2"); got != nil {
		got.Release()
		t.Error("k2 should have been evicted as least recently used")
	}
	for _, key := range []string{"k1", "k3", "k4"} {
		got := c.Get(key)
		if got == nil {
			t.Errorf("%s unexpectedly evicted", key)
			continue
		}
		got.Release()
	}
	if got := c.Stats().Evictions; got != 1 {
		t.Errorf("evictions = %d, want 1", got)
	}
}

func TestEvictToCapacityAfterShrink(t *testing.T) {
	c := New(Config{MaxBytes: 240}, nil)

	for i := 1; i <= 3; i++ {
		buf := makeBuffer(10)
		c.Put(fmt.Sprintf("k%d", i), buf)
		buf.Release()
	}

	c.cfg.MaxBytes = 160
	c.EvictToCapacity()

	if got := c.Get("k1"); got != nil {
		got.Release()
		t.Error("k1 should have been evicted after capacity shrink")
	}
	stats := c.Stats()
	if stats.Entries != 2 || stats.Bytes != 160 {
		t.Errorf("stats = %+v, want 2 entries at 160 bytes", stats)
	}
}

func TestPutReplacesExisting(t *testing.T) {
	c := New(Config{MaxBytes: 1 << 20}, nil)

	old := makeBuffer(10)
	c.Put("k", old)
	old.Release()

	repl := makeBuffer(20)
	c.Put("k", repl)

	if old.Refs() != 0 {
		t.Errorf("replaced buffer refs = %d, want 0", old.Refs())
	}
	got := c.Get("k")
	if got != repl {
		t.Error("expected replacement buffer")
	}
	got.Release()

	if n := c.Stats().Entries; n != 1 {
		t.Errorf("entries = %d, want 1", n)
	}
}

func TestOversizedBufferNotCached(t *testing.T) {
	c := New(Config{MaxBytes: 100}, nil)

	buf := makeBuffer(1000)
	c.Put("big", buf)

	if buf.Refs() != 1 {
		t.Errorf("oversized buffer refs = %d, want 1", buf.Refs())
	}
	if got := c.Get("big"); got != nil {
		t.Error("oversized buffer should not be cached")
	}
}

func TestTTLExpiry(t *testing.T) {
	c := New(Config{MaxBytes: 1 << 20, MaxAge: time.Minute}, nil)

	base := time.Now()
	c.now = func() time.Time { return base }

	buf := makeBuffer(10)
	c.Put("k", buf)
	buf.Release()

	c.now = func() time.Time { return base.Add(30 * time.Second) }
	if got := c.Get("k"); got == nil {
		t.Fatal("entry expired early")
	} else {
		got.Release()
	}

	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	if got := c.Get("k"); got != nil {
		got.Release()
		t.Error("expired entry still served")
	}
	if n := c.Stats().Entries; n != 0 {
		t.Errorf("expired entry not removed, entries = %d", n)
	}
}

func TestPurge(t *testing.T) {
	c := New(Config{MaxBytes: 1 << 20}, nil)
	bufs := make([]*audio.Buffer, 3)
	for i := range bufs {
		bufs[i] = makeBuffer(10)
		c.Put(fmt.Sprintf("k%d", i), bufs[i])
	}

	c.Purge()

	stats := c.Stats()
	if stats.Entries != 0 || stats.Bytes != 0 {
		t.Errorf("after purge: %+v", stats)
	}
	for i, buf := range bufs {
		if buf.Refs() != 1 {
			t.Errorf("buffer %d refs = %d, want 1", i, buf.Refs())
		}
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()

	c := New(Config{MaxBytes: 1 << 20, Dir: dir}, nil)
	buf := makeBuffer(100)
	c.Put("tts_0123456789abcdef", buf)

	path := filepath.Join(dir, "tts_0123456789abcdef.pcm")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("entry file not written: %v", err)
	}

	// A fresh cache over the same directory restores the entry
	c2 := New(Config{MaxBytes: 1 << 20, Dir: dir}, nil)
	got := c2.Get("tts_0123456789abcdef")
	if got == nil {
		t.Fatal("persisted entry not restored")
	}
	if got.Format() != buf.Format() {
		t.Errorf("restored format %+v, want %+v", got.Format(), buf.Format())
	}
	restored := got.Samples()
	orig := buf.Samples()
	if len(restored) != len(orig) {
		t.Fatalf("restored %d samples, want %d", len(restored), len(orig))
	}
	for i := range orig {
		if restored[i] != orig[i] {
			t.Fatalf("sample %d = %d, want %d", i, restored[i], orig[i])
		}
	}
	got.Release()
}

func TestPersistenceRemovesEvictedFiles(t *testing.T) {
	dir := t.TempDir()
	c := New(Config{MaxBytes: 1 << 20, Dir: dir}, nil)

	buf := makeBuffer(10)
	c.Put("k", buf)
	buf.Release()
	c.Remove("k")

	if _, err := os.Stat(filepath.Join(dir, "k.pcm")); !os.IsNotExist(err) {
		t.Error("removed entry still on disk")
	}
}

func TestPersistDoesNotBlockLookups(t *testing.T) {
	dir := t.TempDir()
	c := New(Config{MaxBytes: 1 << 20, Dir: dir}, nil)

	// Hammer the window where Put writes its entry file without the
	// lock: concurrent removals and lookups of the same key must never
	// deadlock or corrupt the entry table.
	for i := 0; i < 50; i++ {
		buf := makeBuffer(10)
		done := make(chan struct{})
		go func() {
			defer close(done)
			c.Put("k", buf)
		}()
		c.Remove("k")
		if got := c.Get("k"); got != nil {
			got.Release()
		}
		<-done
		buf.Release()
	}

	c.Remove("k")
	if got := c.Stats().Entries; got != 0 {
		t.Fatalf("entries = %d, want 0", got)
	}
}

func TestCorruptPersistedFileDropped(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.pcm"), []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := New(Config{MaxBytes: 1 << 20, Dir: dir}, nil)
	if got := c.Get("bad"); got != nil {
		t.Error("corrupt file should not load")
	}
	if _, err := os.Stat(filepath.Join(dir, "bad.pcm")); !os.IsNotExist(err) {
		t.Error("corrupt file should be deleted on load")
	}
}
