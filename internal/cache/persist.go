// ABOUTME: On-disk persistence for cached synthesis results
// ABOUTME: One raw PCM file per entry with a small fixed header
package cache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/VoiceDeck/voicedeck-go/pkg/audio"
)

// File layout: 4-byte magic, uint32 sample rate, uint16 channels,
// then little-endian int32 samples.
var fileMagic = [4]byte{'V', 'D', 'C', 'K'}

const (
	headerSize = 10
	fileExt    = ".pcm"
)

var errBadHeader = errors.New("cache: malformed entry file")

func (c *Cache) entryPath(key string) string {
	return filepath.Join(c.cfg.Dir, key+fileExt)
}

// persist writes ent to disk. Runs outside c.mu; the caller holds its
// own reference on ent.buf for the duration.
func (c *Cache) persist(ent *entry) error {
	if err := os.MkdirAll(c.cfg.Dir, 0o755); err != nil {
		return err
	}

	format := ent.buf.Format()
	samples := ent.buf.Samples()

	data := make([]byte, headerSize+len(samples)*4)
	copy(data, fileMagic[:])
	binary.LittleEndian.PutUint32(data[4:], uint32(format.SampleRate))
	binary.LittleEndian.PutUint16(data[8:], uint16(format.Channels))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(data[headerSize+i*4:], uint32(s))
	}

	tmp := c.entryPath(ent.key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.entryPath(ent.key))
}

// unpersist removes the on-disk file for key, if any. Callers hold c.mu.
func (c *Cache) unpersist(key string) {
	if err := os.Remove(c.entryPath(key)); err != nil && !os.IsNotExist(err) {
		c.log.Warn("entry file removal failed", "key", key, "err", err)
	}
}

// loadPersisted repopulates the cache from disk, oldest first so that
// recency order survives restarts. Unreadable files are dropped.
func (c *Cache) loadPersisted() {
	files, err := filepath.Glob(filepath.Join(c.cfg.Dir, "*"+fileExt))
	if err != nil || len(files) == 0 {
		return
	}

	type candidate struct {
		path    string
		modTime int64
	}
	candidates := make([]candidate, 0, len(files))
	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{path, info.ModTime().UnixNano()})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].modTime < candidates[j].modTime
	})

	loaded := 0
	for _, cand := range candidates {
		key := strings.TrimSuffix(filepath.Base(cand.path), fileExt)
		buf, err := readEntryFile(cand.path)
		if err != nil {
			c.log.Warn("dropping unreadable entry file", "path", cand.path, "err", err)
			os.Remove(cand.path)
			continue
		}
		ent := &entry{key: key, buf: buf, size: int64(buf.SizeBytes()), addedAt: c.now()}
		c.entries[key] = c.order.PushFront(ent)
		c.bytes += ent.size
		loaded++
	}

	for c.bytes > c.cfg.MaxBytes {
		back := c.order.Back()
		if back == nil {
			break
		}
		c.removeLocked(back)
	}

	if loaded > 0 {
		c.log.Info("restored persisted entries", "count", loaded, "bytes", c.bytes)
	}
}

func readEntryFile(path string) (*audio.Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < headerSize || [4]byte(data[:4]) != fileMagic {
		return nil, errBadHeader
	}
	rate := int(binary.LittleEndian.Uint32(data[4:]))
	channels := int(binary.LittleEndian.Uint16(data[8:]))
	if rate <= 0 || channels <= 0 || (len(data)-headerSize)%4 != 0 {
		return nil, fmt.Errorf("%w: rate=%d channels=%d", errBadHeader, rate, channels)
	}

	samples := make([]int32, (len(data)-headerSize)/4)
	for i := range samples {
		samples[i] = int32(binary.LittleEndian.Uint32(data[headerSize+i*4:]))
	}
	return audio.NewBuffer(samples, audio.Format{SampleRate: rate, Channels: channels}), nil
}
