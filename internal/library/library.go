// ABOUTME: Sound clip library with persistent metadata
// ABOUTME: Decodes files on import and serves shared in-memory buffers
package library

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/VoiceDeck/voicedeck-go/internal/mixer"
	"github.com/VoiceDeck/voicedeck-go/pkg/audio"
	"github.com/VoiceDeck/voicedeck-go/pkg/audio/decode"
	"github.com/VoiceDeck/voicedeck-go/pkg/audio/resample"
)

var (
	ErrClipNotFound = errors.New("library: clip not found")
	ErrBadClip      = errors.New("library: file is not decodable audio")
)

const defaultCategory = "General"

// Clip is one imported sound
type Clip struct {
	ID       string
	Name     string
	Path     string
	Category string
	Duration time.Duration
	AddedAt  time.Time
}

// Library holds imported clips. Metadata persists in SQLite; decoded
// audio lives in memory, already converted to the mix format, shared by
// reference with every playback handle.
type Library struct {
	store *Store
	log   *log.Logger

	mu      sync.Mutex
	clips   map[string]*Clip
	buffers map[string]*audio.Buffer
}

// Open loads the library, restoring clip metadata from the store and
// re-decoding each file. Clips whose file vanished are dropped.
func Open(ctx context.Context, store *Store, logger *log.Logger) (*Library, error) {
	if logger == nil {
		logger = log.Default()
	}
	l := &Library{
		store:   store,
		log:     logger.WithPrefix("library"),
		clips:   make(map[string]*Clip),
		buffers: make(map[string]*audio.Buffer),
	}

	clips, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load clip metadata: %w", err)
	}
	for _, clip := range clips {
		buf, err := l.decodeClip(clip.Path)
		if err != nil {
			l.log.Warn("dropping unreadable clip", "clip", clip.ID, "path", clip.Path, "err", err)
			store.Remove(ctx, clip.ID)
			continue
		}
		c := clip
		c.Duration = buf.Duration()
		l.clips[c.ID] = &c
		l.buffers[c.ID] = buf
	}
	if len(l.clips) > 0 {
		l.log.Info("clips restored", "count", len(l.clips))
	}
	return l, nil
}

// Add imports the file at path into category. The file is decoded
// eagerly: an undecodable file is rejected with ErrBadClip and nothing
// is stored. Empty category lands in the default one.
func (l *Library) Add(ctx context.Context, path, name, category string) (*Clip, error) {
	buf, err := l.decodeClip(path)
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	category = strings.TrimSpace(category)
	if category == "" {
		category = defaultCategory
	}

	clip := &Clip{
		ID:       uuid.New().String(),
		Name:     name,
		Path:     path,
		Category: category,
		Duration: buf.Duration(),
		AddedAt:  time.Now(),
	}
	if err := l.store.Insert(ctx, clip); err != nil {
		buf.Release()
		return nil, fmt.Errorf("persist clip: %w", err)
	}

	l.mu.Lock()
	l.clips[clip.ID] = clip
	l.buffers[clip.ID] = buf
	l.mu.Unlock()

	l.log.Info("clip added", "clip", clip.ID, "name", name, "category", category, "duration", clip.Duration)
	return clip, nil
}

// Remove deletes a clip and releases its buffer
func (l *Library) Remove(ctx context.Context, id string) error {
	l.mu.Lock()
	clip, ok := l.clips[id]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrClipNotFound, id)
	}
	delete(l.clips, id)
	buf := l.buffers[id]
	delete(l.buffers, id)
	l.mu.Unlock()

	if buf != nil {
		buf.Release()
	}
	if err := l.store.Remove(ctx, id); err != nil {
		return fmt.Errorf("remove clip %s: %w", clip.ID, err)
	}
	return nil
}

// Get returns clip metadata
func (l *Library) Get(id string) (*Clip, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	clip, ok := l.clips[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClipNotFound, id)
	}
	c := *clip
	return &c, nil
}

// Buffer returns the clip's decoded audio, retained for the caller
func (l *Library) Buffer(id string) (*audio.Buffer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	buf, ok := l.buffers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClipNotFound, id)
	}
	return buf.Retain(), nil
}

// List returns clips, filtered to category when non-empty
func (l *Library) List(category string) []Clip {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Clip, 0, len(l.clips))
	for _, clip := range l.clips {
		if category != "" && clip.Category != category {
			continue
		}
		out = append(out, *clip)
	}
	return out
}

// Categories returns the distinct categories in use
func (l *Library) Categories() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, clip := range l.clips {
		if !seen[clip.Category] {
			seen[clip.Category] = true
			out = append(out, clip.Category)
		}
	}
	return out
}

// Close releases all buffers and the store
func (l *Library) Close() error {
	l.mu.Lock()
	for id, buf := range l.buffers {
		buf.Release()
		delete(l.buffers, id)
	}
	l.clips = make(map[string]*Clip)
	l.mu.Unlock()
	return l.store.Close()
}

// decodeClip decodes path and converts it to the mix format so
// playback never resamples.
func (l *Library) decodeClip(path string) (*audio.Buffer, error) {
	buf, err := decode.File(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadClip, path, err)
	}
	converted := resample.ToFormat(buf, mixer.MixFormat)
	if converted != buf {
		buf.Release()
	}
	return converted, nil
}
