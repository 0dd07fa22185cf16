// ABOUTME: Application assembly and lifecycle
// ABOUTME: Wires synthesis, cache, library, mixer, router, and dispatch
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/VoiceDeck/voicedeck-go/internal/cache"
	"github.com/VoiceDeck/voicedeck-go/internal/config"
	"github.com/VoiceDeck/voicedeck-go/internal/discovery"
	"github.com/VoiceDeck/voicedeck-go/internal/dispatch"
	"github.com/VoiceDeck/voicedeck-go/internal/library"
	"github.com/VoiceDeck/voicedeck-go/internal/mixer"
	"github.com/VoiceDeck/voicedeck-go/internal/router"
	"github.com/VoiceDeck/voicedeck-go/internal/synth"
)

// App holds the assembled components
type App struct {
	cfg     config.Config
	log     *log.Logger
	backend router.Backend

	Synth      *synth.Orchestrator // nil when synthesis is disabled
	Cache      *cache.Cache
	Library    *library.Library
	Mixer      *mixer.Mixer
	Router     *router.Router
	Dispatcher *dispatch.Dispatcher

	cancel context.CancelFunc
	done   chan struct{}
}

// New assembles the application from config. Background loops are not
// started until Run.
func New(ctx context.Context, cfg config.Config, logger *log.Logger) (*App, error) {
	if logger == nil {
		logger = log.Default()
	}
	a := &App{cfg: cfg, log: logger}

	backend, err := newBackend(cfg.Router.Backend)
	if err != nil {
		return nil, err
	}
	a.backend = backend
	a.Router, err = router.New(backend, mixer.MixFormat, logger)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("router init: %w", err)
	}

	a.Mixer = mixer.New(a.Router, logger)
	a.Mixer.ConfigureBus("main", cfg.Mixer.MaxHandlesPerBus, cfg.Mixer.MasterGain)

	store, err := library.OpenStore(ctx, cfg.Library.DatabasePath)
	if err != nil {
		a.Router.CloseAll()
		return nil, fmt.Errorf("library store: %w", err)
	}
	a.Library, err = library.Open(ctx, store, logger)
	if err != nil {
		store.Close()
		a.Router.CloseAll()
		return nil, fmt.Errorf("library init: %w", err)
	}

	if cfg.Synthesis.Enabled {
		baseURL := cfg.Synthesis.BaseURL
		if baseURL == "" && cfg.Synthesis.Discover {
			findCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			backend, err := discovery.FindBackend(findCtx, logger)
			cancel()
			if err != nil {
				a.Close()
				return nil, err
			}
			baseURL = backend.URL()
		}

		a.Cache = cache.New(cache.Config{
			MaxBytes: cfg.Cache.MaxBytes,
			MaxAge:   cfg.Cache.MaxAge(),
			Dir:      cfg.Cache.Dir,
		}, logger)

		a.Synth = synth.NewOrchestrator(synth.Config{
			BaseURL:          baseURL,
			GenerateEndpoint: cfg.Synthesis.GenerateEndpoint,
			DefaultVoice:     cfg.Synthesis.DefaultVoice,
			CallTimeout:      cfg.Synthesis.CallTimeout(),
			RequestDeadline:  cfg.Synthesis.RequestDeadline(),
			MaxRetries:       uint64(cfg.Synthesis.MaxRetries),
		}, a.Cache, logger)
	}

	var speech dispatch.SpeechSource
	if a.Synth != nil {
		speech = a.Synth
	}
	a.Dispatcher = dispatch.New(a.Library, speech, a.Mixer, logger)

	return a, nil
}

func newBackend(name string) (router.Backend, error) {
	switch name {
	case "malgo":
		return router.NewMalgoBackend()
	case "oto":
		return router.NewOtoBackend(), nil
	case "memory":
		return router.NewMemoryBackend(router.Device{
			ID:      "default",
			Name:    "Null Output",
			Kind:    router.DevicePhysical,
			Default: true,
		}), nil
	default:
		return nil, fmt.Errorf("unknown router backend %q", name)
	}
}

// Run starts the mixer tick and the device refresh loop. a.done closes
// only after both loops exit so Close never tears the router down under
// a running refresh.
func (a *App) Run(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	a.done = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.Mixer.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		a.Router.Run(ctx, a.cfg.Router.RefreshInterval())
	}()
	go func() {
		wg.Wait()
		close(a.done)
	}()
}

// Close tears the application down in dependency order: in-flight
// synthesis first, then the background loops, then playback, routes,
// and storage.
func (a *App) Close() error {
	if a.Synth != nil {
		a.Synth.CancelAll()
	}
	if a.cancel != nil {
		a.cancel()
		<-a.done
	}
	a.Mixer.Close()
	if err := a.Router.CloseAll(); err != nil {
		a.log.Warn("router close", "err", err)
	}
	if a.Library != nil {
		if err := a.Library.Close(); err != nil {
			a.log.Warn("library close", "err", err)
		}
	}
	a.log.Info("shutdown complete")
	return nil
}
