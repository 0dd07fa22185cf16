// ABOUTME: Synthesis orchestrator driving the multi-step backend protocol
// ABOUTME: Handles caching, in-flight collapsing, retries, and deadlines
package synth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"

	"github.com/VoiceDeck/voicedeck-go/pkg/audio"
	"github.com/VoiceDeck/voicedeck-go/pkg/audio/decode"
)

// Backend protocol endpoints. The generate endpoint is configured, not
// hardcoded: the documented protocol stops at embedding derivation, so
// a deployment without a generate step reports ErrUnsupportedOperation.
const (
	endpointVoiceChange     = "/on_voice_change"
	endpointGenerateSeed    = "/generate_seed"
	endpointGenerateSeedAlt = "/generate_seed_1"
	endpointAudioSeedChange = "/on_audio_seed_change"
)

// defaultVoices mirrors the backend's stock timbre roster
var defaultVoices = []string{
	"Default", "Timbre1", "Timbre2", "Timbre3", "Timbre4",
	"Timbre5", "Timbre6", "Timbre7", "Timbre8", "Timbre9",
}

// ResultCache stores completed synthesis results. Get retains the
// returned buffer for the caller; Put takes its own reference.
type ResultCache interface {
	Get(key string) *audio.Buffer
	Put(key string, buf *audio.Buffer)
}

// Config holds orchestrator settings
type Config struct {
	BaseURL          string
	GenerateEndpoint string // empty when the backend exposes no generate step
	DefaultVoice     string
	Voices           []string
	CallTimeout      time.Duration // per HTTP exchange
	RequestDeadline  time.Duration // per session
	MaxRetries       uint64        // per protocol step, transient failures only
}

func (c *Config) applyDefaults() {
	if c.DefaultVoice == "" {
		c.DefaultVoice = "Default"
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = 30 * time.Second
	}
	if c.RequestDeadline == 0 {
		c.RequestDeadline = 60 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if len(c.Voices) == 0 {
		c.Voices = defaultVoices
	}
}

type inflightCall struct {
	done chan struct{}
	buf  *audio.Buffer
	err  error
}

// Orchestrator runs synthesis sessions against a remote backend. At
// most one session is in flight per distinct normalized key; concurrent
// requests for the same key join the running session's result.
type Orchestrator struct {
	cfg    Config
	client *Client
	cache  ResultCache
	log    *log.Logger

	mu       sync.Mutex
	inflight map[string]*inflightCall
	active   map[string]context.CancelFunc // session id -> cancel
}

// generateResult is the terminal protocol step's payload
type generateResult struct {
	AudioBase64 string `json:"audio_base64"`
	SampleRate  int    `json:"sample_rate"`
	Channels    int    `json:"channels"`
}

// NewOrchestrator creates an orchestrator backed by cache. cache may be
// nil to disable result caching.
func NewOrchestrator(cfg Config, cache ResultCache, logger *log.Logger) *Orchestrator {
	cfg.applyDefaults()
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		cfg:      cfg,
		client:   NewClient(cfg.BaseURL, cfg.CallTimeout),
		cache:    cache,
		log:      logger.WithPrefix("synth"),
		inflight: make(map[string]*inflightCall),
		active:   make(map[string]context.CancelFunc),
	}
}

// Synthesize produces audio for req, consulting the cache first and
// collapsing concurrent identical requests into one backend session.
// The returned buffer is retained for the caller.
func (o *Orchestrator) Synthesize(ctx context.Context, req Request) (*audio.Buffer, error) {
	norm := req.normalize(o.cfg.DefaultVoice)
	if norm.Text == "" {
		return nil, fmt.Errorf("%w: empty synthesis text", ErrProtocol)
	}
	key := norm.Key()

	if o.cache != nil {
		if buf := o.cache.Get(key); buf != nil {
			o.log.Debug("cache hit", "key", key)
			return buf, nil
		}
	}

	o.mu.Lock()
	if call, ok := o.inflight[key]; ok {
		o.mu.Unlock()
		return o.join(ctx, call)
	}
	call := &inflightCall{done: make(chan struct{})}
	o.inflight[key] = call
	o.mu.Unlock()

	buf, err := o.lead(ctx, norm, key)

	call.buf, call.err = buf, err
	close(call.done)
	o.mu.Lock()
	delete(o.inflight, key)
	o.mu.Unlock()

	return buf, err
}

// join waits for the in-flight session owning this key
func (o *Orchestrator) join(ctx context.Context, call *inflightCall) (*audio.Buffer, error) {
	select {
	case <-call.done:
	case <-ctx.Done():
		return nil, mapContextErr(ctx.Err())
	}
	if call.err != nil {
		return nil, call.err
	}
	return call.buf.Retain(), nil
}

// lead runs the session for a key this caller owns
func (o *Orchestrator) lead(ctx context.Context, req Request, key string) (*audio.Buffer, error) {
	runCtx, cancel := context.WithTimeout(ctx, o.cfg.RequestDeadline)
	defer cancel()

	sess := NewSession(req)
	o.mu.Lock()
	o.active[sess.ID] = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.active, sess.ID)
		o.mu.Unlock()
	}()

	o.log.Info("session starting", "session", sess.ID, "voice", req.Voice, "chars", len(req.Text))

	buf, err := o.runSession(runCtx, sess)
	if err != nil {
		err = mapContextErr(err)
		if errors.Is(err, ErrCancelled) {
			sess.cancel()
		} else {
			sess.fail(err)
		}
		o.log.Warn("session failed", "session", sess.ID, "state", sess.State(), "err", err)
		return nil, err
	}

	o.log.Info("session complete", "session", sess.ID, "duration", buf.Duration())
	if o.cache != nil {
		o.cache.Put(key, buf)
	}
	return buf, nil
}

// runSession walks the ordered protocol steps for one session
func (o *Orchestrator) runSession(ctx context.Context, sess *Session) (*audio.Buffer, error) {
	// Step 1: configure the voice
	var voiceSeed float64
	if err := o.callStep(ctx, endpointVoiceChange, []any{sess.Request.Voice}, &voiceSeed); err != nil {
		return nil, err
	}
	if err := sess.advance(StateVoiceConfigured); err != nil {
		return nil, err
	}

	// Step 2: obtain audio and text seeds
	var audioSeed, textSeed float64
	if err := o.callStep(ctx, endpointGenerateSeed, nil, &audioSeed); err != nil {
		return nil, err
	}
	if err := o.callStep(ctx, endpointGenerateSeedAlt, nil, &textSeed); err != nil {
		return nil, err
	}
	sess.setSeeds(audioSeed, textSeed)
	if err := sess.advance(StateSeedAssigned); err != nil {
		return nil, err
	}

	// Step 3: derive the speaker embedding from the audio seed
	var embedding string
	if err := o.callStep(ctx, endpointAudioSeedChange, []any{audioSeed}, &embedding); err != nil {
		return nil, err
	}
	sess.setEmbedding(embedding)

	if err := sess.advance(StateGenerating); err != nil {
		return nil, err
	}

	// Terminal step: generate audio from text. The backend's documented
	// protocol may not expose this at all.
	if o.cfg.GenerateEndpoint == "" {
		return nil, fmt.Errorf("%w: backend exposes no generate step", ErrUnsupportedOperation)
	}

	args := []any{
		sess.Request.Text,
		sess.Request.Voice,
		sess.Request.Speed,
		sess.Request.Pitch,
		sess.Request.Volume,
		embedding,
	}
	var result generateResult
	if err := o.callStep(ctx, o.cfg.GenerateEndpoint, args, &result); err != nil {
		return nil, err
	}

	pcm, err := base64.StdEncoding.DecodeString(result.AudioBase64)
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable audio payload: %v", ErrProtocol, err)
	}
	if result.SampleRate <= 0 || result.Channels <= 0 {
		return nil, fmt.Errorf("%w: generate result missing format", ErrProtocol)
	}

	if err := sess.advance(StateComplete); err != nil {
		return nil, err
	}

	format := audio.Format{SampleRate: result.SampleRate, Channels: result.Channels}
	return decode.PCM16(pcm, format), nil
}

// callStep runs one protocol exchange, retrying transient failures with
// exponential backoff up to the configured count
func (o *Orchestrator) callStep(ctx context.Context, endpoint string, args []any, out any) error {
	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), o.cfg.MaxRetries),
		ctx,
	)

	attempt := 0
	op := func() error {
		attempt++
		err := o.client.Call(ctx, endpoint, args, out)
		if err == nil {
			return nil
		}
		if Retryable(err) {
			o.log.Debug("transient step failure", "endpoint", endpoint, "attempt", attempt, "err", err)
			return err
		}
		return backoff.Permanent(err)
	}

	err := backoff.Retry(op, bo)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Unwrap()
	}
	return err
}

// Voices returns the configured voice roster
func (o *Orchestrator) Voices() []string {
	voices := make([]string, len(o.cfg.Voices))
	copy(voices, o.cfg.Voices)
	return voices
}

// Ping probes backend reachability
func (o *Orchestrator) Ping(ctx context.Context) error {
	return o.client.Ping(ctx)
}

// CancelAll interrupts every in-flight session. Used on shutdown before
// the mixer and router are torn down.
func (o *Orchestrator) CancelAll() {
	o.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(o.active))
	for _, cancel := range o.active {
		cancels = append(cancels, cancel)
	}
	o.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// mapContextErr folds context errors into the synthesis taxonomy
func mapContextErr(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, errNotReady):
		return ErrTimeout
	case errors.Is(err, context.Canceled):
		return ErrCancelled
	default:
		return err
	}
}
