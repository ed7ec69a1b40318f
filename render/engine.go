package render

import (
	"errors"
	"sync"
	"time"

	"github.com/RyanBlaney/sonido-scope/logging"
)

// EngineConfig tunes the render engine
type EngineConfig struct {
	// CacheCapacity bounds the tile cache, counted in float32 values.
	// <= 0 disables eviction.
	CacheCapacity int `json:"cache_capacity"`

	// GridAlign snaps tile starts to multiples of TileFrames so scrolled
	// windows reuse cache entries. Off by default: the historical engine
	// keyed tiles by the exact requested start frame.
	GridAlign bool `json:"grid_align"`

	// QueueDepth is the request channel buffer size
	QueueDepth int `json:"queue_depth"`
}

// DefaultEngineConfig returns sensible defaults: a 256 MiB tile cache and a
// short request queue
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		CacheCapacity: 64 << 20, // float32 values, 256 MiB
		GridAlign:     false,
		QueueDepth:    32,
	}
}

// ErrEngineClosed is returned by RenderSync once Close has been called
var ErrEngineClosed = errors.New("engine closed")

// Reply is the outcome of one render request. Exactly one Reply is emitted
// per request, in request order.
type Reply struct {
	FileID string
	Image  *RenderedImage
	Err    error
}

type loadMsg struct {
	fileID     string
	sampleRate int
	samples    []float32
	ack        chan struct{}
}

type message struct {
	load   *loadMsg
	render *RenderRequest
}

// Engine is the single-threaded request channel: one worker goroutine
// processes messages strictly in arrival order, so replies arrive in the
// order requests were issued and the store and cache never need locking.
// There is no preemption and no cancellation of an in-flight request; a
// caller that re-renders on UI changes simply discards stale replies.
type Engine struct {
	cfg    EngineConfig
	store  *SampleStore
	cache  *TileCache
	asm    *Assembler
	logger logging.Logger

	msgs      chan message
	replies   chan Reply
	closeOnce sync.Once

	// mu guards closed; senders hold it shared so Close cannot close msgs
	// under an in-flight send
	mu     sync.RWMutex
	closed bool
}

// NewEngine creates an engine around the given spectral primitive and starts
// its worker goroutine
func NewEngine(prim Primitive, cfg EngineConfig) *Engine {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultEngineConfig().QueueDepth
	}

	store := NewSampleStore()
	cache := NewTileCache(cfg.CacheCapacity)

	e := &Engine{
		cfg:     cfg,
		store:   store,
		cache:   cache,
		asm:     NewAssembler(store, cache, prim, cfg.GridAlign),
		logger:  logging.WithFields(logging.Fields{"component": "engine"}),
		msgs:    make(chan message, cfg.QueueDepth),
		replies: make(chan Reply, cfg.QueueDepth),
	}

	go e.run()
	return e
}

// LoadPCM delivers the full decoded waveform for fileID, replacing any prior
// entry. It returns once the store update is visible to subsequent renders.
// A no-op after Close.
func (e *Engine) LoadPCM(fileID string, sampleRate int, samples []float32) {
	ack := make(chan struct{})

	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return
	}
	e.msgs <- message{load: &loadMsg{
		fileID:     fileID,
		sampleRate: sampleRate,
		samples:    samples,
		ack:        ack,
	}}
	e.mu.RUnlock()

	<-ack
}

// Submit enqueues a render request. The reply arrives on Replies in FIFO
// order relative to every other submitted request. Returns false without
// enqueueing anything once the engine has been closed.
func (e *Engine) Submit(req RenderRequest) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return false
	}
	e.msgs <- message{render: &req}
	return true
}

// Replies returns the channel replies are delivered on. The channel is
// closed after Close once queued work has drained.
func (e *Engine) Replies() <-chan Reply {
	return e.replies
}

// RenderSync submits a request and waits for its reply. Only valid when the
// caller is not also consuming Replies concurrently, since replies carry no
// request correlation beyond their order.
func (e *Engine) RenderSync(req RenderRequest) Reply {
	if !e.Submit(req) {
		return Reply{FileID: req.FileID, Err: ErrEngineClosed}
	}
	return <-e.replies
}

// Close stops the worker after draining queued messages. Later LoadPCM and
// Submit calls are rejected rather than panicking.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()
		close(e.msgs)
	})
}

// run is the worker loop: strictly one message at a time, to completion
func (e *Engine) run() {
	defer close(e.replies)

	for m := range e.msgs {
		switch {
		case m.load != nil:
			e.store.Set(m.load.fileID, m.load.sampleRate, m.load.samples)
			e.logger.Info("loaded pcm", logging.Fields{
				"file_id":     m.load.fileID,
				"sample_rate": m.load.sampleRate,
				"samples":     len(m.load.samples),
			})
			close(m.load.ack)

		case m.render != nil:
			e.replies <- e.handleRender(*m.render)
		}
	}
}

// handleRender runs the full pipeline for one request
func (e *Engine) handleRender(req RenderRequest) Reply {
	started := time.Now()

	if err := req.Validate(); err != nil {
		return Reply{FileID: req.FileID, Err: err}
	}

	buf, total, err := e.asm.AssembleWindow(req.FileID, req.T0, req.Duration, req.Analysis)
	if err != nil {
		e.logger.Error(err, "render failed", logging.Fields{"file_id": req.FileID})
		return Reply{FileID: req.FileID, Err: err}
	}

	img, err := Rasterize(buf, total, req.Analysis.NMels, req.Display)
	if err != nil {
		e.logger.Error(err, "rasterize failed", logging.Fields{"file_id": req.FileID})
		return Reply{FileID: req.FileID, Err: err}
	}

	e.logger.Debug("rendered window", logging.Fields{
		"file_id": req.FileID,
		"t0":      req.T0,
		"frames":  total,
		"elapsed": time.Since(started).String(),
	})

	return Reply{FileID: req.FileID, Image: img}
}
