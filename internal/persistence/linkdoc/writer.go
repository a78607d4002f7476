package linkdoc

import (
	"io"
	"log"
	"sync"

	"teleportals.ai/internal/sim/linkreg"
)

// Writer saves snapshots on its own goroutine so the tick loop never waits on
// disk. Only the newest pending snapshot is written; a failed save is retried
// with the next submission or on Close. Snapshots reach the disk in
// submission order, so callers that submit from one goroutine never see an
// older snapshot overwrite a newer one.
type Writer struct {
	g      *Gateway
	log    *log.Logger
	onSave func(SaveResult, error)

	mu      sync.Mutex
	pending *job
	closed  bool

	kick chan struct{}
	done chan struct{}
}

type job struct {
	snap    linkreg.Snapshot
	tick    uint64
	waiters []chan Outcome
}

// Outcome is the result of the save that covered a SubmitWait snapshot. It
// may be a newer snapshot that replaced it before it was written.
type Outcome struct {
	Result SaveResult
	Err    error
}

// NewWriter starts the writer goroutine. onSave, if set, runs on that
// goroutine after every attempt.
func NewWriter(g *Gateway, onSave func(SaveResult, error), logger *log.Logger) *Writer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	w := &Writer{
		g:      g,
		log:    logger,
		onSave: onSave,
		kick:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go w.loop()
	return w
}

// Submit queues snap, replacing any snapshot not yet written. It returns false
// once the writer is closed.
func (w *Writer) Submit(snap linkreg.Snapshot, tick uint64) bool {
	return w.submit(snap, tick, nil)
}

// SubmitWait is Submit with a channel that receives the outcome once the
// snapshot, or one that replaced it, has been attempted.
func (w *Writer) SubmitWait(snap linkreg.Snapshot, tick uint64) (<-chan Outcome, bool) {
	c := make(chan Outcome, 1)
	if !w.submit(snap, tick, c) {
		return nil, false
	}
	return c, true
}

func (w *Writer) submit(snap linkreg.Snapshot, tick uint64, wait chan Outcome) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	j := &job{snap: snap, tick: tick}
	if w.pending != nil {
		j.waiters = w.pending.waiters
	}
	if wait != nil {
		j.waiters = append(j.waiters, wait)
	}
	w.pending = j
	select {
	case w.kick <- struct{}{}:
	default:
	}
	return true
}

// Close stops the goroutine and makes a last synchronous attempt at anything
// still pending. The returned error is that attempt's.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.kick)
	w.mu.Unlock()

	<-w.done
	return w.flush()
}

func (w *Writer) loop() {
	defer close(w.done)
	for range w.kick {
		_ = w.flush()
	}
}

func (w *Writer) flush() error {
	w.mu.Lock()
	j := w.pending
	w.pending = nil
	w.mu.Unlock()
	if j == nil {
		return nil
	}

	res, err := w.g.Save(j.snap, j.tick)
	if err != nil {
		w.log.Printf("save failed at tick %d: %v (links may be lost on shutdown if this persists)", j.tick, err)
		w.mu.Lock()
		if w.pending == nil {
			w.pending = &job{snap: j.snap, tick: j.tick}
		}
		w.mu.Unlock()
	}
	if w.onSave != nil {
		w.onSave(res, err)
	}
	for _, c := range j.waiters {
		c <- Outcome{Result: res, Err: err}
	}
	return err
}
