package thumbnails

import (
	"context"
	"sync"

	"media-library/internal/logging"
	"media-library/internal/mediatypes"
	"media-library/internal/metrics"
)

// Job asks for the thumbnail of one file.
type Job struct {
	Path string
	Hash string
	Kind mediatypes.Kind
}

type generator interface {
	Generate(ctx context.Context, path, hash string, kind mediatypes.Kind) (string, error)
}

// Gate holds back work under resource pressure. Wait returns false when
// cancel closes before work may proceed.
type Gate interface {
	Wait(cancel <-chan struct{}) bool
}

// Worker generates thumbnails in the background on a single goroutine.
// It only writes cache files; a failed job is logged and the thumbnail is
// produced again on demand later.
type Worker struct {
	gen  generator
	gate Gate
	jobs chan Job
	quit chan struct{}
	wg   sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewWorker creates a Worker with room for queueSize pending jobs.
func NewWorker(gen *Generator, queueSize int) *Worker {
	return newWorker(gen, queueSize)
}

func newWorker(gen generator, queueSize int) *Worker {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Worker{
		gen:  gen,
		jobs: make(chan Job, queueSize),
		quit: make(chan struct{}),
	}
}

// SetGate makes the worker wait on g before each job. Call it before Start.
func (w *Worker) SetGate(g Gate) {
	w.gate = g
}

// Start launches the worker goroutine.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.stopped {
		return
	}
	w.started = true

	w.wg.Add(1)
	go w.run()
}

// Enqueue adds a job without blocking. It returns false when the queue is
// full or the worker has stopped.
func (w *Worker) Enqueue(job Job) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return false
	}

	select {
	case w.jobs <- job:
		metrics.ThumbnailQueueDepth.Set(float64(len(w.jobs)))
		return true
	default:
		metrics.ThumbnailQueueDropped.Inc()
		logging.Debug("Thumbnail queue full, dropping %s", job.Path)
		return false
	}
}

// Pending returns the number of queued jobs.
func (w *Worker) Pending() int {
	return len(w.jobs)
}

// Stop finishes the job in progress and discards the rest of the queue.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.quit)
	w.mu.Unlock()

	w.wg.Wait()

	if n := len(w.jobs); n > 0 {
		logging.Info("Thumbnail worker stopped with %d jobs pending", n)
	}
	metrics.ThumbnailQueueDepth.Set(0)
}

func (w *Worker) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.quit:
			return
		case job := <-w.jobs:
			metrics.ThumbnailQueueDepth.Set(float64(len(w.jobs)))
			if w.gate != nil && !w.gate.Wait(w.quit) {
				return
			}
			if _, err := w.gen.Generate(context.Background(), job.Path, job.Hash, job.Kind); err != nil {
				logging.Warn("Background thumbnail failed: %v", err)
			}
		}
	}
}
