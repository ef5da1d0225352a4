package device

import (
	"context"
	"sync"
	"time"
)

// idleSleep is how long the worker rests after a full iteration finds no
// work on any queue or device, so it never busy-spins while idle.
const idleSleep = time.Millisecond

const pollBufSize = 2048

// Worker drains every device's transmit queue, polls drivers that support
// it, and drains the protocol receive queue, all from a single background
// goroutine — the Go equivalent of the one dedicated background thread
// described for the datapath engine. Run blocks until ctx is cancelled.
type Worker struct {
	Registry *Registry
	Metrics  *Metrics

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// Start launches the worker loop in a new goroutine and returns
// immediately. Stop (or cancelling a context passed to Run) ends it.
func (w *Worker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.Run(ctx)
	}()
}

// Stop cancels a worker started with Start and waits for it to exit.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

// Run executes the worker loop until ctx is cancelled. It is safe to call
// directly (instead of Start/Stop) when the caller wants to own the
// goroutine and cancellation itself.
func (w *Worker) Run(ctx context.Context) {
	buf := make([]byte, pollBufSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		did := w.iterate(buf)
		if !did {
			w.metrics().incIdle()
			select {
			case <-ctx.Done():
				return
			case <-time.After(idleSleep):
			}
		}
	}
}

// iterate runs one pass over every device's tx queue, every pollable
// driver, and the protocol rx queue, returning true if any work was done.
func (w *Worker) iterate(buf []byte) bool {
	did := false
	for _, dev := range w.Registry.Devices() {
		if !dev.IsUp() {
			continue
		}
		if frame, ok := dev.dequeueTx(); ok {
			did = true
			n, err := dev.Driver.Transmit(frame)
			if err != nil || n != len(frame) {
				w.metrics().incDropped("transmit")
			} else {
				w.metrics().incTx()
			}
		}
		if poller, ok := dev.Driver.(Poller); ok {
			n, err := poller.Poll(buf)
			if err == nil && n > 0 {
				did = true
				w.metrics().incRx()
				if w.Registry.LinkInput != nil {
					w.Registry.LinkInput(dev, buf[:n])
				}
			}
		}
	}
	if e, ok := w.Registry.dequeueRx(); ok {
		did = true
		h := w.Registry.handlerFor(e.proto)
		if h == nil {
			w.metrics().incDropped("no_handler")
		} else if err := h(e.dev, e.payload); err != nil {
			w.metrics().incDropped("handler_error")
		}
	}
	return did
}

func (w *Worker) metrics() *Metrics {
	if w.Metrics == nil {
		return noopMetrics
	}
	return w.Metrics
}
