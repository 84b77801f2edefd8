package logger

import (
	"errors"
	"io"
	"sync"
)

// asyncWriter serializes log writes to one or more sinks through a buffered
// channel so slow sinks never block handler goroutines.
type asyncWriter struct {
	writers []io.Writer

	mu     sync.Mutex
	lines  chan []byte
	flush  chan chan error
	done   chan struct{}
	closed bool
	err    error
}

func newAsyncWriter(writers []io.Writer, queueSize int) *asyncWriter {
	if queueSize <= 0 {
		queueSize = 1024
	}
	w := &asyncWriter{
		writers: writers,
		lines:   make(chan []byte, queueSize),
		flush:   make(chan chan error),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *asyncWriter) loop() {
	defer close(w.done)
	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				return
			}
			if err := w.writeAll(line); err != nil {
				w.setErr(err)
			}
		case ack := <-w.flush:
			// Drain everything queued before acknowledging.
			for {
				select {
				case line, ok := <-w.lines:
					if !ok {
						ack <- w.getErr()
						return
					}
					if err := w.writeAll(line); err != nil {
						w.setErr(err)
					}
				default:
					ack <- w.getErr()
					goto next
				}
			}
		next:
		}
	}
}

// Write enqueues a line; if the queue is saturated it writes synchronously.
func (w *asyncWriter) Write(p []byte) error {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return errors.New("logger: writer closed")
	}
	line := append([]byte(nil), p...)
	select {
	case w.lines <- line:
		return nil
	default:
		return w.writeAll(line)
	}
}

// Flush blocks until all queued lines have been written.
func (w *asyncWriter) Flush() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return w.getErr()
	}
	w.mu.Unlock()

	ack := make(chan error, 1)
	select {
	case w.flush <- ack:
		return <-ack
	case <-w.done:
		return w.getErr()
	}
}

// Close stops the writer goroutine after draining the queue.
func (w *asyncWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return w.getErr()
	}
	w.closed = true
	close(w.lines)
	w.mu.Unlock()

	<-w.done
	return w.getErr()
}

func (w *asyncWriter) writeAll(p []byte) error {
	var errs []error
	for _, out := range w.writers {
		if out == nil {
			continue
		}
		if _, err := out.Write(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) getErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *asyncWriter) setErr(err error) {
	if err == nil {
		return
	}
	w.mu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.mu.Unlock()
}
