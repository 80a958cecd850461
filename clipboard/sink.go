package clipboard

import (
	"fmt"
	"io"
	"sync"
	"time"
)

const (
	// pasteSettle lets the clipboard owner publish new contents before
	// the paste keystroke asks for them.
	pasteSettle = 80 * time.Millisecond
	// restoreDelay keeps the transcript on the clipboard long enough for
	// the focused application to read it.
	restoreDelay = 600 * time.Millisecond
)

// Sink inserts text into the focused application by way of the
// clipboard, then puts the previous clipboard contents back.
type Sink struct {
	read  func() (string, error)
	copy  func(string) error
	paste func() error

	settle  time.Duration
	restore time.Duration
	wg      sync.WaitGroup

	mu      sync.Mutex
	pending *pendingRestore
}

// pendingRestore is a scheduled write of the user's clipboard contents. A newer
// Insert cancels it and inherits prev.
type pendingRestore struct {
	prev   string
	cancel chan struct{}
}

func NewSink() *Sink {
	return &Sink{
		read:    Read,
		copy:    Copy,
		paste:   Paste,
		settle:  pasteSettle,
		restore: restoreDelay,
	}
}

// Insert pastes text. Empty text leaves the clipboard untouched and
// sends no keystroke.
func (s *Sink) Insert(text string) error {
	if text == "" {
		return nil
	}
	prev, prevErr := s.takePrevious()
	if prevErr == nil && prev != "" && prev != text {
		defer s.schedule(prev)
	}

	if err := s.copy(text); err != nil {
		return fmt.Errorf("copying to clipboard: %w", err)
	}
	time.Sleep(s.settle)
	if err := s.paste(); err != nil {
		return fmt.Errorf("sending paste keystroke: %w", err)
	}
	return nil
}

// takePrevious returns what the user had on the clipboard. While a restore
// is pending the clipboard still holds the last transcript, so the pending
// restore is cancelled and its contents reused.
func (s *Sink) takePrevious() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r := s.pending; r != nil {
		close(r.cancel)
		s.pending = nil
		return r.prev, nil
	}
	return s.read()
}

func (s *Sink) schedule(prev string) {
	r := &pendingRestore{prev: prev, cancel: make(chan struct{})}
	delay := s.restore
	s.mu.Lock()
	s.pending = r
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-r.cancel:
			return
		case <-t.C:
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.pending != r {
			return
		}
		s.pending = nil
		s.copy(r.prev)
	}()
}

// Close waits for pending clipboard restores.
func (s *Sink) Close() {
	s.wg.Wait()
}

// WriterSink writes each transcript as one line, for headless use.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Insert(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.w, text)
	return err
}
