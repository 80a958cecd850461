package transcriber

import (
	"context"
	"sync"

	"voxkey/audio"
)

// Fake returns a canned outcome. When Block is set, Transcribe waits for
// it to be closed (or ctx to end) before answering.
type Fake struct {
	Text  string
	Err   error
	Block chan struct{}

	mu    sync.Mutex
	calls []FakeCall
}

type FakeCall struct {
	Path string
	Mode Mode
}

func NewFake(text string, err error) *Fake {
	return &Fake{Text: text, Err: err}
}

func (f *Fake) Transcribe(ctx context.Context, a *audio.Artifact, mode Mode) (*Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, FakeCall{Path: a.Path, Mode: mode})
	block := f.Block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, &Error{Kind: KindNetwork, Err: ctx.Err()}
		}
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return &Result{Text: f.Text, Metrics: &NetworkMetrics{}, RateLimit: "?/?"}, nil
}

func (f *Fake) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeCall(nil), f.calls...)
}
