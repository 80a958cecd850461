package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"voxkey/audio"
	"voxkey/log"
	"voxkey/transcriber"
)

const subscriberBuffer = 16

// Controller drives one session at a time through
// idle -> recording -> processing -> idle.
//
// All state lives behind mu. The transcription goroutine is the only
// other actor; it reports back by taking mu and checking that its
// session is still the current one.
type Controller struct {
	rec    audio.Recorder
	client transcriber.Client
	sink   TextSink
	permit PermissionChecker
	remove func(*audio.Artifact) error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	settled *sync.Cond
	state   State
	cur     *Session
	closed  bool
	subs    map[int]chan Event
	nextSub int
}

type Option func(*Controller)

// WithPermission installs a check run before every recording.
func WithPermission(p PermissionChecker) Option {
	return func(c *Controller) { c.permit = p }
}

// WithRemover replaces the function used to delete artifacts.
func WithRemover(fn func(*audio.Artifact) error) Option {
	return func(c *Controller) { c.remove = fn }
}

func New(rec audio.Recorder, client transcriber.Client, sink TextSink, opts ...Option) *Controller {
	c := &Controller{
		rec:    rec,
		client: client,
		sink:   sink,
		remove: (*audio.Artifact).Remove,
		subs:   make(map[int]chan Event),
	}
	c.settled = sync.NewCond(&c.mu)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Current returns a copy of the active session, if any.
func (c *Controller) Current() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return Session{}, false
	}
	return Session{ID: c.cur.ID, Mode: c.cur.Mode, StartedAt: c.cur.StartedAt}, true
}

// Begin starts recording a new session in the given mode.
func (c *Controller) Begin(mode transcriber.Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.state != StateIdle {
		return ErrBusy
	}
	if c.permit != nil {
		if err := c.permit(); err != nil {
			log.Warnf("recording refused: %v", err)
			return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
		}
	}

	h, err := c.rec.Start()
	if err != nil {
		log.Errorf("capture start failed: %v", err)
		return err
	}

	s := &Session{
		ID:        uuid.NewString(),
		Mode:      mode,
		StartedAt: time.Now(),
		handle:    h,
	}
	c.cur = s
	log.SessionStart(s.ID, mode.String())
	c.transition(s, StateRecording, nil, nil)
	return nil
}

// End stops recording and hands the artifact to the transcriber. A
// capture that yields no artifact ends the session without a request.
func (c *Controller) End() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.state != StateRecording {
		return ErrNotRecording
	}

	s := c.cur
	art, err := c.rec.Stop(s.handle)
	s.handle = nil
	if err != nil || art == nil {
		if err == nil {
			err = audio.ErrNotCapturing
		}
		c.cur = nil
		log.SessionEnd(s.ID, "discarded", time.Since(s.StartedAt), err)
		c.transition(s, StateIdle, nil, err)
		return nil
	}

	if art.Silent {
		log.Warnf("session %s: no speech detected in %s", s.ID, art.Duration.Round(time.Millisecond))
	}
	s.artifact = art
	c.transition(s, StateProcessing, nil, nil)

	c.wg.Add(1)
	go c.process(s)
	return nil
}

func (c *Controller) process(s *Session) {
	defer c.wg.Done()
	res, err := c.client.Transcribe(c.ctx, s.artifact, s.Mode)
	c.complete(s, res, err)
}

// complete runs on the transcription goroutine once the request is done.
func (c *Controller) complete(s *Session, res *transcriber.Result, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.discard(s)

	if c.cur != s {
		return
	}
	elapsed := time.Since(s.StartedAt)

	if c.closed {
		c.cur = nil
		log.SessionEnd(s.ID, "cancelled", elapsed, ErrClosed)
		c.transition(s, StateIdle, nil, ErrClosed)
		return
	}
	if err != nil {
		c.cur = nil
		log.Errorf("transcription failed: %v", err)
		log.SessionEnd(s.ID, "discarded", elapsed, err)
		c.transition(s, StateIdle, nil, err)
		return
	}

	logTranscription(s, res)

	// The sink runs unlocked so State and Begin stay responsive while it
	// pastes. The state is still Processing, so no other session can
	// start and s stays current.
	c.mu.Unlock()
	err = c.insert(res.Text)
	c.mu.Lock()
	c.cur = nil
	elapsed = time.Since(s.StartedAt)
	if err != nil {
		log.Errorf("text insertion failed: %v", err)
		log.SessionEnd(s.ID, "discarded", elapsed, err)
		c.transition(s, StateIdle, res, err)
		return
	}
	log.SessionEnd(s.ID, "inserted", elapsed, nil)
	c.transition(s, StateIdle, res, nil)
}

func (c *Controller) insert(text string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("text sink panicked: %v", r)
		}
	}()
	return c.sink.Insert(text)
}

// discard deletes the session's artifact. It runs exactly once per
// artifact, after everything else the session does.
func (c *Controller) discard(s *Session) {
	a := s.artifact
	if a == nil {
		return
	}
	s.artifact = nil
	if err := c.remove(a); err != nil {
		log.Warnf("removing %s: %v", a.Path, err)
	}
}

func logTranscription(s *Session, res *transcriber.Result) {
	m := log.Metrics{
		Session:     s.ID,
		Mode:        s.Mode.String(),
		Format:      string(s.artifact.Format),
		AudioLength: s.artifact.Duration,
		UploadKB:    float64(res.Upload) / 1024,
		RateLimit:   res.RateLimit,
		EncodeTime:  s.artifact.EncodeTime,
		VADFrames:   s.artifact.VADFrames,
		VADSpeech:   s.artifact.VADSpeech,
	}
	if nm := res.Metrics; nm != nil {
		m.DNS, m.TLS, m.TTFB, m.Total = nm.DNS, nm.TLS, nm.TTFB, nm.Total
		m.ConnReused, m.TLSProtocol = nm.ConnReused, nm.TLSProtocol
	}
	log.Transcription(m)
	log.TranscriptionText(res.Text)
}

// transition must be called with mu held.
func (c *Controller) transition(s *Session, to State, res *transcriber.Result, err error) {
	ev := Event{
		Session: s.ID,
		Mode:    s.Mode,
		From:    c.state,
		To:      to,
		Result:  res,
		Err:     err,
	}
	c.state = to
	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	c.settled.Broadcast()
}

// Subscribe returns a channel of state transitions and a function that
// cancels the subscription. Events are dropped for a subscriber whose
// buffer is full. The channel is closed by the cancel function or by
// Close.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Wait blocks while a transcription is in flight.
func (c *Controller) Wait() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.state == StateProcessing {
		c.settled.Wait()
	}
}

// Close tears the controller down. An active capture is stopped and its
// artifact deleted, an in-flight request is cancelled and its result
// dropped. Nothing reaches the sink after Close returns.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.cancel()

	if c.state == StateRecording {
		s := c.cur
		c.cur = nil
		if art, err := c.rec.Stop(s.handle); err == nil && art != nil {
			s.artifact = art
		}
		s.handle = nil
		log.SessionEnd(s.ID, "cancelled", time.Since(s.StartedAt), ErrClosed)
		c.transition(s, StateIdle, nil, ErrClosed)
		c.discard(s)
	}
	c.mu.Unlock()

	c.wg.Wait()

	c.mu.Lock()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	c.mu.Unlock()
	return nil
}
