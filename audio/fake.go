package audio

import (
	"fmt"
	"os"
	"sync"
	"time"
)

const (
	fakeFrameSize     = 1024
	fakeBytesPerFrame = 2 // 16-bit mono
)

// FakeContext replays PCM from a WAV file (or raw buffer) as if it came
// from a microphone. Used by -test mode and by recorder tests.
type FakeContext struct {
	pcm      []byte
	realtime bool

	// StartErr, when set, is returned by every capture's Start.
	StartErr error
	// OpenErr, when set, is returned by NewCapture.
	OpenErr error

	mu   sync.Mutex
	last *FakeCapture
}

func NewFakeContext(wavPath string, realtime bool) (*FakeContext, error) {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, err
	}
	if len(data) < WAVHeaderSize {
		return nil, fmt.Errorf("%s: not a WAV file", wavPath)
	}
	return &FakeContext{pcm: data[WAVHeaderSize:], realtime: realtime}, nil
}

func NewFakeContextPCM(pcm []byte) *FakeContext {
	return &FakeContext{pcm: pcm}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	rate := config.SampleRate
	if rate == 0 {
		rate = 16000
	}
	c := &FakeCapture{
		pcm:       f.pcm,
		realtime:  f.realtime,
		rate:      rate,
		startErr:  f.StartErr,
		audioDone: make(chan struct{}),
	}
	f.mu.Lock()
	f.last = c
	f.mu.Unlock()
	return c, nil
}

// Last returns the most recently opened capture, or nil.
func (f *FakeContext) Last() *FakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

type FakeCapture struct {
	pcm      []byte
	realtime bool
	rate     uint32
	startErr error

	mu        sync.Mutex
	cb        DataCallback
	stopCh    chan struct{}
	feedDone  chan struct{}
	audioDone chan struct{}
	starts    int
}

// AudioDone is closed once the whole buffer has been delivered or the
// capture stops, whichever comes first.
func (f *FakeCapture) AudioDone() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.audioDone
}

// Starts reports how many times Start succeeded.
func (f *FakeCapture) Starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return "fake" }

func (f *FakeCapture) callback() DataCallback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *FakeCapture) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	if f.stopCh != nil {
		f.mu.Unlock()
		return fmt.Errorf("fake capture already started")
	}
	f.starts++
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})
	stop, feedDone, audioDone := f.stopCh, f.feedDone, f.audioDone
	f.mu.Unlock()

	chunkBytes := fakeFrameSize * fakeBytesPerFrame
	interval := time.Duration(fakeFrameSize) * time.Second / time.Duration(f.rate)

	go func() {
		defer close(feedDone)
		silence := make([]byte, chunkBytes)
		pos := 0
		finished := false
		for {
			select {
			case <-stop:
				if !finished {
					close(audioDone)
				}
				return
			default:
			}

			cb := f.callback()
			if cb != nil && pos < len(f.pcm) {
				end := min(pos+chunkBytes, len(f.pcm))
				chunk := make([]byte, end-pos)
				copy(chunk, f.pcm[pos:end])
				cb(chunk, uint32(len(chunk)/fakeBytesPerFrame))
				pos = end
				if !f.realtime {
					continue
				}
			} else if cb != nil {
				if !finished {
					finished = true
					close(audioDone)
				}
				cb(silence, fakeFrameSize)
			}

			wait := interval
			if !f.realtime {
				wait = time.Millisecond
			}
			select {
			case <-stop:
				if !finished {
					close(audioDone)
				}
				return
			case <-time.After(wait):
			}
		}
	}()

	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	stop, feedDone := f.stopCh, f.feedDone
	f.stopCh, f.feedDone = nil, nil
	f.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-feedDone
	f.mu.Lock()
	f.audioDone = make(chan struct{}) // reset for replay
	f.mu.Unlock()
}

func (f *FakeCapture) Close() { f.Stop() }
