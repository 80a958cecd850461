package audio

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"voxkey/encoder"
)

type NativeConfig struct {
	Device     *DeviceInfo // nil selects the default source
	SampleRate int
	ScratchDir string
	// DetectVoice runs a voice activity detector alongside the encoder
	// and marks artifacts with no speech as Silent.
	DetectVoice bool
}

// NativeRecorder captures through a Context and streams FLAC to disk.
// The device is opened on Start and released on Stop.
type NativeRecorder struct {
	ctx Context
	cfg NativeConfig

	mu     sync.Mutex
	active *nativeCapture
}

type nativeCapture struct {
	handle *Handle
	dev    CaptureDevice
	file   *os.File
	enc    *encoder.FlacEncoder
	vad    *voiceDetector

	blocks     chan []int16
	encodeDone chan struct{}
	encodeErr  error

	bufMu   sync.Mutex
	pending []int16
	stopped bool
}

func NewNativeRecorder(ctx Context, cfg NativeConfig) *NativeRecorder {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = encoder.SampleRate
	}
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = DefaultScratchDir()
	}
	return &NativeRecorder{ctx: ctx, cfg: cfg}
}

func (r *NativeRecorder) Start() (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return nil, ErrCaptureActive
	}

	f, err := createArtifactFile(r.cfg.ScratchDir, FormatFLAC)
	if err != nil {
		return nil, deviceUnavailable(err)
	}
	fail := func(err error) (*Handle, error) {
		f.Close()
		os.Remove(f.Name())
		return nil, deviceUnavailable(err)
	}

	enc, err := encoder.NewFlac(f, r.cfg.SampleRate)
	if err != nil {
		return fail(fmt.Errorf("flac encoder: %w", err))
	}
	dev, err := r.ctx.NewCapture(r.cfg.Device, CaptureConfig{
		SampleRate: uint32(r.cfg.SampleRate),
		Channels:   encoder.Channels,
	})
	if err != nil {
		enc.Close()
		return fail(err)
	}

	c := &nativeCapture{
		handle:     newHandle(f.Name()),
		dev:        dev,
		file:       f,
		enc:        enc,
		blocks:     make(chan []int16, 64),
		encodeDone: make(chan struct{}),
	}
	if r.cfg.DetectVoice {
		if v, err := newVoiceDetector(r.cfg.SampleRate); err == nil {
			c.vad = v
		}
	}
	go c.encodeLoop()

	dev.SetCallback(c.onData)
	if err := dev.Start(); err != nil {
		c.finish()
		dev.Close()
		enc.Close()
		return fail(err)
	}

	r.active = c
	return c.handle, nil
}

func (r *NativeRecorder) Stop(h *Handle) (*Artifact, error) {
	r.mu.Lock()
	c := r.active
	if c == nil || h == nil || c.handle != h {
		r.mu.Unlock()
		return nil, ErrNotCapturing
	}
	r.active = nil
	r.mu.Unlock()

	c.dev.Stop()
	c.dev.ClearCallback()
	c.finish()
	c.dev.Close()

	encErr := c.enc.Close()
	c.file.Close()
	frames := c.enc.TotalFrames()

	switch {
	case c.encodeErr != nil:
		os.Remove(h.path)
		return nil, fmt.Errorf("encoding: %w", c.encodeErr)
	case encErr != nil:
		os.Remove(h.path)
		return nil, fmt.Errorf("finalizing flac: %w", encErr)
	case frames == 0:
		os.Remove(h.path)
		return nil, errors.New("recording produced no audio")
	}

	info, err := os.Stat(h.path)
	if err != nil {
		os.Remove(h.path)
		return nil, err
	}
	a := &Artifact{
		Path:       h.path,
		Size:       info.Size(),
		Format:     FormatFLAC,
		Duration:   encoder.Duration(frames, r.cfg.SampleRate),
		CreatedAt:  h.started,
		EncodeTime: c.enc.EncodeTime(),
	}
	if c.vad != nil {
		a.Silent = !c.vad.VoiceDetected()
		a.VADFrames, a.VADSpeech = c.vad.Stats()
	}
	return a, nil
}

// onData runs on the audio thread. Blocks are sent while holding bufMu
// so that nothing is sent after finish closes the channel.
func (c *nativeCapture) onData(data []byte, frameCount uint32) {
	if c.vad != nil {
		c.vad.Process(data)
	}

	c.bufMu.Lock()
	defer c.bufMu.Unlock()
	if c.stopped {
		return
	}
	for i := 0; i+1 < len(data); i += 2 {
		c.pending = append(c.pending, int16(data[i])|int16(data[i+1])<<8)
	}
	for len(c.pending) >= encoder.BlockSize {
		block := make([]int16, encoder.BlockSize)
		copy(block, c.pending[:encoder.BlockSize])
		c.pending = c.pending[encoder.BlockSize:]
		select {
		case c.blocks <- block:
		default:
			// encoder fell behind; dropping beats blocking the audio thread
		}
	}
}

// finish flushes the partial block, closes the block channel and waits
// for the encoder goroutine to drain it.
func (c *nativeCapture) finish() {
	c.bufMu.Lock()
	if !c.stopped {
		c.stopped = true
		if len(c.pending) > 0 {
			c.blocks <- c.pending
			c.pending = nil
		}
		close(c.blocks)
	}
	c.bufMu.Unlock()
	<-c.encodeDone
}

func (c *nativeCapture) encodeLoop() {
	defer close(c.encodeDone)
	for block := range c.blocks {
		if c.encodeErr != nil {
			continue
		}
		t := time.Now()
		if err := c.enc.EncodeBlock(block); err != nil {
			c.encodeErr = err
		}
		c.enc.AddEncodeTime(time.Since(t))
	}
}
