package audio

import (
	"sync"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"
)

const (
	vadMode       = 3
	vadRate       = 16000
	vadFrameMs    = 20
	vadFrameBytes = vadRate * vadFrameMs / 1000 * 2 // 640 bytes
	vadDebounce   = 3                               // consecutive speech frames to confirm voice
)

// voiceDetector classifies 16-bit mono PCM at an arbitrary source rate.
// webrtcvad only accepts 8/16/32/48 kHz, so input is decimated to 16 kHz.
type voiceDetector struct {
	vad  *webrtcvad.VAD
	step float64

	mu            sync.Mutex
	buf           []byte
	pos           float64 // index of the next source sample to keep
	seen          int64
	voiceDetected bool
	speechRun     int
	totalFrames   int
	speechFrames  int
}

func newVoiceDetector(sourceRate int) (*voiceDetector, error) {
	v, err := webrtcvad.New()
	if err != nil {
		return nil, err
	}
	if err := v.SetMode(vadMode); err != nil {
		return nil, err
	}
	if sourceRate <= 0 {
		sourceRate = vadRate
	}
	return &voiceDetector{vad: v, step: float64(sourceRate) / vadRate}, nil
}

func (p *voiceDetector) Process(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i+1 < len(data); i += 2 {
		if float64(p.seen) >= p.pos {
			p.buf = append(p.buf, data[i], data[i+1])
			p.pos += p.step
		}
		p.seen++
	}

	for len(p.buf) >= vadFrameBytes {
		frame := p.buf[:vadFrameBytes]
		active, err := p.vad.Process(vadRate, frame)
		p.buf = p.buf[vadFrameBytes:]
		if err != nil {
			continue
		}
		p.totalFrames++
		if active {
			p.speechFrames++
			p.speechRun++
			if p.speechRun >= vadDebounce {
				p.voiceDetected = true
			}
		} else {
			p.speechRun = 0
		}
	}
}

func (p *voiceDetector) VoiceDetected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.voiceDetected
}

func (p *voiceDetector) Stats() (total, speech int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalFrames, p.speechFrames
}
