// Package beep plays short audible cues for recording start, stop and
// failure. Playback errors are swallowed; a missing sound device must
// never affect a session.
package beep

import (
	"math"
	"sync"
	"sync/atomic"
)

var disabled atomic.Bool

func Disable() { disabled.Store(true) }

const (
	sampleRate = 44100

	// Start beep: high pitch, short
	startFreq   = 1200
	startVolume = 0.5
	startDecay  = 60

	// End beep: medium pitch, slightly longer
	endFreq   = 900
	endVolume = 0.5
	endDecay  = 40

	// Error beep: low pitch double-beep
	errorFreq   = 350
	errorVolume = 0.6
	errorDecay  = 30
)

var (
	startSamples []int16
	endSamples   []int16
	errorSamples []int16
	soundOnce    sync.Once
)

func initSamples() {
	startSamples = generateTick(sampleRate, startFreq, startDuration, startVolume, startDecay)
	endSamples = generateTick(sampleRate, endFreq, endDuration, endVolume, endDecay)
	errorSamples = generateDoubleBeep(sampleRate, errorFreq, 0.08, 0.05, errorVolume, errorDecay)
	initDevice()
}

// generateTick returns a mono sine tick with an exponential decay.
func generateTick(sampleRate int, freq, duration, volume, decay float64) []int16 {
	n := int(float64(sampleRate) * duration)
	samples := make([]int16, n)
	for i := range samples {
		t := float64(i) / float64(sampleRate)
		envelope := math.Exp(-t * decay)
		samples[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
	}
	return samples
}

func generateDoubleBeep(sampleRate int, freq, beepDur, gapDur, volume, decay float64) []int16 {
	beep := generateTick(sampleRate, freq, beepDur, volume, decay)
	gap := make([]int16, int(float64(sampleRate)*gapDur))
	result := make([]int16, 0, len(beep)*2+len(gap))
	result = append(result, beep...)
	result = append(result, gap...)
	result = append(result, beep...)
	return result
}

// Init prepares samples and the output device ahead of the first cue.
func Init() {
	soundOnce.Do(initSamples)
}

func PlayStart() { cue(&startSamples) }
func PlayEnd()   { cue(&endSamples) }
func PlayError() { cue(&errorSamples) }

func cue(samples *[]int16) {
	if disabled.Load() {
		return
	}
	soundOnce.Do(initSamples)
	play(*samples)
}
