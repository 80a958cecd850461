package encoder

import "time"

const (
	SampleRate    = 44100
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

// Duration converts a frame count at the given rate into wall time.
func Duration(frames uint64, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(frames) / float64(sampleRate) * float64(time.Second))
}
