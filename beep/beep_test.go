package beep

import (
	"math"
	"testing"
)

func TestGenerateTick(t *testing.T) {
	s := generateTick(sampleRate, 1000, 0.1, 0.5, 40)
	if len(s) != sampleRate/10 {
		t.Fatalf("len = %d, want %d", len(s), sampleRate/10)
	}
	peak := func(xs []int16) float64 {
		var m float64
		for _, x := range xs {
			m = math.Max(m, math.Abs(float64(x)))
		}
		return m
	}
	head, tail := peak(s[:len(s)/4]), peak(s[len(s)*3/4:])
	if head > 32767*0.5+1 {
		t.Errorf("peak %v exceeds volume", head)
	}
	if tail >= head {
		t.Errorf("tick does not decay: head %v tail %v", head, tail)
	}
}

func TestGenerateDoubleBeep(t *testing.T) {
	beep := generateTick(sampleRate, errorFreq, 0.08, errorVolume, errorDecay)
	s := generateDoubleBeep(sampleRate, errorFreq, 0.08, 0.05, errorVolume, errorDecay)
	gap := int(float64(sampleRate) * 0.05)
	if len(s) != 2*len(beep)+gap {
		t.Fatalf("len = %d, want %d", len(s), 2*len(beep)+gap)
	}
	for i := len(beep); i < len(beep)+gap; i++ {
		if s[i] != 0 {
			t.Fatalf("gap not silent at %d", i)
		}
	}
}

func TestDisabledIsSilent(t *testing.T) {
	Disable()
	// Must return without touching a sound device.
	PlayStart()
	PlayEnd()
	PlayError()
}
