//go:build !linux

package beep

import (
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

const (
	startDuration = 0.03
	endDuration   = 0.05
)

var (
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device

	// Playback state, read from the device callback
	playing atomic.Pointer[[]byte]
	playPos atomic.Uint32
	playMu  sync.Mutex
)

func openDevice() error {
	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = 1
	config.SampleRate = sampleRate

	var err error
	device, err = malgo.InitDevice(malgoCtx.Context, config, malgo.DeviceCallbacks{
		Data: dataCallback,
	})
	return err
}

func initDevice() {
	var err error
	malgoCtx, err = malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		malgoCtx = nil
		return
	}
	if err := openDevice(); err != nil {
		malgoCtx.Uninit()
		malgoCtx = nil
	}
}

func dataCallback(pOutput, _ []byte, frameCount uint32) {
	clear(pOutput)
	samples := playing.Load()
	if samples == nil {
		return
	}

	pos := playPos.Load()
	total := uint32(len(*samples))
	if pos >= total {
		playing.Store(nil)
		return
	}
	n := min(frameCount*2, total-pos)
	copy(pOutput[:n], (*samples)[pos:pos+n])
	playPos.Store(pos + n)
}

func toBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}

func play(samples []int16) {
	if malgoCtx == nil || len(samples) == 0 {
		return
	}
	buf := toBytes(samples)

	playMu.Lock()
	defer playMu.Unlock()

	if device == nil {
		return
	}

	// Stop first so a new cue restarts cleanly (no-op if not running)
	device.Stop()
	playPos.Store(0)
	playing.Store(&buf)

	if err := device.Start(); err != nil {
		// Recreate the device; macOS drops it across sleep/wake
		device.Uninit()
		if err := openDevice(); err != nil {
			device = nil
			playing.Store(nil)
			return
		}
		if err := device.Start(); err != nil {
			playing.Store(nil)
		}
	}
}
