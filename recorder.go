package main

import (
	"errors"
	"fmt"
	"os/exec"

	"voxkey/audio"
	"voxkey/config"
	"voxkey/log"
	"voxkey/session"
)

// backend is a recorder plus the check that must pass before each
// recording starts.
type backend struct {
	rec    audio.Recorder
	permit session.PermissionChecker
	close  func()
}

// newBackend builds the configured capture backend. close releases any
// audio context it opened.
func newBackend(cfg *config.Config) (*backend, error) {
	if cfg.Audio.Backend != "native" {
		fc := cfg.FFmpeg()
		log.Infof("recorder: ffmpeg %s input=%s:%s", fc.Command, fc.InputFormat, fc.InputDevice)
		return &backend{
			rec:    audio.NewFFmpegRecorder(fc),
			permit: ffmpegPermission(fc.Command),
			close:  func() {},
		}, nil
	}

	ctx, err := audio.NewContext()
	if err != nil {
		return nil, fmt.Errorf("audio context: %w", err)
	}
	var dev *audio.DeviceInfo
	if cfg.Audio.Device != "" {
		dev, err = audio.FindDevice(ctx, cfg.Audio.Device)
		if err != nil || dev == nil {
			log.Warnf("device %q unavailable, using default: %v", cfg.Audio.Device, err)
			dev = nil
		}
	}
	name := "system default"
	if dev != nil {
		name = dev.Name
		if audio.IsBluetooth(dev.Name) {
			log.Warn("bluetooth input selected; headset profile lowers quality")
		}
	}
	log.Info("recorder: native device=" + name)

	rec := audio.NewNativeRecorder(ctx, audio.NativeConfig{
		Device:      dev,
		SampleRate:  cfg.Audio.SampleRate,
		ScratchDir:  cfg.ScratchDir(),
		DetectVoice: true,
	})
	return &backend{rec: rec, permit: nativePermission(ctx), close: ctx.Close}, nil
}

// ffmpegPermission refuses to record when the ffmpeg executable cannot
// be found.
func ffmpegPermission(command string) session.PermissionChecker {
	return func() error {
		if _, err := exec.LookPath(command); err != nil {
			return fmt.Errorf("ffmpeg not available: %w", err)
		}
		return nil
	}
}

// nativePermission refuses to record when the audio server lists no
// input at all, which is how a denied or missing microphone shows up.
func nativePermission(ctx audio.Context) session.PermissionChecker {
	return func() error {
		devices, err := ctx.Devices()
		if err != nil {
			return fmt.Errorf("listing inputs: %w", err)
		}
		if len(devices) == 0 {
			return errors.New("no audio input available")
		}
		return nil
	}
}

// pickDevice runs the interactive picker and returns the chosen name.
func pickDevice() (string, error) {
	ctx, err := audio.NewContext()
	if err != nil {
		return "", fmt.Errorf("initializing audio: %w", err)
	}
	defer ctx.Close()
	dev, err := audio.SelectDevice(ctx)
	if err != nil {
		return "", err
	}
	return dev.Name, nil
}
