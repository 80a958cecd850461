package main

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"voxkey/audio"
	"voxkey/beep"
	"voxkey/config"
	"voxkey/hotkey"
	"voxkey/log"
	"voxkey/session"
	"voxkey/transcriber"
)

// fakeTranscriptEnv, when set, replaces the API with a canned transcript.
const fakeTranscriptEnv = "VOXKEY_FAKE_TRANSCRIPT"

// runTestMode drives a real controller from stdin commands, with audio
// replayed from a WAV file instead of a microphone.
func runTestMode(cfg *config.Config, client transcriber.Client, wavPath string) int {
	beep.Disable()

	rate, err := wavRate(wavPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
		return 1
	}
	fakeCtx, err := audio.NewFakeContext(wavPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
		return 1
	}
	rec := audio.NewNativeRecorder(fakeCtx, audio.NativeConfig{
		SampleRate:  rate,
		ScratchDir:  cfg.ScratchDir(),
		DetectVoice: true,
	})

	if text, ok := os.LookupEnv(fakeTranscriptEnv); ok {
		client = transcriber.NewFake(text, nil)
	}

	sink, closeSink := newSink(cfg)
	defer closeSink()

	ctrl := session.New(rec, client, sink, session.WithPermission(nativePermission(fakeCtx)))
	events, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()
	cues := watchEvents(events, os.Stderr)

	hk := hotkey.NewFake()
	quit := make(chan os.Signal, 1)
	done := make(chan struct{})
	go func() {
		loop(ctrl, hk, cfg.DefaultMode(), quit)
		close(done)
	}()

	drive(os.Stdin, hk, ctrl, fakeCtx)

	quit <- os.Interrupt
	<-done
	ctrl.Close()
	cues.Wait()
	return 0
}

// drive sends hotkey edges and waits as the script says, until QUIT or
// end of input.
func drive(r io.Reader, hk *hotkey.FakeHotkey, ctrl *session.Controller, fakeCtx *audio.FakeContext) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		switch cmd {
		case "":
		case "KEYDOWN":
			hk.SimKeydown(hotkey.Dictate)
			settle(ctrl, session.StateIdle)
		case "KEYDOWN_SUMMARIZE":
			hk.SimKeydown(hotkey.Summarize)
			settle(ctrl, session.StateIdle)
		case "KEYUP":
			hk.SimKeyup(hotkey.Dictate)
			settle(ctrl, session.StateRecording)
		case "WAIT":
			ctrl.Wait()
		case "WAIT_AUDIO_DONE":
			if c := fakeCtx.Last(); c != nil {
				<-c.AudioDone()
			}
		case "QUIT":
			return
		default:
			if ms, ok := strings.CutPrefix(cmd, "SLEEP "); ok {
				if n, err := strconv.Atoi(ms); err == nil {
					time.Sleep(time.Duration(n) * time.Millisecond)
					continue
				}
			}
			log.Warnf("test mode: unknown command %q", cmd)
		}
	}
}

// settle gives the hotkey loop time to act on an edge, so the next
// command is not reordered with it.
func settle(ctrl *session.Controller, from session.State) {
	deadline := time.Now().Add(2 * time.Second)
	for ctrl.State() == from && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
}

// wavRate reads the sample rate from a canonical 44-byte WAV header.
func wavRate(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	hdr := make([]byte, audio.WAVHeaderSize)
	if _, err := io.ReadFull(f, hdr); err != nil {
		return 0, fmt.Errorf("%s: short header: %w", path, err)
	}
	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return 0, fmt.Errorf("%s: not a WAV file", path)
	}
	return int(binary.LittleEndian.Uint32(hdr[24:28])), nil
}
