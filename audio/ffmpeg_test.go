//go:build !windows

package audio

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

// fakeFFmpeg writes a shell script standing in for ffmpeg. The output
// path is the last argument.
func fakeFFmpeg(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\nfor out; do :; done\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestFFmpeg(t *testing.T, body string) (*FFmpegRecorder, string) {
	t.Helper()
	dir := t.TempDir()
	return NewFFmpegRecorder(FFmpegConfig{
		Command:      fakeFFmpeg(t, body),
		InputFormat:  "pulse",
		InputDevice:  "default",
		ScratchDir:   dir,
		StartupGrace: 100 * time.Millisecond,
		StopTimeout:  500 * time.Millisecond,
	}), dir
}

func scratchFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

const recordingScript = `trap 'printf m4a-data > "$out"; exit 255' INT
while :; do sleep 0.02; done`

func TestFFmpegArgs(t *testing.T) {
	r := NewFFmpegRecorder(FFmpegConfig{InputFormat: "pulse", InputDevice: "default"})
	got := r.args("/tmp/voice_recording_1.m4a")
	want := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "pulse", "-i", "default",
		"-ac", "1", "-ar", "44100",
		"-c:a", "aac", "-b:a", "64k",
		"-f", "mp4", "/tmp/voice_recording_1.m4a",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("args =\n%v\nwant\n%v", got, want)
	}
}

func TestFFmpegRecorderStartStop(t *testing.T) {
	rec, dir := newTestFFmpeg(t, recordingScript)

	h, err := rec.Start()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rec.Start(); !errors.Is(err, ErrCaptureActive) {
		t.Errorf("second Start: err = %v, want ErrCaptureActive", err)
	}

	art, err := rec.Stop(h)
	if err != nil {
		t.Fatal(err)
	}
	if art.Format != FormatM4A || art.Size != int64(len("m4a-data")) {
		t.Errorf("artifact = %+v", art)
	}
	if !strings.HasPrefix(art.Name(), "voice_recording_") || filepath.Dir(art.Path) != dir {
		t.Errorf("unexpected path %s", art.Path)
	}

	if _, err := rec.Stop(h); !errors.Is(err, ErrNotCapturing) {
		t.Errorf("double Stop: err = %v, want ErrNotCapturing", err)
	}
	if err := art.Remove(); err != nil {
		t.Fatal(err)
	}
	if files := scratchFiles(t, dir); len(files) != 0 {
		t.Errorf("scratch dir not empty: %v", files)
	}
}

func TestFFmpegRecorderDeviceFailure(t *testing.T) {
	rec, dir := newTestFFmpeg(t, `echo "default: No such device" >&2; exit 1`)

	_, err := rec.Start()
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("err = %v, want ErrDeviceUnavailable", err)
	}
	if !strings.Contains(err.Error(), "No such device") {
		t.Errorf("error lost ffmpeg stderr: %v", err)
	}
	if files := scratchFiles(t, dir); len(files) != 0 {
		t.Errorf("scratch dir not empty: %v", files)
	}
}

func TestFFmpegRecorderMissingBinary(t *testing.T) {
	dir := t.TempDir()
	rec := NewFFmpegRecorder(FFmpegConfig{
		Command:    filepath.Join(dir, "no-ffmpeg"),
		ScratchDir: dir,
	})
	if _, err := rec.Start(); !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("err = %v, want ErrDeviceUnavailable", err)
	}
}

func TestFFmpegRecorderStopFailures(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{"empty output", `trap 'exit 0' INT
while :; do sleep 0.02; done`},
		{"ignores interrupt", `trap '' INT
while :; do sleep 0.02; done`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, dir := newTestFFmpeg(t, tt.script)
			h, err := rec.Start()
			if err != nil {
				t.Fatal(err)
			}
			if _, err := rec.Stop(h); err == nil {
				t.Fatal("expected Stop error")
			}
			if files := scratchFiles(t, dir); len(files) != 0 {
				t.Errorf("scratch dir not empty: %v", files)
			}
			// Recorder is usable again after a failed stop.
			if h, err := rec.Start(); err != nil {
				t.Errorf("restart: %v", err)
			} else {
				rec.Stop(h)
			}
		})
	}
}
