package log

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func setupLogDir(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	SetDir(tmp)
	t.Cleanup(func() { Close(); SetDir("") })
	return tmp
}

func TestResolveDirFlag(t *testing.T) {
	got, err := ResolveDir("/tmp/mylog")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/mylog" {
		t.Errorf("got %q, want /tmp/mylog", got)
	}
}

func TestResolveDirFlagRelative(t *testing.T) {
	got, err := ResolveDir("logs")
	if err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(wd, "logs")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolveDirEnv(t *testing.T) {
	t.Setenv("VOXKEY_LOG_PATH", "/tmp/voxkey-env-log")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/voxkey-env-log" {
		t.Errorf("got %q, want /tmp/voxkey-env-log", got)
	}
}

func TestResolveDirDefault(t *testing.T) {
	t.Setenv("VOXKEY_LOG_PATH", "")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "voxkey") {
		t.Errorf("default dir %q does not mention voxkey", got)
	}
}

func TestInitCreatesFiles(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(tmp, "diagnostics_log.txt")); err != nil {
		t.Errorf("diagnostics_log.txt not created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmp, "transcribe_log.txt")); !os.IsNotExist(err) {
		t.Errorf("transcribe_log.txt created without KeepTranscripts: %v", err)
	}
}

func TestTranscriptsOffByDefault(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}
	TranscriptionText("secret words")
	Close()

	entries, err := os.ReadDir(tmp)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		data, _ := os.ReadFile(filepath.Join(tmp, e.Name()))
		if strings.Contains(string(data), "secret words") {
			t.Errorf("%s holds the transcript", e.Name())
		}
	}
}

func TestKeepTranscriptsOwnerOnly(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}
	tmp := setupLogDir(t)
	path := filepath.Join(tmp, "transcribe_log.txt")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}

	if err := Init(); err != nil {
		t.Fatal(err)
	}
	if err := KeepTranscripts(); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("transcribe_log.txt mode = %o, want 600", perm)
	}
}

func TestTranscriptionText(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}
	if err := KeepTranscripts(); err != nil {
		t.Fatal(err)
	}

	TranscriptionText("hello world")

	data, err := os.ReadFile(filepath.Join(tmp, "transcribe_log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	line := string(data)
	if !strings.Contains(line, "hello world") {
		t.Errorf("transcribe_log.txt missing text, got: %q", line)
	}
	// format: "2006-01-02 15:04:05\t[pid]\ttext\n"
	if strings.Count(line, "\t") != 2 {
		t.Errorf("expected tab-separated format, got: %q", line)
	}
}

func TestSessionEvents(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	SessionStart("abc-123", "summarize")
	Transcription(Metrics{Session: "abc-123", Mode: "summarize", Format: "m4a", TTFB: 120 * time.Millisecond,
		EncodeTime: 15 * time.Millisecond, VADFrames: 50, VADSpeech: 12})
	SessionEnd("abc-123", "discarded", time.Second, errors.New("transcription API error 401"))

	data, err := os.ReadFile(filepath.Join(tmp, "diagnostics_log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, want := range []string{"session_start", "session=abc-123", "mode=summarize", "transcription", "format=m4a", "vad_frames=50", "vad_speech=12", "encode_ms=", "session_end", "outcome=discarded", "401"} {
		if !strings.Contains(out, want) {
			t.Errorf("diagnostics log missing %q:\n%s", want, out)
		}
	}
}

func TestLoggingBeforeInitIsNoop(t *testing.T) {
	Close()
	Info("dropped")
	SessionStart("x", "normal")
	TranscriptionText("dropped")
}

func TestCloseIdempotent(t *testing.T) {
	setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}
	Close()
	Close() // should not panic
}
