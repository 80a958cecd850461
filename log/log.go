package log

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog        zerolog.Logger
	diagFile       *os.File
	transcribeFile *os.File
	crashFile      *os.File
	logMu          sync.Mutex
	logReady       atomic.Bool
	pid            int
	dir            string
)

// Metrics describes one transcription request.
type Metrics struct {
	Session     string
	Mode        string
	Format      string
	AudioLength time.Duration
	UploadKB    float64
	DNS         time.Duration
	TLS         time.Duration
	TTFB        time.Duration
	Total       time.Duration
	ConnReused  bool
	TLSProtocol string
	RateLimit   string
	EncodeTime  time.Duration
	// VADFrames and VADSpeech count voice detector frames, when one ran.
	VADFrames int
	VADSpeech int
}

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		return absPath(flagPath)
	}

	// Priority 2: VOXKEY_LOG_PATH environment variable
	if envPath := os.Getenv("VOXKEY_LOG_PATH"); envPath != "" {
		return absPath(envPath)
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func absPath(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady.Store(true)
	return nil
}

// KeepTranscripts starts appending transcribed text to
// transcribe_log.txt, readable by the owner only. Transcripts are not
// written anywhere unless this is called after Init.
func KeepTranscripts() error {
	logMu.Lock()
	defer logMu.Unlock()
	if transcribeFile != nil {
		return nil
	}
	path := filepath.Join(dir, "transcribe_log.txt")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	// An existing file keeps its old mode otherwise.
	if err := f.Chmod(0600); err != nil {
		f.Close()
		return err
	}
	transcribeFile = f
	return nil
}

// CaptureCrashes routes fatal runtime errors to crash_log.txt.
func CaptureCrashes() error {
	logMu.Lock()
	defer logMu.Unlock()
	f, err := os.OpenFile(filepath.Join(dir, "crash_log.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if err := debug.SetCrashOutput(f, debug.CrashOptions{}); err != nil {
		f.Close()
		return err
	}
	crashFile = f
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	logReady.Store(false)
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if transcribeFile != nil {
		transcribeFile.Close()
		transcribeFile = nil
	}
	if crashFile != nil {
		debug.SetCrashOutput(nil, debug.CrashOptions{})
		crashFile.Close()
		crashFile = nil
	}
}

func Info(msg string) {
	if logReady.Load() {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady.Load() {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady.Load() {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady.Load() {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady.Load() {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady.Load() {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func Transcription(m Metrics) {
	if !logReady.Load() {
		return
	}

	connStatus := "new"
	if m.ConnReused {
		connStatus = "reused"
	}

	ev := diagLog.Info().
		Str("session", m.Session).
		Str("mode", m.Mode).
		Str("format", m.Format).
		Str("conn", connStatus)
	if m.TLSProtocol != "" {
		ev = ev.Str("tls_proto", m.TLSProtocol)
	}
	if m.EncodeTime > 0 {
		ev = ev.Dur("encode_ms", m.EncodeTime)
	}
	if m.VADFrames > 0 {
		ev = ev.Int("vad_frames", m.VADFrames).Int("vad_speech", m.VADSpeech)
	}
	ev.Float64("audio_s", m.AudioLength.Seconds()).
		Float64("upload_kb", m.UploadKB).
		Dur("dns_ms", m.DNS).
		Dur("tls_ms", m.TLS).
		Dur("ttfb_ms", m.TTFB).
		Dur("total_ms", m.Total).
		Str("rate_limit", m.RateLimit).
		Msg("transcription")
}

func TranscriptionText(text string) {
	if !logReady.Load() {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	if transcribeFile == nil {
		return
	}
	line := fmt.Sprintf("%s\t[%d]\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, text)
	transcribeFile.WriteString(line)
}

func SessionStart(id, mode string) {
	if !logReady.Load() {
		return
	}
	diagLog.Info().
		Str("session", id).
		Str("mode", mode).
		Msg("session_start")
}

// SessionEnd records how a session finished. outcome is "inserted",
// "discarded" or "cancelled"; err is nil on success.
func SessionEnd(id, outcome string, elapsed time.Duration, err error) {
	if !logReady.Load() {
		return
	}
	ev := diagLog.Info()
	if err != nil {
		ev = diagLog.Warn().Err(err)
	}
	ev.Str("session", id).
		Str("outcome", outcome).
		Dur("elapsed_ms", elapsed).
		Msg("session_end")
}
