package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

var (
	// ErrDeviceUnavailable wraps every failure to open or configure the
	// input device or its encoder.
	ErrDeviceUnavailable = errors.New("audio input device unavailable")
	// ErrCaptureActive is returned by Start while a capture is outstanding.
	ErrCaptureActive = errors.New("capture already active")
	// ErrNotCapturing is returned by Stop for a stale handle or a double stop.
	ErrNotCapturing = errors.New("no capture active")
)

const artifactPrefix = "voice_recording_"

type Format string

const (
	FormatM4A  Format = "m4a"
	FormatFLAC Format = "flac"
)

// ContentType is the MIME type sent with the multipart file part.
func (f Format) ContentType() string {
	switch f {
	case FormatM4A:
		return "audio/m4a"
	case FormatFLAC:
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}

// Artifact is one finished recording on disk. Whoever receives it from
// Stop owns the file and must Remove it.
type Artifact struct {
	Path      string
	Size      int64
	Format    Format
	Duration  time.Duration
	CreatedAt time.Time
	// Silent is set when a voice detector ran and heard no speech.
	Silent bool

	// Set by the native backend only.
	EncodeTime time.Duration
	VADFrames  int
	VADSpeech  int
}

func (a *Artifact) Name() string { return filepath.Base(a.Path) }

// Remove deletes the file. A file that is already gone is not an error.
func (a *Artifact) Remove() error {
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Handle identifies one outstanding capture.
type Handle struct {
	id      uint64
	path    string
	started time.Time
}

func (h *Handle) Path() string         { return h.path }
func (h *Handle) StartedAt() time.Time { return h.started }

var handleSeq atomic.Uint64

func newHandle(path string) *Handle {
	return &Handle{id: handleSeq.Add(1), path: path, started: time.Now()}
}

// Recorder owns the microphone. At most one handle is outstanding;
// Start while capturing fails with ErrCaptureActive.
type Recorder interface {
	Start() (*Handle, error)
	Stop(h *Handle) (*Artifact, error)
}

func deviceUnavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
}

// DefaultScratchDir is the per-user cache directory recordings go to.
func DefaultScratchDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "voxkey")
	}
	return filepath.Join(os.TempDir(), "voxkey")
}

// createArtifactFile creates a new, empty file named after the current
// time in milliseconds. On collision the timestamp is bumped.
func createArtifactFile(dir string, format Format) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating scratch dir: %w", err)
	}
	ms := time.Now().UnixMilli()
	for range 100 {
		name := artifactPrefix + strconv.FormatInt(ms, 10) + "." + string(format)
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, err
		}
		ms++
	}
	return nil, fmt.Errorf("no free recording name in %s", dir)
}

// SweepStale removes recordings left behind by a process that died
// mid-session. It returns how many files were removed.
func SweepStale(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	removed := 0
	var errs []error
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), artifactPrefix) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
