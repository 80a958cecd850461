package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

type FFmpegConfig struct {
	Command     string // path or name of the ffmpeg binary
	InputFormat string // -f value for the input, e.g. pulse, avfoundation, dshow
	InputDevice string // -i value
	SampleRate  int
	Channels    int
	BitrateKbps int
	ScratchDir  string

	// StartupGrace is how long ffmpeg must stay alive for Start to
	// succeed. A missing device usually makes ffmpeg exit well inside it.
	StartupGrace time.Duration
	// StopTimeout bounds the wait for ffmpeg to finalize the container
	// after an interrupt before it is killed.
	StopTimeout time.Duration
}

// DefaultInput returns the ffmpeg input format and device for the
// platform's default microphone.
func DefaultInput() (format, device string) {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation", ":0"
	case "windows":
		return "dshow", "audio=default"
	default:
		return "pulse", "default"
	}
}

func (c FFmpegConfig) withDefaults() FFmpegConfig {
	if c.Command == "" {
		c.Command = "ffmpeg"
	}
	if c.InputFormat == "" || c.InputDevice == "" {
		f, d := DefaultInput()
		if c.InputFormat == "" {
			c.InputFormat = f
		}
		if c.InputDevice == "" {
			c.InputDevice = d
		}
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 44100
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	if c.BitrateKbps <= 0 {
		c.BitrateKbps = 64
	}
	if c.ScratchDir == "" {
		c.ScratchDir = DefaultScratchDir()
	}
	if c.StartupGrace <= 0 {
		c.StartupGrace = 250 * time.Millisecond
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 3 * time.Second
	}
	return c
}

// FFmpegRecorder captures to an AAC-in-MP4 (.m4a) file by running ffmpeg
// as a child process for the duration of each capture.
type FFmpegRecorder struct {
	cfg FFmpegConfig

	mu     sync.Mutex
	active *ffmpegCapture
}

type ffmpegCapture struct {
	handle  *Handle
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stderr  *bytes.Buffer
	waitErr chan error
}

func NewFFmpegRecorder(cfg FFmpegConfig) *FFmpegRecorder {
	return &FFmpegRecorder{cfg: cfg.withDefaults()}
}

func (r *FFmpegRecorder) args(path string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", r.cfg.InputFormat,
		"-i", r.cfg.InputDevice,
		"-ac", strconv.Itoa(r.cfg.Channels),
		"-ar", strconv.Itoa(r.cfg.SampleRate),
		"-c:a", "aac",
		"-b:a", strconv.Itoa(r.cfg.BitrateKbps) + "k",
		"-f", "mp4",
		path,
	}
}

func (r *FFmpegRecorder) Start() (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return nil, ErrCaptureActive
	}

	f, err := createArtifactFile(r.cfg.ScratchDir, FormatM4A)
	if err != nil {
		return nil, deviceUnavailable(err)
	}
	path := f.Name()
	f.Close()

	cmd := exec.Command(r.cfg.Command, r.args(path)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		os.Remove(path)
		return nil, deviceUnavailable(err)
	}
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		os.Remove(path)
		return nil, deviceUnavailable(fmt.Errorf("starting %s: %w", r.cfg.Command, err))
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	select {
	case err := <-waitErr:
		os.Remove(path)
		return nil, deviceUnavailable(exitError(err, stderr))
	case <-time.After(r.cfg.StartupGrace):
	}

	h := newHandle(path)
	r.active = &ffmpegCapture{
		handle:  h,
		cmd:     cmd,
		stdin:   stdin,
		stderr:  stderr,
		waitErr: waitErr,
	}
	return h, nil
}

// Stop asks ffmpeg to finish the file: "q" on stdin and an interrupt
// where the platform has one. ffmpeg is killed if it does not exit in
// StopTimeout, in which case the partial file is removed.
func (r *FFmpegRecorder) Stop(h *Handle) (*Artifact, error) {
	r.mu.Lock()
	c := r.active
	if c == nil || h == nil || c.handle != h {
		r.mu.Unlock()
		return nil, ErrNotCapturing
	}
	r.active = nil
	r.mu.Unlock()

	io.WriteString(c.stdin, "q")
	c.stdin.Close()
	if runtime.GOOS != "windows" {
		c.cmd.Process.Signal(os.Interrupt)
	}

	var waitErr error
	select {
	case waitErr = <-c.waitErr:
	case <-time.After(r.cfg.StopTimeout):
		c.cmd.Process.Kill()
		<-c.waitErr
		os.Remove(h.path)
		return nil, fmt.Errorf("ffmpeg did not exit within %s", r.cfg.StopTimeout)
	}

	info, err := os.Stat(h.path)
	if err != nil || info.Size() == 0 {
		os.Remove(h.path)
		if waitErr != nil {
			return nil, fmt.Errorf("recording failed: %w", exitError(waitErr, c.stderr))
		}
		return nil, errors.New("recording produced no audio")
	}

	// ffmpeg exits non-zero after an interrupt even when the container
	// was finalized, so a non-empty file is treated as success.
	return &Artifact{
		Path:      h.path,
		Size:      info.Size(),
		Format:    FormatM4A,
		Duration:  time.Since(h.started),
		CreatedAt: h.started,
	}, nil
}

func exitError(err error, stderr *bytes.Buffer) error {
	msg := strings.TrimSpace(stderr.String())
	if msg == "" {
		if err == nil {
			return errors.New("ffmpeg exited")
		}
		return err
	}
	if i := strings.LastIndexByte(msg, '\n'); i >= 0 {
		msg = msg[i+1:]
	}
	if err == nil {
		return errors.New(msg)
	}
	return fmt.Errorf("%w: %s", err, msg)
}
