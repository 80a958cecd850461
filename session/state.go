package session

import (
	"errors"
	"fmt"
	"time"

	"voxkey/audio"
	"voxkey/transcriber"
)

type State int

const (
	StateIdle State = iota
	StateRecording
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateProcessing:
		return "processing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	ErrBusy             = errors.New("a session is already active")
	ErrNotRecording     = errors.New("not recording")
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrClosed           = errors.New("controller closed")
)

// Session is one record-then-transcribe cycle.
type Session struct {
	ID        string
	Mode      transcriber.Mode
	StartedAt time.Time

	handle   *audio.Handle
	artifact *audio.Artifact
}

// Event is published on every state transition, in transition order.
// Result is set on the final event of a session that produced text.
// Err is set on the final event of a session that failed.
type Event struct {
	Session string
	Mode    transcriber.Mode
	From    State
	To      State
	Result  *transcriber.Result
	Err     error
}

// TextSink delivers transcribed text to the focused application.
// Insert is called from the transcription goroutine without the
// controller lock held; it may query the controller but Begin will
// report ErrBusy until Insert returns.
type TextSink interface {
	Insert(text string) error
}

// PermissionChecker reports whether the microphone may be used. A
// non-nil error denies the recording.
type PermissionChecker func() error
