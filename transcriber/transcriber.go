package transcriber

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"voxkey/audio"
)

// Mode selects what the service is asked to do with the speech. It is
// fixed for the lifetime of a session.
type Mode int

const (
	ModeNormal Mode = iota
	ModeSummarize
)

const SummarizePrompt = "Please summarize the following speech concisely."

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeSummarize:
		return "summarize"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal", "dictate":
		return ModeNormal, nil
	case "summarize", "summary":
		return ModeSummarize, nil
	}
	return 0, fmt.Errorf("unknown mode %q (want normal or summarize)", s)
}

// Client turns one finished recording into text. Implementations are
// stateless and safe for concurrent use.
type Client interface {
	Transcribe(ctx context.Context, a *audio.Artifact, mode Mode) (*Result, error)
}

type NetworkMetrics struct {
	DNS         time.Duration
	ConnWait    time.Duration
	TCP         time.Duration
	TLS         time.Duration
	ReqHeaders  time.Duration
	ReqBody     time.Duration
	TTFB        time.Duration
	Download    time.Duration
	Total       time.Duration
	ConnReused  bool
	TLSProtocol string
}

func firstNonEmpty(h http.Header, keys ...string) string {
	for _, k := range keys {
		if v := h.Get(k); v != "" {
			return v
		}
	}
	return "?"
}

type Result struct {
	Text      string
	Metrics   *NetworkMetrics
	RateLimit string // remaining/limit requests
	Upload    int64  // bytes of audio sent
}

type Kind int

const (
	// KindHTTP is a non-2xx response.
	KindHTTP Kind = iota + 1
	// KindNetwork covers connection failures, timeouts and cancellation.
	KindNetwork
	// KindMalformed is a 2xx response whose body is not the expected JSON.
	KindMalformed
	// KindLocal means the request was never sent: the recording could not
	// be read or the form could not be built.
	KindLocal
)

func (k Kind) String() string {
	switch k {
	case KindHTTP:
		return "http"
	case KindNetwork:
		return "network"
	case KindMalformed:
		return "malformed"
	case KindLocal:
		return "local"
	default:
		return "unknown"
	}
}

// Error is returned by Client implementations for every failed request.
type Error struct {
	Kind       Kind
	StatusCode int
	Status     string
	Body       string
	Err        error
}

const maxErrorBody = 512

func (e *Error) Error() string {
	switch e.Kind {
	case KindHTTP:
		body := strings.TrimSpace(e.Body)
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody] + "..."
		}
		if body == "" {
			return fmt.Sprintf("transcription API error %s", e.Status)
		}
		return fmt.Sprintf("transcription API error %s: %s", e.Status, body)
	case KindMalformed:
		return fmt.Sprintf("malformed transcription response: %v", e.Err)
	case KindLocal:
		return fmt.Sprintf("preparing transcription request: %v", e.Err)
	default:
		return fmt.Sprintf("transcription request failed: %v", e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }
