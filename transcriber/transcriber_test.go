package transcriber

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"voxkey/audio"
)

func TestFirstNonEmpty(t *testing.T) {
	h := http.Header{}
	h.Set("X-Rate-Limit", "100")

	if got := firstNonEmpty(h, "X-Missing", "X-Rate-Limit"); got != "100" {
		t.Errorf("got %q, want %q", got, "100")
	}
	if got := firstNonEmpty(h, "X-A", "X-B"); got != "?" {
		t.Errorf("got %q, want %q", got, "?")
	}
}

func TestParseMode(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want Mode
		ok   bool
	}{
		{"", ModeNormal, true},
		{"normal", ModeNormal, true},
		{"Summarize", ModeSummarize, true},
		{"translate", 0, false},
	} {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if (err == nil) != tt.ok || got != tt.want {
				t.Errorf("ParseMode(%q) = %v, %v", tt.in, got, err)
			}
		})
	}
}

type formPart struct {
	Name, FileName, ContentType, Value string
}

type captured struct {
	mu    sync.Mutex
	parts []formPart
	auth  string
}

func (c *captured) get() ([]formPart, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parts, c.auth
}

func (c *captured) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.parts = nil
}

func partNames(parts []formPart) map[string]string {
	m := make(map[string]string, len(parts))
	for _, p := range parts {
		m[p.Name] = p.Value
	}
	return m
}

// recordingServer captures the multipart parts of each request in order.
func recordingServer(t *testing.T, status int, body string, got *captured) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/openai/v1/audio/transcriptions" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if got != nil {
			got.mu.Lock()
			defer got.mu.Unlock()
			got.auth = r.Header.Get("Authorization")
		}
		mr, err := r.MultipartReader()
		if err != nil {
			t.Errorf("multipart: %v", err)
			return
		}
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Errorf("next part: %v", err)
				return
			}
			v, _ := io.ReadAll(p)
			if got != nil {
				got.parts = append(got.parts, formPart{
					Name:        p.FormName(),
					FileName:    p.FileName(),
					ContentType: p.Header.Get("Content-Type"),
					Value:       string(v),
				})
			}
		}
		w.Header().Set("x-ratelimit-remaining-requests", "99")
		w.Header().Set("x-ratelimit-limit-requests", "100")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testArtifact(t *testing.T, format audio.Format) *audio.Artifact {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voice_recording_1700000000000."+string(format))
	if err := os.WriteFile(path, []byte("audio-bytes"), 0o600); err != nil {
		t.Fatal(err)
	}
	return &audio.Artifact{Path: path, Size: 11, Format: format}
}

func TestGroqModeFields(t *testing.T) {
	tests := []struct {
		mode   Mode
		format audio.Format
		want   []formPart
	}{
		{ModeNormal, audio.FormatM4A, []formPart{
			{Name: "file", FileName: "voice_recording_1700000000000.m4a", ContentType: "audio/m4a", Value: "audio-bytes"},
			{Name: "model", Value: "whisper-large-v3"},
			{Name: "temperature", Value: "0"},
			{Name: "response_format", Value: "json"},
		}},
		{ModeSummarize, audio.FormatFLAC, []formPart{
			{Name: "file", FileName: "voice_recording_1700000000000.flac", ContentType: "audio/flac", Value: "audio-bytes"},
			{Name: "model", Value: "whisper-large-v3"},
			{Name: "prompt", Value: "Please summarize the following speech concisely."},
			{Name: "response_format", Value: "json"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			var got captured
			srv := recordingServer(t, 200, `{"text":"hello"}`, &got)
			g := NewGroq(GroqConfig{APIKey: "k-123", BaseURL: srv.URL + "/"})

			res, err := g.Transcribe(context.Background(), testArtifact(t, tt.format), tt.mode)
			if err != nil {
				t.Fatal(err)
			}
			if res.Text != "hello" {
				t.Errorf("text = %q", res.Text)
			}
			if res.RateLimit != "99/100" {
				t.Errorf("rate limit = %q", res.RateLimit)
			}
			if res.Metrics == nil {
				t.Error("missing metrics")
			}
			parts, auth := got.get()
			if auth != "Bearer k-123" {
				t.Errorf("Authorization = %q", auth)
			}
			if !reflect.DeepEqual(parts, tt.want) {
				t.Errorf("parts =\n%+v\nwant\n%+v", parts, tt.want)
			}
		})
	}
}

func TestGroqModeDoesNotCarryOver(t *testing.T) {
	var got captured
	srv := recordingServer(t, 200, `{"text":"ok"}`, &got)
	g := NewGroq(GroqConfig{APIKey: "k", BaseURL: srv.URL})
	ctx := context.Background()

	if _, err := g.Transcribe(ctx, testArtifact(t, audio.FormatFLAC), ModeSummarize); err != nil {
		t.Fatal(err)
	}
	parts, _ := got.get()
	if _, ok := partNames(parts)["prompt"]; !ok {
		t.Fatal("summarize request has no prompt part")
	}

	got.reset()
	if _, err := g.Transcribe(ctx, testArtifact(t, audio.FormatFLAC), ModeNormal); err != nil {
		t.Fatal(err)
	}
	parts, _ = got.get()
	fields := partNames(parts)
	if _, ok := fields["prompt"]; ok {
		t.Error("normal request after summarize still carries a prompt part")
	}
	if fields["temperature"] != "0" {
		t.Errorf("temperature = %q, want 0", fields["temperature"])
	}
}

func TestParseProvider(t *testing.T) {
	tests := []struct {
		in      string
		want    Provider
		wantErr bool
	}{
		{"", ProviderGroq, false},
		{"groq", ProviderGroq, false},
		{" OpenAI ", ProviderOpenAI, false},
		{"deepgram", "", true},
	}
	for _, tt := range tests {
		got, err := ParseProvider(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseProvider(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestOpenAIProviderRoute(t *testing.T) {
	var (
		mu          sync.Mutex
		path, model string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		path = r.URL.Path
		model = r.FormValue("model")
		mu.Unlock()
		io.WriteString(w, `{"text":"hi"}`)
	}))
	defer srv.Close()

	g := NewGroq(GroqConfig{Provider: ProviderOpenAI, APIKey: "k", BaseURL: srv.URL})
	res, err := g.Transcribe(context.Background(), testArtifact(t, audio.FormatM4A), ModeNormal)
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "hi" {
		t.Errorf("text = %q", res.Text)
	}
	mu.Lock()
	defer mu.Unlock()
	if path != "/v1/audio/transcriptions" {
		t.Errorf("path = %q, want /v1/audio/transcriptions", path)
	}
	if model != "whisper-1" {
		t.Errorf("model = %q, want whisper-1", model)
	}
}

func TestGroqLanguageField(t *testing.T) {
	var got captured
	srv := recordingServer(t, 200, `{"text":"hola"}`, &got)
	g := NewGroq(GroqConfig{APIKey: "k", BaseURL: srv.URL, Language: "es"})

	if _, err := g.Transcribe(context.Background(), testArtifact(t, audio.FormatM4A), ModeNormal); err != nil {
		t.Fatal(err)
	}
	parts, _ := got.get()
	last := parts[len(parts)-1]
	if last.Name != "language" || last.Value != "es" {
		t.Errorf("last part = %+v, want language=es", last)
	}
}

func TestGroqEmptyText(t *testing.T) {
	for _, body := range []string{`{"text":""}`, `{}`, `{"text":"","x_groq":{"id":"req_1"}}`} {
		t.Run(body, func(t *testing.T) {
			srv := recordingServer(t, 200, body, nil)
			g := NewGroq(GroqConfig{APIKey: "k", BaseURL: srv.URL})
			res, err := g.Transcribe(context.Background(), testArtifact(t, audio.FormatM4A), ModeNormal)
			if err != nil {
				t.Fatal(err)
			}
			if res.Text != "" {
				t.Errorf("text = %q, want empty", res.Text)
			}
		})
	}
}

func TestGroqFailureKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   Kind
	}{
		{"unauthorized", 401, `{"error":{"message":"Invalid API Key"}}`, KindHTTP},
		{"server error", 503, "unavailable", KindHTTP},
		{"empty body", 200, "", KindMalformed},
		{"not json", 200, "<html>oops</html>", KindMalformed},
		{"wrong shape", 200, `["text"]`, KindMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := recordingServer(t, tt.status, tt.body, nil)
			g := NewGroq(GroqConfig{APIKey: "k", BaseURL: srv.URL})
			res, err := g.Transcribe(context.Background(), testArtifact(t, audio.FormatM4A), ModeNormal)
			if res != nil {
				t.Errorf("unexpected result %+v", res)
			}
			var te *Error
			if !errors.As(err, &te) {
				t.Fatalf("err = %v, want *Error", err)
			}
			if te.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", te.Kind, tt.kind)
			}
			if tt.kind == KindHTTP && (te.StatusCode != tt.status || te.Body != tt.body) {
				t.Errorf("status/body = %d %q", te.StatusCode, te.Body)
			}
		})
	}
}

func TestGroqNetworkFailures(t *testing.T) {
	t.Run("refused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		g := NewGroq(GroqConfig{APIKey: "k", BaseURL: url})
		_, err := g.Transcribe(context.Background(), testArtifact(t, audio.FormatM4A), ModeNormal)
		assertKind(t, err, KindNetwork)
	})

	slow := func(t *testing.T) *httptest.Server {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.Copy(io.Discard, r.Body)
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		t.Cleanup(func() { close(release); srv.Close() })
		return srv
	}

	t.Run("timeout", func(t *testing.T) {
		srv := slow(t)
		g := NewGroq(GroqConfig{APIKey: "k", BaseURL: srv.URL, Timeout: 100 * time.Millisecond})
		_, err := g.Transcribe(context.Background(), testArtifact(t, audio.FormatM4A), ModeNormal)
		assertKind(t, err, KindNetwork)
	})

	t.Run("cancelled", func(t *testing.T) {
		srv := slow(t)
		g := NewGroq(GroqConfig{APIKey: "k", BaseURL: srv.URL})
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(50*time.Millisecond, cancel)
		_, err := g.Transcribe(ctx, testArtifact(t, audio.FormatM4A), ModeNormal)
		assertKind(t, err, KindNetwork)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled in chain", err)
		}
	})
}

func TestGroqMissingArtifact(t *testing.T) {
	g := NewGroq(GroqConfig{APIKey: "k", BaseURL: "http://127.0.0.1:1"})
	_, err := g.Transcribe(context.Background(), &audio.Artifact{Path: "/nonexistent/voice.m4a"}, ModeNormal)
	assertKind(t, err, KindLocal)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want os.ErrNotExist in chain", err)
	}
	if got := KindLocal.String(); got != "local" {
		t.Errorf("KindLocal = %q", got)
	}
}

func assertKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	var te *Error
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if te.Kind != kind {
		t.Errorf("kind = %s, want %s (%v)", te.Kind, kind, err)
	}
}

func TestErrorMessage(t *testing.T) {
	e := &Error{Kind: KindHTTP, StatusCode: 429, Status: "429 Too Many Requests", Body: "slow down"}
	if got := e.Error(); got != "transcription API error 429 Too Many Requests: slow down" {
		t.Errorf("Error() = %q", got)
	}
	inner := errors.New("boom")
	n := &Error{Kind: KindNetwork, Err: inner}
	if !errors.Is(n, inner) {
		t.Error("Unwrap lost inner error")
	}
}
