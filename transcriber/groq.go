package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"time"

	"voxkey/audio"
)

const (
	DefaultBaseURL = "https://api.groq.com/"
	DefaultModel   = "whisper-large-v3"
)

// Provider names an OpenAI-compatible transcription service.
type Provider string

const (
	ProviderGroq   Provider = "groq"
	ProviderOpenAI Provider = "openai"
)

type endpoint struct {
	base, route, model string
}

var endpoints = map[Provider]endpoint{
	ProviderGroq:   {DefaultBaseURL, "openai/v1/audio/transcriptions", DefaultModel},
	ProviderOpenAI: {"https://api.openai.com/", "v1/audio/transcriptions", "whisper-1"},
}

func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return ProviderGroq, nil
	}
	if _, ok := endpoints[p]; !ok {
		return "", fmt.Errorf("unknown api.provider %q (want groq or openai)", s)
	}
	return p, nil
}

type GroqConfig struct {
	Provider Provider // groq when empty
	APIKey   string
	BaseURL  string // provider default when empty
	Model    string // provider default when empty
	Language string // sent only when set
	Timeout  time.Duration
}

// Groq talks to an OpenAI-compatible transcription endpoint, Groq's by
// default. The provider fixes the route under the base URL. One request
// per artifact, no retries.
type Groq struct {
	client *TracedClient
	apiURL string
	apiKey string
	model  string
	lang   string
}

func NewGroq(cfg GroqConfig) *Groq {
	ep, ok := endpoints[cfg.Provider]
	if !ok {
		ep = endpoints[ProviderGroq]
	}
	base := cfg.BaseURL
	if base == "" {
		base = ep.base
	}
	model := cfg.Model
	if model == "" {
		model = ep.model
	}
	return &Groq{
		client: NewTracedClient(cfg.Timeout),
		apiURL: strings.TrimSuffix(base, "/") + "/" + ep.route,
		apiKey: cfg.APIKey,
		model:  model,
		lang:   cfg.Language,
	}
}

// Warm pre-establishes the connection to the API host.
func (g *Groq) Warm() time.Duration { return g.client.Warm(g.apiURL) }

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// formFields lists the text parts after the file, in wire order: model,
// then the mode's own fields.
func (g *Groq) formFields(mode Mode) [][2]string {
	fields := [][2]string{{"model", g.model}}
	switch mode {
	case ModeSummarize:
		fields = append(fields, [2]string{"prompt", SummarizePrompt})
	default:
		fields = append(fields, [2]string{"temperature", "0"})
	}
	fields = append(fields, [2]string{"response_format", "json"})
	if g.lang != "" {
		fields = append(fields, [2]string{"language", g.lang})
	}
	return fields
}

// buildForm writes the multipart body, file part first. Every failure is
// a *Error of KindLocal.
func (g *Groq) buildForm(a *audio.Artifact, mode Mode) (*bytes.Buffer, string, int64, error) {
	fail := func(err error) (*bytes.Buffer, string, int64, error) {
		return nil, "", 0, &Error{Kind: KindLocal, Err: err}
	}
	f, err := os.Open(a.Path)
	if err != nil {
		return fail(fmt.Errorf("opening recording: %w", err))
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(a.Name())))
	h.Set("Content-Type", a.Format.ContentType())
	part, err := writer.CreatePart(h)
	if err != nil {
		return fail(fmt.Errorf("creating file part: %w", err))
	}
	n, err := io.Copy(part, f)
	if err != nil {
		return fail(fmt.Errorf("reading recording: %w", err))
	}

	for _, kv := range g.formFields(mode) {
		if err := writer.WriteField(kv[0], kv[1]); err != nil {
			return fail(fmt.Errorf("writing %s field: %w", kv[0], err))
		}
	}
	if err := writer.Close(); err != nil {
		return fail(fmt.Errorf("closing form: %w", err))
	}
	return &body, writer.FormDataContentType(), n, nil
}

func (g *Groq) Transcribe(ctx context.Context, a *audio.Artifact, mode Mode) (*Result, error) {
	body, contentType, size, err := g.buildForm(a, mode)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Kind:       KindHTTP,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(resp.Body),
		}
	}

	var gResp struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(resp.Body, &gResp); err != nil {
		return nil, &Error{Kind: KindMalformed, StatusCode: resp.StatusCode, Status: resp.Status, Err: err}
	}

	remaining := firstNonEmpty(resp.Header, "x-ratelimit-remaining-requests")
	limit := firstNonEmpty(resp.Header, "x-ratelimit-limit-requests")

	return &Result{
		Text:      gResp.Text,
		Metrics:   resp.Metrics,
		RateLimit: remaining + "/" + limit,
		Upload:    size,
	}, nil
}
