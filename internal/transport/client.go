// Package transport talks to the inference backend over its form/JSON HTTP
// surface.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	log "log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"buddy/internal/voice"
)

const (
	PathHealth = "/health"
	PathChat   = "/chat"
	PathSTT    = "/stt"
	PathTTS    = "/tts"
	PathStop   = "/stop"

	maxBody = 8 << 20
)

// Client is the backend adapter. Every method fails with a
// *RequestFailedError and never retries.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for baseURL. A nil httpClient gets a default one
// with a two minute timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) HTTPClient() *http.Client { return c.http }

type healthResponse struct {
	Status *string `json:"status"`
}

// Health reports whether the backend answered with status "ok".
func (c *Client) Health(ctx context.Context) (bool, error) {
	var out healthResponse
	if err := c.do(ctx, "health", http.MethodGet, PathHealth, nil, &out); err != nil {
		return false, err
	}
	if out.Status == nil {
		return false, failed("health", 0, nil, "response has no status")
	}
	return *out.Status == "ok", nil
}

type chatResponse struct {
	Response *string `json:"response"`
}

// Complete sends prompt to the chat endpoint and returns the reply.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	f := newForm()
	f.field("prompt", prompt)

	var out chatResponse
	if err := c.do(ctx, "chat", http.MethodPost, PathChat, f, &out); err != nil {
		return "", err
	}
	if out.Response == nil {
		return "", failed("chat", 0, nil, "response has no response field")
	}
	return *out.Response, nil
}

type sttResponse struct {
	Text *string `json:"text"`
}

// Transcribe uploads clip as recording.wav and returns the recognized text.
func (c *Client) Transcribe(ctx context.Context, clip voice.Clip) (string, error) {
	data, err := clip.WAV()
	if err != nil {
		return "", failed("stt", 0, err, "encode audio: %v", err)
	}

	f := newForm()
	f.file("file", "recording.wav", "audio/wav", data)

	var out sttResponse
	if err := c.do(ctx, "stt", http.MethodPost, PathSTT, f, &out); err != nil {
		return "", err
	}
	if out.Text == nil {
		return "", failed("stt", 0, nil, "response has no text field")
	}
	return *out.Text, nil
}

type ttsResponse struct {
	AudioFile *string `json:"audio_file"`
}

// Synthesize asks the backend to render text and returns the audio reference.
func (c *Client) Synthesize(ctx context.Context, text string) (string, error) {
	f := newForm()
	f.field("text", text)

	var out ttsResponse
	if err := c.do(ctx, "tts", http.MethodPost, PathTTS, f, &out); err != nil {
		return "", err
	}
	if out.AudioFile == nil || *out.AudioFile == "" {
		return "", failed("tts", 0, nil, "response has no audio_file")
	}
	return *out.AudioFile, nil
}

type stopResponse struct {
	Status *string `json:"status"`
}

// Stop asks the backend to abandon the current generation. It reports
// whether the backend confirmed with status "stopped".
func (c *Client) Stop(ctx context.Context) (bool, error) {
	var out stopResponse
	if err := c.do(ctx, "stop", http.MethodPost, PathStop, nil, &out); err != nil {
		return false, err
	}
	if out.Status == nil {
		return false, failed("stop", 0, nil, "response has no status")
	}
	return *out.Status == "stopped", nil
}

func (c *Client) do(ctx context.Context, op, method, path string, f *form, out any) error {
	var (
		body        io.Reader
		contentType string
	)
	if f != nil {
		if err := f.close(); err != nil {
			return failed(op, 0, err, "build form: %v", err)
		}
		body = &f.buf
		contentType = f.w.FormDataContentType()
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return failed(op, 0, err, "build request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.Debug("Backend unreachable", "op", op, "err", err)
		return failed(op, 0, err, "send request: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return failed(op, resp.StatusCode, err, "read body: %v", err)
	}

	log.Debug("Backend call", "op", op, "status", resp.StatusCode, "took", time.Since(started))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return failed(op, resp.StatusCode, nil, "unexpected status %s", resp.Status)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return failed(op, resp.StatusCode, err, "decode response: %v", err)
	}
	return nil
}

type form struct {
	buf bytes.Buffer
	w   *multipart.Writer
	err error
}

func newForm() *form {
	f := &form{}
	f.w = multipart.NewWriter(&f.buf)
	return f
}

func (f *form) field(name, value string) {
	if f.err == nil {
		f.err = f.w.WriteField(name, value)
	}
}

func (f *form) file(name, filename, mime string, data []byte) {
	if f.err != nil {
		return
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, name, filename))
	h.Set("Content-Type", mime)

	part, err := f.w.CreatePart(h)
	if err != nil {
		f.err = err
		return
	}
	_, f.err = part.Write(data)
}

func (f *form) close() error {
	if f.err != nil {
		return f.err
	}
	return f.w.Close()
}
