// Package mockserver is a stand-in backend for local development. It
// speaks the same form/JSON surface as the real inference service with
// canned behaviour.
package mockserver

import (
	"encoding/json"
	"io"
	log "log/slog"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"buddy/internal/voice"
)

const StoppedReply = "Generation stopped."

type Config struct {
	// Delay holds every chat reply back, giving /stop something to cancel.
	Delay time.Duration
	// Transcript is returned by /stt for any non-empty upload.
	Transcript string
	// Reply builds the chat reply. Defaults to an echo.
	Reply func(prompt string) string
}

type Server struct {
	cfg Config

	mu      sync.Mutex
	pending map[string]chan struct{}
	audio   map[string][]byte
}

func New(cfg Config) *Server {
	if cfg.Reply == nil {
		cfg.Reply = func(p string) string { return "You said: " + p }
	}
	if cfg.Transcript == "" {
		cfg.Transcript = "Hello"
	}
	return &Server{
		cfg:     cfg,
		pending: make(map[string]chan struct{}),
		audio:   make(map[string][]byte),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", s.health)
	r.Post("/chat", s.chat)
	r.Post("/stt", s.stt)
	r.Post("/tts", s.tts)
	r.Post("/stop", s.stop)
	r.Get("/audio/{name}", s.serveAudio)

	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	prompt := r.FormValue("prompt")
	if prompt == "" {
		respondError(w, http.StatusUnprocessableEntity, "prompt is required")
		return
	}

	id := middleware.GetReqID(r.Context())
	cancel := make(chan struct{})
	s.mu.Lock()
	s.pending[id] = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	select {
	case <-time.After(s.cfg.Delay):
		respondJSON(w, http.StatusOK, map[string]string{"response": s.cfg.Reply(prompt)})
	case <-cancel:
		respondJSON(w, http.StatusOK, map[string]string{"response": StoppedReply})
	case <-r.Context().Done():
	}
}

func (s *Server) stt(w http.ResponseWriter, r *http.Request) {
	f, hdr, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "file is required")
		return
	}
	defer f.Close()

	n, err := io.Copy(io.Discard, f)
	if err != nil {
		respondError(w, http.StatusBadRequest, "read upload")
		return
	}
	log.Debug("Mock stt upload", "file", hdr.Filename, "bytes", n)

	text := s.cfg.Transcript
	if n == 0 {
		text = ""
	}
	respondJSON(w, http.StatusOK, map[string]string{"text": text})
}

// tts renders a short tone whose length follows the text and returns a
// reference relative to the server root.
func (s *Server) tts(w http.ResponseWriter, r *http.Request) {
	text := r.FormValue("text")
	if text == "" {
		respondError(w, http.StatusUnprocessableEntity, "text is required")
		return
	}

	data, err := tone(text).WAV()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	name := uuid.NewString() + ".wav"
	s.mu.Lock()
	s.audio[name] = data
	s.mu.Unlock()

	respondJSON(w, http.StatusOK, map[string]string{"audio_file": "audio/" + name})
}

func (s *Server) stop(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	killed := len(s.pending)
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
	s.mu.Unlock()

	respondJSON(w, http.StatusOK, map[string]any{"status": "stopped", "killed": killed})
}

func (s *Server) serveAudio(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	s.mu.Lock()
	data, ok := s.audio[name]
	s.mu.Unlock()
	if !ok {
		respondError(w, http.StatusNotFound, "no such audio")
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Write(data)
}

// tone is a 440 Hz beep, 60ms per word, between 200ms and three seconds.
func tone(text string) voice.Clip {
	words := len(strings.Fields(text))
	dur := min(max(time.Duration(words)*60*time.Millisecond, 200*time.Millisecond), 3*time.Second)

	rate := voice.DefaultSampleRate
	n := int(dur.Seconds() * float64(rate))
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(0.2 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
	}
	return voice.Clip{SampleRate: rate, Samples: samples}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		log.Info("Request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "took", time.Since(started))
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warn("Failed to encode response", "err", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
