package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"net/http"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/vorbis"
	"github.com/faiface/beep/wav"

	"buddy/pkg/audioconv"
)

const (
	outputRate = beep.SampleRate(44100)
	maxAudio   = 32 << 20
)

var (
	speakerOnce sync.Once
	speakerErr  error
)

// initSpeaker opens the output device once per process; every stream is
// resampled to outputRate.
func initSpeaker() error {
	speakerOnce.Do(func() {
		speakerErr = speaker.Init(outputRate, outputRate.N(time.Second/10))
	})
	return speakerErr
}

// Player plays synthesized replies. References may be absolute URLs, local
// files or paths relative to the backend.
type Player struct {
	baseURL string
	http    *http.Client
	ducker  *Ducker
}

// NewPlayer returns a player resolving relative references against
// baseURL. ducker may be nil.
func NewPlayer(baseURL string, client *http.Client, ducker *Ducker) *Player {
	if client == nil {
		client = http.DefaultClient
	}
	return &Player{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    client,
		ducker:  ducker,
	}
}

// Play fetches, decodes and plays ref. It blocks until the end of the
// audio or until ctx is cancelled.
func (p *Player) Play(ctx context.Context, ref string) error {
	data, name, err := p.fetch(ctx, ref)
	if err != nil {
		return err
	}

	streamer, format, err := decode(name, data)
	if err != nil {
		return err
	}
	defer streamer.Close()

	return p.play(ctx, streamer, format)
}

// PlayFile plays a local audio file, used for cues.
func (p *Player) PlayFile(ctx context.Context, file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	streamer, format, err := decode(file, data)
	if err != nil {
		return err
	}
	defer streamer.Close()

	return p.play(ctx, streamer, format)
}

func (p *Player) play(ctx context.Context, streamer beep.Streamer, format beep.Format) error {
	if err := initSpeaker(); err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}

	if p.ducker != nil {
		if err := p.ducker.Duck(ctx); err != nil {
			log.Warn("Failed to duck other streams", "err", err)
		}
		defer func() {
			if err := p.ducker.Restore(context.Background()); err != nil {
				log.Warn("Failed to restore other streams", "err", err)
			}
		}()
	}

	done := make(chan struct{})
	ctrl := &beep.Ctrl{Streamer: beep.Seq(
		beep.Resample(4, format.SampleRate, outputRate, streamer),
		beep.Callback(func() { close(done) }),
	)}
	speaker.Play(ctrl)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Lock()
		ctrl.Streamer = nil
		speaker.Unlock()
		return ctx.Err()
	}
}

func (p *Player) fetch(ctx context.Context, ref string) ([]byte, string, error) {
	target, local := resolveRef(p.baseURL, ref)
	if local {
		data, err := os.ReadFile(target)
		return data, target, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch audio: unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudio))
	if err != nil {
		return nil, "", fmt.Errorf("fetch audio: %w", err)
	}
	return data, resp.Request.URL.Path, nil
}

// resolveRef turns a backend audio reference into a URL or a local path.
// Backslashes from Windows backends are normalised.
func resolveRef(baseURL, ref string) (target string, local bool) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, false
	}
	if _, err := os.Stat(ref); err == nil {
		return ref, true
	}
	rel := strings.TrimLeft(strings.ReplaceAll(ref, `\`, "/"), "/")
	return baseURL + "/" + path.Clean(rel), false
}

func decode(name string, data []byte) (beep.StreamSeekCloser, beep.Format, error) {
	r := bytes.NewReader(data)

	format := audioconv.FormatFromExt(path.Ext(name))
	if format == audioconv.FormatUnknown {
		var err error
		if format, err = audioconv.Sniff(r); err != nil {
			return nil, beep.Format{}, err
		}
	}

	rc := io.NopCloser(r)
	switch format {
	case audioconv.FormatWAV:
		return wav.Decode(rc)
	case audioconv.FormatMP3:
		return mp3.Decode(rc)
	case audioconv.FormatOgg:
		return vorbis.Decode(rc)
	}
	return nil, beep.Format{}, errors.New("unsupported audio format")
}
