package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	"buddy/internal/assistant"
	"buddy/internal/audio"
	"buddy/internal/bus"
	"buddy/internal/config"
	"buddy/internal/console"
	"buddy/internal/ipc"
	"buddy/internal/llm"
	"buddy/internal/notify"
	"buddy/internal/proxy"
	"buddy/internal/session"
	"buddy/internal/transport"
	"buddy/internal/tts"
	"buddy/internal/voice"
	"buddy/pkg/stt"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	apiURL := cli.StringP("url", "u", "", "Backend base URL (overrides BUDDY_API_URL)")
	proxyAddr := cli.StringP("proxy", "p", "", "Socks proxy address (overrides BUDDY_PROXY)")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	headless := cli.Bool("headless", false, "No console, drive through the control socket and bus only")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      logLevelMap[*logLevel],
		TimeFormat: time.Kitchen,
	})))

	log.Info("Booting up")

	if err := godotenv.Load(*envFile); err != nil {
		log.Debug("No env file", "path", *envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error("Bad configuration", "err", err)
		os.Exit(1)
	}
	if *apiURL != "" {
		cfg.Backend.URL = *apiURL
	}
	if *proxyAddr != "" {
		cfg.Backend.Proxy = *proxyAddr
	}

	httpClient, err := proxy.NewClient(cfg.Backend.Proxy, cfg.Backend.Timeout)
	if err != nil {
		log.Error("Failed to dial socks proxy", "proxy", cfg.Backend.Proxy, "err", err)
		os.Exit(1)
	}

	client := transport.New(cfg.Backend.URL, httpClient)
	log.Debug("Backend", "url", client.BaseURL())

	acfg := assistant.Config{
		Completer:   client,
		Transcriber: client,
		Stopper:     client,
		Health:      client,
		VoiceMode:   cfg.Voice.Enabled,
	}

	if cfg.Backend.Completer == "openai" {
		completer, err := llm.New(llm.Config{
			APIKey: cfg.OpenAI.APIKey,
			Model:  cfg.OpenAI.Model,
			HTTP:   httpClient,
		})
		if err != nil {
			log.Error("Failed to init openai", "err", err)
			os.Exit(1)
		}
		acfg.Completer = completer
		log.Debug("Loaded openai completer", "model", cfg.OpenAI.Model)
	}

	if cfg.Voice.STT == "whisper" {
		whisper, err := stt.NewTranscriber(cfg.Voice.WhisperModel, stt.Options{Language: cfg.Voice.Language})
		if err != nil {
			log.Error("Failed to init whisper", "err", err)
			os.Exit(1)
		}
		defer whisper.Close()
		acfg.Transcriber = whisper
		log.Debug("Loaded whisper", "model", cfg.Voice.WhisperModel)
	}

	a := assistant.New(session.NewStore(), acfg)

	var ducker *audio.Ducker
	if cfg.Voice.Duck {
		ducker = audio.NewDucker([]string{"buddy", "ALSA plug-in [buddy]"}, 0.3, 10, 300*time.Millisecond)
	}
	player := audio.NewPlayer(client.BaseURL(), httpClient, ducker)

	// A nil *Microphone must not end up inside the interface.
	var device voice.Device
	mic, err := audio.NewMicrophone()
	if err != nil {
		log.Warn("Microphone unavailable", "err", err)
	} else {
		defer mic.Close()
		device = mic
		log.Debug("Loaded microphone")
	}

	mode, err := voice.ParseMode(cfg.Voice.CaptureMode)
	if err != nil {
		log.Error("Bad capture mode", "err", err)
		os.Exit(1)
	}

	notifier := &notify.Notifier{Cue: cfg.Voice.Cue, Player: player, Desktop: *headless}
	a.EnableCapture(device, voice.CaptureConfig{
		Mode:     mode,
		Detector: voice.DefaultDetectorConfig(),
		OnStart:  notifier.Listening,
	})

	switch cfg.Voice.TTS {
	case "backend":
		a.EnableSpeech(voice.SynthSpeaker{Synth: client, Player: player})
	case "espeak":
		espeak, err := tts.NewEspeak(cfg.Voice.Language)
		if err != nil {
			log.Error("Failed to init espeak", "err", err)
			os.Exit(1)
		}
		defer espeak.Close()
		a.EnableSpeech(espeak)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go a.MonitorHealth(ctx, cfg.Backend.HealthInterval)

	srv, err := ipc.StartServer(cfg.Control.Socket, func(msg ipc.ControlMessage) error {
		return dispatch(ctx, a, msg)
	})
	if err != nil {
		log.Error("Failed ipc server", "err", err)
		os.Exit(1)
	}
	defer srv.Close()

	if cfg.Control.BusURL != "" {
		b := bus.New(cfg.Control.BusURL, 3*time.Second, a.Handle)
		a.Watch(b.Publish)
		go b.Run(ctx)
	}

	log.Info("Boot up - successful")

	if *headless {
		<-ctx.Done()
		log.Info("Shutting down")
		return
	}

	if err := console.New(a, os.Stdin, os.Stdout).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Console failed", "err", err)
	}
}

// dispatch answers the control socket quickly: long intents are checked
// against the busy guard and then run in the background.
func dispatch(ctx context.Context, a *assistant.Assistant, msg ipc.ControlMessage) error {
	in, err := assistant.ParseIntent(msg.Cmd, msg.Arg)
	if err != nil {
		return err
	}

	switch in.Kind {
	case assistant.IntentSend, assistant.IntentRecord, assistant.IntentStop, assistant.IntentHealth:
		if in.Kind == assistant.IntentSend && a.Loading() {
			return assistant.ErrBusy
		}
		go func() {
			if err := a.Handle(ctx, in); err != nil {
				log.Warn("Intent failed", "kind", in.Kind, "err", err)
			}
		}()
		return nil
	}
	return a.Handle(ctx, in)
}
