package main

import (
	"errors"
	"net/http"
	"os"
	"time"

	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	"buddy/internal/mockserver"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	addr := cli.StringP("addr", "a", ":8000", "Listen address")
	delay := cli.DurationP("delay", "d", 500*time.Millisecond, "Delay before every chat reply")
	transcript := cli.StringP("transcript", "t", "Hello", "Text returned for every upload")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mockserver.New(mockserver.Config{Delay: *delay, Transcript: *transcript}).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("Mock backend listening", "addr", *addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("Server failed", "err", err)
		os.Exit(1)
	}
}
