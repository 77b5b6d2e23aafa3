// Package notify tells the user that the microphone is live: an audible
// cue and a desktop notification.
package notify

import (
	"context"
	log "log/slog"
	"os/exec"
	"time"
)

type FilePlayer interface {
	PlayFile(ctx context.Context, file string) error
}

type Notifier struct {
	Cue     string // audio file played when recording starts, empty = silent
	Player  FilePlayer
	Desktop bool // send notify-send popups
}

// Listening is the capture start hook. It returns immediately.
func (n *Notifier) Listening() {
	if n.Cue != "" && n.Player != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := n.Player.PlayFile(ctx, n.Cue); err != nil {
				log.Warn("Failed to play cue", "file", n.Cue, "err", err)
			}
		}()
	}
	if n.Desktop {
		go Desktop("Buddy", "Listening...")
	}
}

// Desktop shows a desktop notification through notify-send.
func Desktop(summary, body string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := exec.CommandContext(ctx, "notify-send", "-a", "buddy", "-t", "1500", summary, body).Run(); err != nil {
		log.Debug("Desktop notification failed", "err", err)
	}
}
