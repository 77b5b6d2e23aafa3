// Package console is the terminal front end: it prints the active chat and
// turns typed lines into intents.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"strconv"
	"strings"
	"sync"

	"buddy/internal/assistant"
	"buddy/internal/session"
	"buddy/internal/voice"
	"buddy/pkg/audioconv"
)

const help = `Type a message and press enter to send it.
  /new            start a new chat
  /chats          list chats
  /select N       switch to chat N
  /delete N       delete chat N
  /stop           ask the backend to stop generating
  /rec            start or stop recording
  /file PATH      send an audio file as a voice message
  /voice on|off   speak replies
  /health         check the backend
  /help           this text
  /quit           exit`

type Console struct {
	a   *assistant.Assistant
	in  io.Reader
	out io.Writer

	wg sync.WaitGroup

	mu      sync.Mutex
	active  string
	printed map[string]int
	status  string
	rec     bool
}

func New(a *assistant.Assistant, in io.Reader, out io.Writer) *Console {
	c := &Console{
		a:       a,
		in:      in,
		out:     out,
		printed: make(map[string]int),
	}
	a.Watch(c.render)
	return c
}

// Run reads commands until EOF, /quit or ctx is done, then waits for the
// intents it started.
func (c *Console) Run(ctx context.Context) error {
	defer c.wg.Wait()

	c.render(c.a.Snapshot())
	c.println("Type /help for commands.")

	lines := make(chan string)
	errc := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-stop:
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return <-errc
			}
			if quit := c.exec(ctx, line); quit {
				return nil
			}
		}
	}
}

func (c *Console) exec(ctx context.Context, line string) (quit bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		c.spawn(ctx, assistant.Intent{Kind: assistant.IntentSend, Text: line})
		return false
	}

	cmd, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "quit", "exit":
		return true
	case "help":
		c.println(help)
	case "new":
		c.a.CreateChat()
	case "chats":
		c.listChats()
	case "select", "delete":
		id, err := c.chatAt(arg)
		if err != nil {
			c.println(err.Error())
			return false
		}
		if cmd == "select" {
			c.a.SelectChat(id)
		} else {
			c.a.DeleteChat(id)
		}
	case "stop":
		c.spawn(ctx, assistant.Intent{Kind: assistant.IntentStop})
	case "rec":
		c.spawn(ctx, assistant.Intent{Kind: assistant.IntentRecord})
	case "voice":
		if err := c.a.Handle(ctx, assistant.Intent{Kind: assistant.IntentVoice, Text: arg}); err != nil {
			c.println(err.Error())
		}
		c.printf("voice replies: %s\n", onOff(c.a.VoiceMode()))
	case "health":
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if c.a.CheckHealth(ctx) {
				c.println("backend: online")
			} else {
				c.println("backend: offline")
			}
		}()
	case "file":
		if arg == "" {
			c.println("usage: /file PATH")
			return false
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.sendFile(ctx, arg)
		}()
	default:
		c.printf("unknown command /%s, try /help\n", cmd)
	}
	return false
}

// spawn runs a long intent in the background so chat switching stays
// responsive.
func (c *Console) spawn(ctx context.Context, in assistant.Intent) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.a.Handle(ctx, in); err != nil {
			if errors.Is(err, assistant.ErrBusy) {
				c.println("still waiting for the previous reply")
				return
			}
			c.println(err.Error())
		}
	}()
}

func (c *Console) sendFile(ctx context.Context, path string) {
	pcm, err := audioconv.DecodeFile(ctx, path, audioconv.Options{SampleRate: voice.DefaultSampleRate})
	if err != nil {
		log.Error("Failed to decode audio file", "path", path, "err", err)
		c.printf("cannot read %s: %v\n", path, err)
		return
	}

	clip := voice.Clip{SampleRate: pcm.SampleRate, Samples: pcm.Samples}
	if err := c.a.SendVoice(ctx, clip); err != nil {
		c.println(err.Error())
	}
}

func (c *Console) listChats() {
	snap := c.a.Snapshot()

	var b strings.Builder
	for i, ch := range snap.Chats {
		mark := " "
		if ch.ID == snap.ActiveID {
			mark = "*"
		}
		fmt.Fprintf(&b, "%s %d. %s (%d messages)\n", mark, i+1, ch.Title, len(ch.Messages))
	}
	c.printf("%s", b.String())
}

// chatAt maps a 1-based list position to a chat id.
func (c *Console) chatAt(arg string) (string, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return "", fmt.Errorf("expected a chat number, got %q", arg)
	}
	chats := c.a.Store().Chats()
	if n < 1 || n > len(chats) {
		return "", fmt.Errorf("no chat %d, see /chats", n)
	}
	return chats[n-1].ID, nil
}

// render prints what changed since the previous snapshot: new messages of
// the active chat, recording and status changes.
func (c *Console) render(snap assistant.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	chat, ok := snap.Active()
	if !ok {
		return
	}

	if chat.ID != c.active {
		c.active = chat.ID
		c.printed[chat.ID] = 0
		fmt.Fprintf(c.out, "── %s ──\n", chat.Title)
	}

	for _, m := range chat.Messages[c.printed[chat.ID]:] {
		fmt.Fprintf(c.out, "%s> %s\n", speaker(m.Role), m.Content)
	}
	c.printed[chat.ID] = len(chat.Messages)

	if snap.Recording != c.rec {
		c.rec = snap.Recording
		if c.rec {
			fmt.Fprintln(c.out, "● recording, /rec to stop")
		} else {
			fmt.Fprintln(c.out, "○ recording stopped")
		}
	}

	if snap.Status != c.status {
		c.status = snap.Status
		if snap.Status != "" {
			fmt.Fprintf(c.out, "[%s]\n", snap.Status)
		}
	}
}

func (c *Console) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, s)
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func speaker(r session.Role) string {
	if r == session.RoleUser {
		return "you"
	}
	return "buddy"
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
