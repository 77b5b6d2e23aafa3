package assistant

import (
	"context"
	"fmt"
	"strings"
)

type IntentKind string

const (
	IntentCreate IntentKind = "new"
	IntentSelect IntentKind = "select"
	IntentDelete IntentKind = "delete"
	IntentSend   IntentKind = "send"
	IntentStop   IntentKind = "stop"
	IntentRecord IntentKind = "record"
	IntentVoice  IntentKind = "voice"
	IntentHealth IntentKind = "health"
)

// Intent is a user action forwarded by a presentation surface.
type Intent struct {
	Kind IntentKind `json:"kind"`
	Text string     `json:"text,omitempty"`
	ID   string     `json:"id,omitempty"`
}

// ParseIntent reads the "<kind> [arg]" form used by the control socket.
func ParseIntent(cmd, arg string) (Intent, error) {
	kind := IntentKind(strings.ToLower(strings.TrimSpace(cmd)))
	arg = strings.TrimSpace(arg)

	switch kind {
	case IntentCreate, IntentStop, IntentRecord, IntentHealth:
		return Intent{Kind: kind}, nil
	case IntentSelect, IntentDelete:
		if arg == "" {
			return Intent{}, fmt.Errorf("%s needs a chat id", kind)
		}
		return Intent{Kind: kind, ID: arg}, nil
	case IntentSend:
		return Intent{Kind: kind, Text: arg}, nil
	case IntentVoice:
		switch arg {
		case "on", "off", "":
			return Intent{Kind: kind, Text: arg}, nil
		}
		return Intent{}, fmt.Errorf("voice expects on or off, got %q", arg)
	}
	return Intent{}, fmt.Errorf("unknown command %q", cmd)
}

// Handle dispatches one intent. Long running intents block the caller, so
// surfaces that must stay responsive run Handle on their own goroutine.
func (a *Assistant) Handle(ctx context.Context, in Intent) error {
	switch in.Kind {
	case IntentCreate:
		a.CreateChat()
	case IntentSelect:
		a.SelectChat(in.ID)
	case IntentDelete:
		a.DeleteChat(in.ID)
	case IntentSend:
		return a.Send(ctx, in.Text)
	case IntentStop:
		a.Stop(ctx)
	case IntentRecord:
		return a.ToggleRecording(ctx)
	case IntentVoice:
		switch in.Text {
		case "on":
			a.SetVoiceMode(true)
		case "off":
			a.SetVoiceMode(false)
		default:
			a.SetVoiceMode(!a.VoiceMode())
		}
	case IntentHealth:
		a.CheckHealth(ctx)
	default:
		return fmt.Errorf("unknown intent %q", in.Kind)
	}
	return nil
}
