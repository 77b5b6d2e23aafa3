package assistant

import (
	"fmt"

	"buddy/internal/session"
)

type State int

const (
	Idle State = iota
	AwaitingTranscription
	AwaitingCompletion
	AwaitingSynthesis
	Errored
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingTranscription:
		return "awaiting_transcription"
	case AwaitingCompletion:
		return "awaiting_completion"
	case AwaitingSynthesis:
		return "awaiting_synthesis"
	case Errored:
		return "errored"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Snapshot is everything a presentation layer needs to render.
type Snapshot struct {
	Chats     []session.Chat `json:"chats"`
	ActiveID  string         `json:"activeId"`
	State     State          `json:"state"`
	Loading   bool           `json:"loading"`
	Connected bool           `json:"connected"`
	Recording bool           `json:"recording"`
	Speaking  bool           `json:"speaking"`
	VoiceMode bool           `json:"voiceMode"`
	Status    string         `json:"status"`
}

// Active returns the active chat of the snapshot.
func (s Snapshot) Active() (session.Chat, bool) {
	for _, c := range s.Chats {
		if c.ID == s.ActiveID {
			return c, true
		}
	}
	return session.Chat{}, false
}
