package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrChatNotFound = errors.New("chat not found")

// Store owns every chat of the running session. Chats are kept newest
// first and there is always at least one of them.
type Store struct {
	mu     sync.RWMutex
	order  []string
	chats  map[string]*Chat
	active string

	now func() time.Time
}

type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore returns a store holding one empty, active chat.
func NewStore(opts ...Option) *Store {
	s := &Store{
		chats: make(map[string]*Chat),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.active = s.insertLocked()
	return s
}

// CreateChat inserts an empty chat at the front and activates it.
func (s *Store) CreateChat() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = s.insertLocked()
	return s.active
}

// SelectChat activates id. Unknown ids are ignored: the chat may have been
// removed by a concurrent delete.
func (s *Store) SelectChat(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[id]; !ok {
		return false
	}
	s.active = id
	return true
}

// DeleteChat removes id. Deleting the active chat activates the first
// remaining one, or a fresh chat when none is left.
func (s *Store) DeleteChat(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[id]; !ok {
		return false
	}

	delete(s.chats, id)
	for i, cid := range s.order {
		if cid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	if len(s.order) == 0 {
		s.active = s.insertLocked()
		return true
	}
	if s.active == id {
		s.active = s.order[0]
	}
	return true
}

// AppendMessage adds a message to chatID and refreshes its preview. The
// first user message also fixes the chat title.
func (s *Store) AppendMessage(chatID string, role Role, content string) (Message, error) {
	return s.append(chatID, role, content, preview(content))
}

// AppendFailure adds an assistant message reporting a failed request. The
// chat list previews it as ErrorPreview instead of the message text.
func (s *Store) AppendFailure(chatID, content string) (Message, error) {
	return s.append(chatID, RoleAssistant, content, ErrorPreview)
}

func (s *Store) append(chatID string, role Role, content, pv string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return Message{}, ErrChatNotFound
	}

	now := s.now()
	msg := Message{
		ID:        newMessageID(),
		Role:      role,
		Content:   content,
		CreatedAt: now,
	}

	chat.Messages = append(chat.Messages, msg)
	chat.Preview = pv
	chat.UpdatedAt = now

	if role == RoleUser && !chat.titled {
		chat.Title = Title(content)
		chat.titled = true
	}

	return msg, nil
}

// Chats returns copies of all chats in list order.
func (s *Store) Chats() []Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Chat, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.chats[id].clone())
	}
	return out
}

func (s *Store) Chat(id string) (Chat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chat, ok := s.chats[id]
	if !ok {
		return Chat{}, false
	}
	return chat.clone(), true
}

func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *Store) Active() Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chats[s.active].clone()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// insertLocked creates an empty chat at the head of the list (caller must hold lock).
func (s *Store) insertLocked() string {
	chat := &Chat{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		Messages:  make([]Message, 0, 16),
		UpdatedAt: s.now(),
	}

	s.chats[chat.ID] = chat
	s.order = append([]string{chat.ID}, s.order...)
	return chat.ID
}

// UUIDv7 values are monotonic within the process, so ids sort by creation.
func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
