package conversation

import (
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Mode is both the per-message send mode and the UI mode.
//
// ModeGeneral is what a send without an explicit mode resolves to; ModeNone is
// only meaningful as a UI mode.
type Mode string

const (
	ModeNone     Mode = ""
	ModeGeneral  Mode = "general"
	ModeWeb      Mode = "web"
	ModeResearch Mode = "research"
)

// IsResearch reports whether a send in this mode takes the dual-source branch.
func (m Mode) IsResearch() bool {
	return m == ModeResearch
}

// DefaultTitle is the title of a conversation that has no message yet.
const DefaultTitle = "New chat"

// Identity is the active user.
type Identity struct {
	DisplayName    string `yaml:"display_name" json:"displayName"`
	StableUsername string `yaml:"stable_username" json:"stableUsername"`
}

// IsZero reports whether no identity has been created yet.
func (i *Identity) IsZero() bool {
	return i == nil || i.StableUsername == ""
}

// Message is a single entry of a conversation. Content is opaque to everything
// but the view layer, see content.go.
type Message struct {
	ID           string    `json:"id"`
	Role         Role      `json:"role"`
	Content      string    `json:"content"`
	Timestamp    time.Time `json:"timestamp"`
	Mode         Mode      `json:"mode,omitempty"`
	IsStreaming  bool      `json:"isStreaming,omitempty"`
	IsGenerating bool      `json:"isGenerating,omitempty"`
	Page         int       `json:"page,omitempty"`
}

// Conversation is a titled, ordered sequence of messages.
//
// BackendID is write-once: the reducer ignores any later value.
type Conversation struct {
	ID                  string    `json:"id"`
	BackendID           string    `json:"backendId,omitempty"`
	Title               string    `json:"title"`
	Messages            []Message `json:"messages"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
	HasUsedResearchMode bool      `json:"hasUsedResearchMode"`
	Page                int       `json:"page"`
}

// Message returns the message with the given id.
func (c *Conversation) Message(id string) (*Message, bool) {
	if c == nil {
		return nil, false
	}
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return &c.Messages[i], true
		}
	}
	return nil, false
}

// LastMessage returns the most recently appended message, if any.
func (c *Conversation) LastMessage() (*Message, bool) {
	if c == nil || len(c.Messages) == 0 {
		return nil, false
	}
	return &c.Messages[len(c.Messages)-1], true
}

// State is the global state owned by the store.
//
// A *State handed out by the store is never mutated afterwards; every dispatch
// produces a new value through Reduce.
type State struct {
	Conversations          []Conversation `json:"conversations"`
	SelectedConversationID string         `json:"selectedConversationId,omitempty"`
	Identity               *Identity      `json:"identity,omitempty"`
	UIMode                 Mode           `json:"uiMode"`
	IsAwaitingResponse     bool           `json:"isAwaitingResponse"`
	ActiveLoadingLabel     string         `json:"activeLoadingLabel,omitempty"`
	CurrentPage            int            `json:"currentPage"`

	DarkTheme   bool `json:"darkTheme"`
	SidebarOpen bool `json:"sidebarOpen"`

	Version int64 `json:"version"`
}

// NewState returns the empty initial state.
func NewState() *State {
	return &State{
		Conversations: []Conversation{},
		SidebarOpen:   true,
	}
}

// Conversation looks up a conversation by local id.
func (s *State) Conversation(id string) (*Conversation, bool) {
	if s == nil || id == "" {
		return nil, false
	}
	for i := range s.Conversations {
		if s.Conversations[i].ID == id {
			return &s.Conversations[i], true
		}
	}
	return nil, false
}

// Selected returns the selected conversation.
func (s *State) Selected() (*Conversation, bool) {
	if s == nil {
		return nil, false
	}
	return s.Conversation(s.SelectedConversationID)
}

// Username is the stable username of the current identity, or "".
func (s *State) Username() string {
	if s == nil || s.Identity == nil {
		return ""
	}
	return s.Identity.StableUsername
}

// NextPage is the page a newly created conversation receives.
func NextPage(conversations []Conversation) int {
	highest := 0
	for _, c := range conversations {
		if c.Page > highest {
			highest = c.Page
		}
	}
	return highest + 1
}

// DeriveTitle builds a conversation title from message content.
func DeriveTitle(content string) string {
	const maxRunes = 40
	text := []rune(PlainPrefix(content))
	if len(text) == 0 {
		return DefaultTitle
	}
	if len(text) <= maxRunes {
		return string(text)
	}
	return string(text[:maxRunes]) + "..."
}
