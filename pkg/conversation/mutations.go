package conversation

import (
	"time"
)

// Action is a named, total state transition. Apply receives a private copy of
// the state and must not fail: unknown conversation or message ids are no-ops.
type Action interface {
	Apply(s *State)
	Name() string
}

type createConversationAction struct {
	id string
	at time.Time
}

// CreateConversation adds an empty conversation, selects it and moves the
// current page to its page.
func CreateConversation(id string, at time.Time) Action {
	return createConversationAction{id: id, at: at}
}

func (a createConversationAction) Apply(s *State) {
	if a.id == "" {
		return
	}
	if _, ok := s.Conversation(a.id); ok {
		return
	}
	c := Conversation{
		ID:        a.id,
		Title:     DefaultTitle,
		Messages:  []Message{},
		CreatedAt: a.at,
		UpdatedAt: a.at,
		Page:      NextPage(s.Conversations),
	}
	s.Conversations = append([]Conversation{c}, s.Conversations...)
	s.SelectedConversationID = c.ID
	s.CurrentPage = c.Page
}

func (a createConversationAction) Name() string { return "create_conversation" }

type selectConversationAction struct {
	id string
}

// SelectConversation selects an existing conversation.
func SelectConversation(id string) Action {
	return selectConversationAction{id: id}
}

func (a selectConversationAction) Apply(s *State) {
	c, ok := s.Conversation(a.id)
	if !ok {
		return
	}
	s.SelectedConversationID = c.ID
	s.CurrentPage = c.Page
}

func (a selectConversationAction) Name() string { return "select_conversation" }

type deleteConversationAction struct {
	id string
}

// DeleteConversation removes a conversation, clearing the selection if it
// pointed at it.
func DeleteConversation(id string) Action {
	return deleteConversationAction{id: id}
}

func (a deleteConversationAction) Apply(s *State) {
	kept := make([]Conversation, 0, len(s.Conversations))
	for _, c := range s.Conversations {
		if c.ID == a.id {
			continue
		}
		kept = append(kept, c)
	}
	s.Conversations = kept
	if s.SelectedConversationID == a.id {
		s.SelectedConversationID = ""
	}
}

func (a deleteConversationAction) Name() string { return "delete_conversation" }

type appendMessageAction struct {
	conversationID string
	message        Message
}

// AppendMessage appends a message. The first message of a conversation also
// fixes its title.
func AppendMessage(conversationID string, m Message) Action {
	return appendMessageAction{conversationID: conversationID, message: m}
}

func (a appendMessageAction) Apply(s *State) {
	c, ok := s.Conversation(a.conversationID)
	if !ok || a.message.ID == "" {
		return
	}
	if _, exists := c.Message(a.message.ID); exists {
		return
	}
	if len(c.Messages) == 0 && c.Title == DefaultTitle {
		c.Title = DeriveTitle(a.message.Content)
	}
	if a.message.IsGenerating {
		clearGenerating(c)
	}
	c.Messages = append(c.Messages, a.message)
	if !a.message.Timestamp.IsZero() {
		c.UpdatedAt = a.message.Timestamp
	}
}

func (a appendMessageAction) Name() string { return "append_message" }

type replaceMessageContentAction struct {
	conversationID string
	messageID      string
	content        string
}

// ReplaceMessageContent overwrites the content of a message.
func ReplaceMessageContent(conversationID, messageID, content string) Action {
	return replaceMessageContentAction{conversationID: conversationID, messageID: messageID, content: content}
}

func (a replaceMessageContentAction) Apply(s *State) {
	if m, ok := findMessage(s, a.conversationID, a.messageID); ok {
		m.Content = a.content
	}
}

func (a replaceMessageContentAction) Name() string { return "replace_message_content" }

type appendMessageContentAction struct {
	conversationID string
	messageID      string
	suffix         string
}

// AppendMessageContent appends to the content a message has at dispatch time.
func AppendMessageContent(conversationID, messageID, suffix string) Action {
	return appendMessageContentAction{conversationID: conversationID, messageID: messageID, suffix: suffix}
}

func (a appendMessageContentAction) Apply(s *State) {
	if m, ok := findMessage(s, a.conversationID, a.messageID); ok {
		m.Content += a.suffix
	}
}

func (a appendMessageContentAction) Name() string { return "append_message_content" }

type setMessageStreamingAction struct {
	conversationID string
	messageID      string
	streaming      bool
}

// SetMessageStreaming marks a message as still being typed out.
func SetMessageStreaming(conversationID, messageID string, streaming bool) Action {
	return setMessageStreamingAction{conversationID: conversationID, messageID: messageID, streaming: streaming}
}

func (a setMessageStreamingAction) Apply(s *State) {
	if m, ok := findMessage(s, a.conversationID, a.messageID); ok {
		m.IsStreaming = a.streaming
	}
}

func (a setMessageStreamingAction) Name() string { return "set_message_streaming" }

type setMessageGeneratingAction struct {
	conversationID string
	messageID      string
	generating     bool
}

// SetMessageGenerating toggles the generating flag. Setting it clears the flag
// on every other message of the conversation.
func SetMessageGenerating(conversationID, messageID string, generating bool) Action {
	return setMessageGeneratingAction{conversationID: conversationID, messageID: messageID, generating: generating}
}

func (a setMessageGeneratingAction) Apply(s *State) {
	c, ok := s.Conversation(a.conversationID)
	if !ok {
		return
	}
	m, ok := c.Message(a.messageID)
	if !ok {
		return
	}
	if a.generating {
		clearGenerating(c)
	}
	m.IsGenerating = a.generating
}

func (a setMessageGeneratingAction) Name() string { return "set_message_generating" }

type setBackendIDAction struct {
	conversationID string
	backendID      string
}

// SetBackendID records the server correlation id. The first non-empty value
// wins; later values are ignored.
func SetBackendID(conversationID, backendID string) Action {
	return setBackendIDAction{conversationID: conversationID, backendID: backendID}
}

func (a setBackendIDAction) Apply(s *State) {
	c, ok := s.Conversation(a.conversationID)
	if !ok || a.backendID == "" || c.BackendID != "" {
		return
	}
	c.BackendID = a.backendID
}

func (a setBackendIDAction) Name() string { return "set_backend_id" }

type markResearchModeUsedAction struct {
	conversationID string
}

// MarkResearchModeUsed flags a conversation that got a research answer.
func MarkResearchModeUsed(conversationID string) Action {
	return markResearchModeUsedAction{conversationID: conversationID}
}

func (a markResearchModeUsedAction) Apply(s *State) {
	if c, ok := s.Conversation(a.conversationID); ok {
		c.HasUsedResearchMode = true
	}
}

func (a markResearchModeUsedAction) Name() string { return "mark_research_mode_used" }

type setUIModeAction struct{ mode Mode }

// SetUIMode selects the mode new messages are sent in.
func SetUIMode(mode Mode) Action { return setUIModeAction{mode: mode} }

func (a setUIModeAction) Apply(s *State) { s.UIMode = a.mode }

func (a setUIModeAction) Name() string { return "set_ui_mode" }

type setLoadingLabelAction struct{ label string }

// SetLoadingLabel sets the label shown while waiting; "" clears it.
func SetLoadingLabel(label string) Action { return setLoadingLabelAction{label: label} }

func (a setLoadingLabelAction) Apply(s *State) { s.ActiveLoadingLabel = a.label }

func (a setLoadingLabelAction) Name() string { return "set_loading_label" }

type setAwaitingResponseAction struct{ awaiting bool }

// SetAwaitingResponse flags that a send is in flight.
func SetAwaitingResponse(awaiting bool) Action { return setAwaitingResponseAction{awaiting: awaiting} }

func (a setAwaitingResponseAction) Apply(s *State) { s.IsAwaitingResponse = a.awaiting }

func (a setAwaitingResponseAction) Name() string { return "set_awaiting_response" }

type setPageAction struct{ page int }

// SetPage moves the current page. Negative pages are ignored.
func SetPage(page int) Action { return setPageAction{page: page} }

func (a setPageAction) Apply(s *State) {
	if a.page < 0 {
		return
	}
	s.CurrentPage = a.page
}

func (a setPageAction) Name() string { return "set_page" }

type replaceAllHistoryAction struct {
	conversations []Conversation
	currentPage   int
}

// ReplaceAllHistory swaps the whole conversation collection and clears the
// selection. A currentPage of 0 leaves the current page untouched.
func ReplaceAllHistory(conversations []Conversation, currentPage int) Action {
	return replaceAllHistoryAction{conversations: conversations, currentPage: currentPage}
}

func (a replaceAllHistoryAction) Apply(s *State) {
	next := make([]Conversation, 0, len(a.conversations))
	seen := map[string]bool{}
	for _, c := range a.conversations {
		if c.ID == "" || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		if c.Messages == nil {
			c.Messages = []Message{}
		}
		next = append(next, c)
	}
	s.Conversations = next
	s.SelectedConversationID = ""
	if a.currentPage > 0 {
		s.CurrentPage = a.currentPage
	}
}

func (a replaceAllHistoryAction) Name() string { return "replace_all_history" }

type setIdentityAction struct{ identity *Identity }

// SetIdentity replaces the current identity; nil clears it.
func SetIdentity(identity *Identity) Action {
	if identity != nil {
		cp := *identity
		identity = &cp
	}
	return setIdentityAction{identity: identity}
}

func (a setIdentityAction) Apply(s *State) { s.Identity = a.identity }

func (a setIdentityAction) Name() string { return "set_identity" }

type setThemeAction struct{ dark bool }

// SetTheme switches between the dark and light theme.
func SetTheme(dark bool) Action { return setThemeAction{dark: dark} }

func (a setThemeAction) Apply(s *State) { s.DarkTheme = a.dark }

func (a setThemeAction) Name() string { return "set_theme" }

type setSidebarOpenAction struct{ open bool }

// SetSidebarOpen shows or hides the conversation list.
func SetSidebarOpen(open bool) Action { return setSidebarOpenAction{open: open} }

func (a setSidebarOpenAction) Apply(s *State) { s.SidebarOpen = a.open }

func (a setSidebarOpenAction) Name() string { return "set_sidebar_open" }

func findMessage(s *State, conversationID, messageID string) (*Message, bool) {
	c, ok := s.Conversation(conversationID)
	if !ok {
		return nil, false
	}
	return c.Message(messageID)
}

func clearGenerating(c *Conversation) {
	for i := range c.Messages {
		c.Messages[i].IsGenerating = false
	}
}
