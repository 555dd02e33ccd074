package store

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/guru/pkg/api"
	"github.com/go-go-golems/guru/pkg/conversation"
	"github.com/go-go-golems/guru/pkg/helpers"
	"github.com/go-go-golems/guru/pkg/history"
	"github.com/go-go-golems/guru/pkg/orchestrator"
)

// CreateConversation creates and selects an empty conversation.
func (s *Store) CreateConversation() string {
	id := s.newID()
	s.Dispatch(conversation.CreateConversation(id, s.now()))
	return id
}

func (s *Store) SelectConversation(id string) {
	s.Dispatch(conversation.SelectConversation(id))
}

func (s *Store) DeleteConversation(id string) {
	s.Dispatch(conversation.DeleteConversation(id))
}

// SendMessage commits the user message before returning. Use the returned
// turn to wait for the assistant message. It returns nil for blank text.
func (s *Store) SendMessage(ctx context.Context, text string, mode conversation.Mode) *orchestrator.Turn {
	return s.orchestrator.SendMessage(ctx, text, mode)
}

// AssistantMessageOptions describe an out-of-band assistant message, for
// example a transcript from a voice channel.
type AssistantMessageOptions struct {
	// ConversationID defaults to the selected conversation. A new one is
	// created when nothing is selected.
	ConversationID string
	Mode           conversation.Mode
	// Streaming marks the message as still being produced; call
	// FinishStreaming when it is complete.
	Streaming bool
}

// AppendAssistantMessage appends an assistant message that did not come from
// a send and returns its conversation and message ids.
func (s *Store) AppendAssistantMessage(content string, opts AssistantMessageOptions) (string, string) {
	conversationID := opts.ConversationID
	state := s.State()
	if conversationID == "" {
		conversationID = state.SelectedConversationID
	}
	c, ok := state.Conversation(conversationID)
	if !ok {
		conversationID = s.CreateConversation()
		c, _ = s.State().Conversation(conversationID)
	}

	m := conversation.Message{
		ID:           s.newID(),
		Role:         conversation.RoleAssistant,
		Content:      content,
		Timestamp:    s.now(),
		Mode:         opts.Mode,
		IsStreaming:  opts.Streaming,
		IsGenerating: opts.Streaming,
	}
	if c != nil {
		m.Page = c.Page
	}
	s.Dispatch(conversation.AppendMessage(conversationID, m))
	return conversationID, m.ID
}

// FinishStreaming clears the streaming and generating flags of a message.
func (s *Store) FinishStreaming(conversationID, messageID string) {
	s.Dispatch(conversation.SetMessageStreaming(conversationID, messageID, false))
	s.Dispatch(conversation.SetMessageGenerating(conversationID, messageID, false))
}

func (s *Store) SetUIMode(mode conversation.Mode) {
	s.Dispatch(conversation.SetUIMode(mode))
}

// ToggleTheme flips the theme and returns whether it is now dark.
func (s *Store) ToggleTheme() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatchLocked(conversation.SetTheme(!s.state.DarkTheme)).DarkTheme
}

func (s *Store) SetSidebarOpen(open bool) {
	s.Dispatch(conversation.SetSidebarOpen(open))
}

func (s *Store) SetLoadingLabel(label string) {
	s.Dispatch(conversation.SetLoadingLabel(label))
}

// UpdateIdentity registers displayName as a new identity, persists it and
// loads its history.
func (s *Store) UpdateIdentity(ctx context.Context, displayName string) *conversation.Identity {
	id := s.identity.Create(ctx, displayName)
	s.applyIdentity(ctx, id, true)
	return id
}

// ReplaceIdentity installs a known identity as is.
func (s *Store) ReplaceIdentity(ctx context.Context, id *conversation.Identity) error {
	if id.IsZero() {
		return errors.New("identity needs a stable username")
	}
	s.applyIdentity(ctx, id, true)
	return nil
}

func (s *Store) applyIdentity(ctx context.Context, id *conversation.Identity, persist bool) {
	previous := s.State().Username()
	s.Dispatch(conversation.SetIdentity(id))

	if persist {
		if err := s.identity.Save(ctx, id); err != nil {
			log.Error().Err(err).Str("username", id.StableUsername).Msg("could not persist identity")
		}
	}
	if id.StableUsername != previous {
		s.LoadHistory(ctx)
	}
}

// LoadHistory replaces all conversations with the server-side history of
// the current identity.
func (s *Store) LoadHistory(ctx context.Context) history.Result {
	return s.history.Load(ctx)
}

// QuizOptions select what GenerateQuiz asks for.
type QuizOptions struct {
	NumQuestions int
	Difficulty   string
	// ConversationID defaults to the selected conversation; its backend id
	// scopes the quiz when known.
	ConversationID string
}

const (
	minQuizQuestions     = 1
	maxQuizQuestions     = 20
	defaultQuizQuestions = 5
)

// GenerateQuiz asks the quiz generator for questions about the user's
// conversations.
func (s *Store) GenerateQuiz(ctx context.Context, opts QuizOptions) (*api.QuizResponse, error) {
	state := s.State()
	username := state.Username()
	if username == "" {
		return nil, errors.New("no identity, cannot generate a quiz")
	}

	n := opts.NumQuestions
	switch {
	case n == 0:
		n = defaultQuizQuestions
	case n < minQuizQuestions:
		n = minQuizQuestions
	case n > maxQuizQuestions:
		n = maxQuizQuestions
	}

	req := api.QuizRequest{UserID: username, NumQuestions: n, Difficulty: opts.Difficulty}
	conversationID := opts.ConversationID
	if conversationID == "" {
		conversationID = state.SelectedConversationID
	}
	if c, ok := state.Conversation(conversationID); ok {
		req.ChatID = helpers.NonEmptyPointer(c.BackendID)
	}

	resp, err := s.quiz.GenerateQuiz(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "could not generate quiz")
	}
	return resp, nil
}
