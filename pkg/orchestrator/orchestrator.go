package orchestrator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/guru/pkg/api"
	"github.com/go-go-golems/guru/pkg/conversation"
)

const (
	DefaultFailureNotice         = "Sorry, I could not get an answer right now. Please try again."
	DefaultResearchFailureNotice = "Sorry, the research content could not be generated. Please try again."
	DefaultLoadingLabel          = "Researching your topic..."
	DefaultMaxImages             = 3
)

// Dispatcher is the part of the store the orchestrator writes through.
// Dispatch must be safe for concurrent use and return the state after the
// action was applied.
type Dispatcher interface {
	Dispatch(a conversation.Action) *conversation.State
	State() *conversation.State
}

type QueryService interface {
	Query(ctx context.Context, req api.QueryRequest) (*api.QueryResponse, error)
}

type ContentService interface {
	Generate(ctx context.Context, req api.GenerateRequest) (*api.GenerateResponse, error)
}

type VideoService interface {
	RecommendVideos(ctx context.Context, query string) (*api.VideoResponse, error)
}

type EnrichmentService interface {
	SaveEnrichment(ctx context.Context, req api.EnrichmentRequest) error
}

// Backend bundles every collaborator a send needs. *api.Client implements it.
type Backend interface {
	QueryService
	ContentService
	VideoService
	EnrichmentService
}

// Orchestrator turns one user input into a committed user message and,
// eventually, exactly one assistant message.
type Orchestrator struct {
	dispatcher Dispatcher

	query      QueryService
	content    ContentService
	videos     VideoService
	enrichment EnrichmentService

	newID func() string
	now   func() time.Time

	maxImages             int
	lang                  string
	failureNotice         string
	researchFailureNotice string
	loadingLabel          string

	background sync.WaitGroup
}

type Option func(*Orchestrator)

func WithBackend(b Backend) Option {
	return func(o *Orchestrator) {
		o.query = b
		o.content = b
		o.videos = b
		o.enrichment = b
	}
}

func WithQueryService(s QueryService) Option {
	return func(o *Orchestrator) { o.query = s }
}

func WithContentService(s ContentService) Option {
	return func(o *Orchestrator) { o.content = s }
}

func WithVideoService(s VideoService) Option {
	return func(o *Orchestrator) { o.videos = s }
}

func WithEnrichmentService(s EnrichmentService) Option {
	return func(o *Orchestrator) { o.enrichment = s }
}

// WithIDGenerator replaces uuid.NewString for conversation and message ids.
func WithIDGenerator(f func() string) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.newID = f
		}
	}
}

func WithClock(f func() time.Time) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.now = f
		}
	}
}

func WithMaxImages(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxImages = n
		}
	}
}

func WithLang(lang string) Option {
	return func(o *Orchestrator) { o.lang = lang }
}

func WithFailureNotice(notice string) Option {
	return func(o *Orchestrator) {
		if notice != "" {
			o.failureNotice = notice
		}
	}
}

func WithResearchFailureNotice(notice string) Option {
	return func(o *Orchestrator) {
		if notice != "" {
			o.researchFailureNotice = notice
		}
	}
}

func WithLoadingLabel(label string) Option {
	return func(o *Orchestrator) {
		if label != "" {
			o.loadingLabel = label
		}
	}
}

func New(d Dispatcher, options ...Option) *Orchestrator {
	o := &Orchestrator{
		dispatcher:            d,
		newID:                 uuid.NewString,
		now:                   time.Now,
		maxImages:             DefaultMaxImages,
		failureNotice:         DefaultFailureNotice,
		researchFailureNotice: DefaultResearchFailureNotice,
		loadingLabel:          DefaultLoadingLabel,
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

// request is everything the network part of a turn needs, captured at the
// time the user message was committed.
type request struct {
	conversationID string
	backendID      string
	username       string
	text           string
	mode           conversation.Mode
	page           int
}

// SendMessage commits the user message synchronously and runs the collaborator
// calls in the background. It returns nil when text is blank.
//
// An empty mode is sent as general.
func (o *Orchestrator) SendMessage(ctx context.Context, text string, mode conversation.Mode) *Turn {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if mode == conversation.ModeNone {
		mode = conversation.ModeGeneral
	}
	if ctx == nil {
		ctx = context.Background()
	}

	state := o.dispatcher.State()
	conversationID := state.SelectedConversationID
	if _, ok := state.Conversation(conversationID); !ok {
		conversationID = o.newID()
		state = o.dispatcher.Dispatch(conversation.CreateConversation(conversationID, o.now()))
	}
	c, ok := state.Conversation(conversationID)
	if !ok {
		// only reachable with a dispatcher that drops actions
		log.Error().Str("conversation_id", conversationID).Msg("conversation vanished before send")
		return nil
	}

	userMessage := conversation.Message{
		ID:        o.newID(),
		Role:      conversation.RoleUser,
		Content:   text,
		Timestamp: o.now(),
		Mode:      mode,
		Page:      c.Page,
	}
	o.dispatcher.Dispatch(conversation.AppendMessage(conversationID, userMessage))
	o.dispatcher.Dispatch(conversation.SetAwaitingResponse(true))

	req := request{
		conversationID: conversationID,
		backendID:      c.BackendID,
		username:       state.Username(),
		text:           text,
		mode:           mode,
		page:           c.Page,
	}

	ctx, cancel := context.WithCancel(ctx)
	turn := newTurn(conversationID, userMessage.ID, mode, cancel)

	log.Debug().
		Str("conversation_id", conversationID).
		Str("message_id", userMessage.ID).
		Str("mode", string(mode)).
		Int("page", c.Page).
		Msg("send started")

	o.background.Add(1)
	go o.run(ctx, turn, req)
	return turn
}

func (o *Orchestrator) run(ctx context.Context, turn *Turn, req request) {
	result := &TurnResult{
		ConversationID: req.conversationID,
		UserMessageID:  turn.UserMessageID,
		Mode:           req.mode,
	}
	var err error

	defer o.background.Done()
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("send turn panicked: %v", r)
			log.Error().Err(err).Str("conversation_id", req.conversationID).Msg("recovered from panic in send")
		}
		o.finish(req, result)
		turn.setResult(result, err)
	}()

	if req.mode.IsResearch() {
		o.runResearch(ctx, req, result)
	} else {
		o.runGeneral(ctx, req, result)
	}
}

// finish always runs: it guarantees the assistant message exists and clears
// the awaiting flag and the loading label.
func (o *Orchestrator) finish(req request, result *TurnResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("conversation_id", req.conversationID).Msg("recovered from panic while finishing send")
		}
	}()

	if result.AssistantMessageID == "" {
		notice := o.failureNotice
		if req.mode.IsResearch() {
			notice = o.researchFailureNotice
		}
		result.AssistantMessageID = o.appendAssistant(req, notice, !req.mode.IsResearch())
	}
	o.dispatcher.Dispatch(conversation.SetAwaitingResponse(false))
	o.dispatcher.Dispatch(conversation.SetLoadingLabel(""))

	log.Debug().
		Str("conversation_id", req.conversationID).
		Str("message_id", result.AssistantMessageID).
		AnErr("primary_error", result.PrimaryErr).
		Msg("send finished")
}

func (o *Orchestrator) appendAssistant(req request, content string, animate bool) string {
	m := conversation.Message{
		ID:           o.newID(),
		Role:         conversation.RoleAssistant,
		Content:      content,
		Timestamp:    o.now(),
		Mode:         req.mode,
		IsStreaming:  animate,
		IsGenerating: animate,
		Page:         req.page,
	}
	o.dispatcher.Dispatch(conversation.AppendMessage(req.conversationID, m))
	return m.ID
}

// commitBackendID records the correlation id. The first id wins; a different
// one arriving later is only logged.
func (o *Orchestrator) commitBackendID(conversationID, backendID string) string {
	if backendID == "" {
		return ""
	}
	if c, ok := o.dispatcher.State().Conversation(conversationID); ok && c.BackendID != "" && c.BackendID != backendID {
		log.Warn().
			Str("conversation_id", conversationID).
			Str("backend_id", c.BackendID).
			Str("divergent_backend_id", backendID).
			Msg("ignoring divergent backend id")
	}
	state := o.dispatcher.Dispatch(conversation.SetBackendID(conversationID, backendID))
	if c, ok := state.Conversation(conversationID); ok {
		return c.BackendID
	}
	return backendID
}

// Drain waits for running turns and for the enrichment saves they started.
func (o *Orchestrator) Drain() {
	o.background.Wait()
}
