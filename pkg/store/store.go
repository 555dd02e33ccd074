package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/guru/pkg/api"
	"github.com/go-go-golems/guru/pkg/conversation"
	"github.com/go-go-golems/guru/pkg/events"
	"github.com/go-go-golems/guru/pkg/history"
	"github.com/go-go-golems/guru/pkg/identity"
	"github.com/go-go-golems/guru/pkg/orchestrator"
)

type QuizService interface {
	GenerateQuiz(ctx context.Context, req api.QuizRequest) (*api.QuizResponse, error)
}

// Backend is every remote collaborator the store talks to. *api.Client
// implements it.
type Backend interface {
	orchestrator.Backend
	history.Service
	identity.Creator
	QuizService
}

// Store owns the global conversation state. All mutation goes through
// Dispatch; every other operation is a named wrapper around it.
type Store struct {
	mu    sync.RWMutex
	state *conversation.State

	bus          *events.Bus
	orchestrator *orchestrator.Orchestrator
	history      *history.Loader
	identity     *identity.Service
	quiz         QuizService

	newID func() string
	now   func() time.Time

	backend             Backend
	identityStore       identity.Store
	orchestratorOptions []orchestrator.Option
	historyOptions      []history.LoaderOption
	identityOptions     []identity.ServiceOption
	busOptions          []events.BusOption
}

type Option func(*Store)

func WithBackend(b Backend) Option {
	return func(s *Store) { s.backend = b }
}

func WithIdentityStore(is identity.Store) Option {
	return func(s *Store) { s.identityStore = is }
}

func WithOrchestratorOptions(options ...orchestrator.Option) Option {
	return func(s *Store) { s.orchestratorOptions = append(s.orchestratorOptions, options...) }
}

func WithHistoryOptions(options ...history.LoaderOption) Option {
	return func(s *Store) { s.historyOptions = append(s.historyOptions, options...) }
}

func WithIdentityOptions(options ...identity.ServiceOption) Option {
	return func(s *Store) { s.identityOptions = append(s.identityOptions, options...) }
}

func WithBusOptions(options ...events.BusOption) Option {
	return func(s *Store) { s.busOptions = append(s.busOptions, options...) }
}

// WithIDGenerator is shared with the orchestrator.
func WithIDGenerator(f func() string) Option {
	return func(s *Store) {
		if f != nil {
			s.newID = f
		}
	}
}

// WithClock is shared with the orchestrator.
func WithClock(f func() time.Time) Option {
	return func(s *Store) {
		if f != nil {
			s.now = f
		}
	}
}

func New(options ...Option) (*Store, error) {
	s := &Store{
		state: conversation.NewState(),
		newID: uuid.NewString,
		now:   time.Now,
	}
	for _, o := range options {
		o(s)
	}
	if s.backend == nil {
		return nil, errors.New("store needs a backend")
	}
	if s.identityStore == nil {
		s.identityStore = identity.NewMemoryStore()
	}

	s.bus = events.NewBus(s.busOptions...)
	s.orchestrator = orchestrator.New(s, append([]orchestrator.Option{
		orchestrator.WithBackend(s.backend),
		orchestrator.WithIDGenerator(s.newID),
		orchestrator.WithClock(s.now),
	}, s.orchestratorOptions...)...)
	s.history = history.NewLoader(s, s.backend, s.historyOptions...)
	s.identity = identity.NewService(s.identityStore, append([]identity.ServiceOption{
		identity.WithCreator(s.backend),
	}, s.identityOptions...)...)
	s.quiz = s.backend

	return s, nil
}

// State returns the current state. The value must be treated as read-only.
func (s *Store) State() *conversation.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Dispatch applies a through the reducer, then notifies subscribers.
// Notifications go out in version order.
func (s *Store) Dispatch(a conversation.Action) *conversation.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatchLocked(a)
}

func (s *Store) dispatchLocked(a conversation.Action) *conversation.State {
	next := conversation.Reduce(s.state, a)
	s.state = next
	if a == nil {
		return next
	}

	log.Trace().Str("action", a.Name()).Int64("version", next.Version).Msg("dispatched")
	s.bus.PublishBlind(events.StateChanged{
		Action:                 a.Name(),
		Version:                next.Version,
		SelectedConversationID: next.SelectedConversationID,
		IsAwaitingResponse:     next.IsAwaitingResponse,
	})
	return next
}

// Subscribe pushes one event per dispatch until ctx is done or the store is
// closed. Read State() to get the new value.
func (s *Store) Subscribe(ctx context.Context) (<-chan events.StateChanged, error) {
	return s.bus.Subscribe(ctx)
}

// Start loads the stored identity and, when there is one, its history.
// Without a stored identity the state keeps a nil identity until
// UpdateIdentity is called.
func (s *Store) Start(ctx context.Context) {
	id := s.identity.Load(ctx)
	if id == nil {
		log.Info().Msg("no stored identity, waiting for one to be created")
		return
	}
	s.applyIdentity(ctx, id, false)
}

// Close waits for running sends and their enrichment saves, then ends all
// subscriptions.
func (s *Store) Close() error {
	s.orchestrator.Drain()
	var ret error
	if err := s.bus.Close(); err != nil {
		ret = err
	}
	if err := s.identity.Close(); err != nil && ret == nil {
		ret = err
	}
	return ret
}
