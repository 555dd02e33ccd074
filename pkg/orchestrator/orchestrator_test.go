package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/guru/pkg/api"
	"github.com/go-go-golems/guru/pkg/conversation"
)

var t0 = time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)

type memStore struct {
	mu      sync.Mutex
	state   *conversation.State
	actions []string
}

func newMemStore() *memStore {
	s := conversation.NewState()
	s.Identity = &conversation.Identity{DisplayName: "Ada", StableUsername: "ada_x1y2"}
	return &memStore{state: s}
}

func (m *memStore) Dispatch(a conversation.Action) *conversation.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = conversation.Reduce(m.state, a)
	m.actions = append(m.actions, a.Name())
	return m.state
}

func (m *memStore) State() *conversation.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *memStore) selected(t *testing.T) *conversation.Conversation {
	t.Helper()
	c, ok := m.State().Selected()
	require.True(t, ok)
	return c
}

type fakeBackend struct {
	query    func(ctx context.Context, req api.QueryRequest) (*api.QueryResponse, error)
	generate func(ctx context.Context, req api.GenerateRequest) (*api.GenerateResponse, error)
	videos   func(ctx context.Context, q string) (*api.VideoResponse, error)
	saveErr  error

	mu        sync.Mutex
	queries   []api.QueryRequest
	generates []api.GenerateRequest
	saved     []api.EnrichmentRequest
}

func (f *fakeBackend) Query(ctx context.Context, req api.QueryRequest) (*api.QueryResponse, error) {
	f.mu.Lock()
	f.queries = append(f.queries, req)
	f.mu.Unlock()
	return f.query(ctx, req)
}

func (f *fakeBackend) Generate(ctx context.Context, req api.GenerateRequest) (*api.GenerateResponse, error) {
	f.mu.Lock()
	f.generates = append(f.generates, req)
	f.mu.Unlock()
	return f.generate(ctx, req)
}

func (f *fakeBackend) RecommendVideos(ctx context.Context, q string) (*api.VideoResponse, error) {
	return f.videos(ctx, q)
}

func (f *fakeBackend) SaveEnrichment(ctx context.Context, req api.EnrichmentRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, req)
	return f.saveErr
}

func (f *fakeBackend) savedRequests() []api.EnrichmentRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]api.EnrichmentRequest(nil), f.saved...)
}

func newTestOrchestrator(store *memStore, backend Backend) *Orchestrator {
	var n atomic.Int64
	return New(store,
		WithBackend(backend),
		WithIDGenerator(func() string { return fmt.Sprintf("id-%d", n.Add(1)) }),
		WithClock(func() time.Time { return t0 }),
	)
}

func assistantMessages(c *conversation.Conversation) []conversation.Message {
	var out []conversation.Message
	for _, m := range c.Messages {
		if m.Role == conversation.RoleAssistant {
			out = append(out, m)
		}
	}
	return out
}

func lesson(text string) *api.QueryResponse {
	return &api.QueryResponse{Lesson: []api.PageContent{{Script: text}}}
}

func TestSendBlankTextIsNoop(t *testing.T) {
	store := newMemStore()
	o := newTestOrchestrator(store, &fakeBackend{})

	assert.Nil(t, o.SendMessage(context.Background(), "   \n\t", conversation.ModeGeneral))
	assert.Empty(t, store.State().Conversations)
	assert.Equal(t, int64(0), store.State().Version)
}

func TestGeneralSendCreatesConversationAndAnswers(t *testing.T) {
	store := newMemStore()
	g := newGate()
	backend := &fakeBackend{query: func(ctx context.Context, req api.QueryRequest) (*api.QueryResponse, error) {
		g.wait(ctx)
		return lesson("Gravity pulls masses together."), nil
	}}
	o := newTestOrchestrator(store, backend)

	turn := o.SendMessage(context.Background(), "  what is gravity ", "")
	require.NotNil(t, turn)
	waitStarted(t, g)
	assert.True(t, store.State().IsAwaitingResponse)

	// committed before any network result is observable
	c := store.selected(t)
	require.Len(t, c.Messages, 1)
	assert.Equal(t, conversation.RoleUser, c.Messages[0].Role)
	assert.Equal(t, "what is gravity", c.Messages[0].Content)
	assert.Equal(t, conversation.ModeGeneral, c.Messages[0].Mode)
	assert.Equal(t, 1, c.Messages[0].Page)

	close(g.release)
	res, err := turn.Wait()
	require.NoError(t, err)
	assert.NoError(t, res.PrimaryErr)

	state := store.State()
	assert.False(t, state.IsAwaitingResponse)
	c = store.selected(t)
	require.Len(t, c.Messages, 2)
	a := c.Messages[1]
	assert.Equal(t, res.AssistantMessageID, a.ID)
	assert.Equal(t, "Gravity pulls masses together.", a.Content)
	assert.True(t, a.IsGenerating)
	assert.True(t, a.IsStreaming)
	assert.Equal(t, "what is gravity", c.Title)

	require.Len(t, backend.queries, 1)
	q := backend.queries[0]
	assert.Equal(t, "ada_x1y2", q.UserID)
	assert.Equal(t, "general", q.Mode)
	assert.Equal(t, 1, q.Page)
	assert.Nil(t, q.ChatID)
}

func TestGeneralSendSendsKnownBackendID(t *testing.T) {
	store := newMemStore()
	store.Dispatch(conversation.CreateConversation("c1", t0))
	store.Dispatch(conversation.SetBackendID("c1", "chat-9"))
	backend := &fakeBackend{query: func(ctx context.Context, req api.QueryRequest) (*api.QueryResponse, error) {
		return lesson("ok"), nil
	}}
	o := newTestOrchestrator(store, backend)

	_, err := o.SendMessage(context.Background(), "follow up", conversation.ModeGeneral).Wait()
	require.NoError(t, err)

	require.Len(t, backend.queries, 1)
	require.NotNil(t, backend.queries[0].ChatID)
	assert.Equal(t, "chat-9", *backend.queries[0].ChatID)
	assert.Len(t, store.State().Conversations, 1)
}

func TestGeneralSendFailureAppendsOneFallback(t *testing.T) {
	store := newMemStore()
	backend := &fakeBackend{query: func(ctx context.Context, req api.QueryRequest) (*api.QueryResponse, error) {
		return nil, &api.StatusError{StatusCode: 500, Detail: "boom"}
	}}
	o := newTestOrchestrator(store, backend)

	res, err := o.SendMessage(context.Background(), "hello", conversation.ModeGeneral).Wait()
	require.NoError(t, err)
	assert.Error(t, res.PrimaryErr)

	state := store.State()
	assert.False(t, state.IsAwaitingResponse)
	c := store.selected(t)
	assistants := assistantMessages(c)
	require.Len(t, assistants, 1)
	assert.Equal(t, DefaultFailureNotice, assistants[0].Content)
	assert.True(t, assistants[0].IsGenerating)
	assert.True(t, assistants[0].IsStreaming)
}

func TestPanickingCollaboratorStillFinishesTurn(t *testing.T) {
	store := newMemStore()
	backend := &fakeBackend{query: func(ctx context.Context, req api.QueryRequest) (*api.QueryResponse, error) {
		panic("collaborator exploded")
	}}
	o := newTestOrchestrator(store, backend)

	_, err := o.SendMessage(context.Background(), "hello", conversation.ModeGeneral).Wait()
	require.Error(t, err)

	assert.False(t, store.State().IsAwaitingResponse)
	assistants := assistantMessages(store.selected(t))
	require.Len(t, assistants, 1)
	assert.Equal(t, DefaultFailureNotice, assistants[0].Content)
}

type gate struct {
	started chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) wait(ctx context.Context) {
	close(g.started)
	select {
	case <-g.release:
	case <-ctx.Done():
	}
}

func waitStarted(t *testing.T, g *gate) {
	t.Helper()
	select {
	case <-g.started:
	case <-time.After(2 * time.Second):
		t.Fatal("collaborator call did not start")
	}
}

func researchBackend(contentGate, videoGate *gate) *fakeBackend {
	return &fakeBackend{
		generate: func(ctx context.Context, req api.GenerateRequest) (*api.GenerateResponse, error) {
			contentGate.wait(ctx)
			return &api.GenerateResponse{
				ChatID: "chat-1",
				Blocks: []api.Block{{Type: "text", Content: "Photosynthesis turns light into sugar."}},
			}, nil
		},
		videos: func(ctx context.Context, q string) (*api.VideoResponse, error) {
			videoGate.wait(ctx)
			return &api.VideoResponse{Videos: []api.Video{
				{Title: "Intro", Link: "https://youtu.be/a"},
				{Title: "Deep dive", Link: "https://youtu.be/b"},
			}}, nil
		},
	}
}

func TestResearchContentFirstThenVideos(t *testing.T) {
	store := newMemStore()
	contentGate, videoGate := newGate(), newGate()
	backend := researchBackend(contentGate, videoGate)
	o := newTestOrchestrator(store, backend)

	turn := o.SendMessage(context.Background(), "photosynthesis", conversation.ModeResearch)
	require.NotNil(t, turn)

	// both calls are in flight before either resolves
	waitStarted(t, contentGate)
	waitStarted(t, videoGate)
	assert.Equal(t, DefaultLoadingLabel, store.State().ActiveLoadingLabel)
	assert.True(t, store.State().IsAwaitingResponse)

	close(contentGate.release)

	require.Eventually(t, func() bool {
		return len(assistantMessages(store.selected(t))) == 1
	}, 2*time.Second, 5*time.Millisecond)

	c := store.selected(t)
	first := assistantMessages(c)[0]
	assert.False(t, first.IsStreaming)
	assert.True(t, strings.HasPrefix(first.Content, conversation.BlocksMarker))
	assert.NotContains(t, first.Content, conversation.VideosMarker)
	assert.Equal(t, "chat-1", c.BackendID)
	assert.False(t, c.HasUsedResearchMode)

	close(videoGate.release)
	res, err := turn.Wait()
	require.NoError(t, err)
	o.Drain()

	c = store.selected(t)
	assistants := assistantMessages(c)
	require.Len(t, assistants, 1)
	final := assistants[0]
	assert.Equal(t, first.ID, final.ID)
	assert.Equal(t, res.AssistantMessageID, final.ID)
	assert.True(t, strings.HasPrefix(final.Content, first.Content))
	assert.Contains(t, final.Content, conversation.VideosMarker)
	assert.Contains(t, final.Content, "youtu.be/b")
	assert.True(t, c.HasUsedResearchMode)
	assert.Equal(t, 2, res.VideoCount)

	state := store.State()
	assert.False(t, state.IsAwaitingResponse)
	assert.Equal(t, "", state.ActiveLoadingLabel)

	saved := backend.savedRequests()
	require.Len(t, saved, 1)
	assert.Equal(t, "chat-1", saved[0].ChatID)
	assert.Equal(t, 1, saved[0].Page)
	assert.Len(t, saved[0].YoutubeLinks, 2)

	require.Len(t, backend.generates, 1)
	assert.Equal(t, DefaultMaxImages, backend.generates[0].MaxImages)
}

func TestResearchVideosFirstThenContent(t *testing.T) {
	store := newMemStore()
	contentGate, videoGate := newGate(), newGate()
	backend := researchBackend(contentGate, videoGate)
	o := newTestOrchestrator(store, backend)

	turn := o.SendMessage(context.Background(), "photosynthesis", conversation.ModeResearch)
	waitStarted(t, contentGate)
	close(videoGate.release)

	// the video result alone never creates a message
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, assistantMessages(store.selected(t)))

	close(contentGate.release)
	_, err := turn.Wait()
	require.NoError(t, err)
	o.Drain()

	assistants := assistantMessages(store.selected(t))
	require.Len(t, assistants, 1)
	content := assistants[0].Content
	blocksAt := strings.Index(content, conversation.BlocksMarker)
	videosAt := strings.Index(content, conversation.VideosMarker)
	assert.Equal(t, 0, blocksAt)
	assert.Greater(t, videosAt, blocksAt)
	assert.Len(t, backend.savedRequests(), 1)
}

func TestResearchBothFailStillAppendsOneMessage(t *testing.T) {
	store := newMemStore()
	backend := &fakeBackend{
		generate: func(ctx context.Context, req api.GenerateRequest) (*api.GenerateResponse, error) {
			return nil, errors.New("connection refused")
		},
		videos: func(ctx context.Context, q string) (*api.VideoResponse, error) {
			return nil, errors.New("connection refused")
		},
	}
	o := newTestOrchestrator(store, backend)

	res, err := o.SendMessage(context.Background(), "photosynthesis", conversation.ModeResearch).Wait()
	require.NoError(t, err)
	o.Drain()

	assert.Error(t, res.PrimaryErr)
	assert.Error(t, res.VideoErr)

	c := store.selected(t)
	assistants := assistantMessages(c)
	require.Len(t, assistants, 1)
	assert.True(t, strings.HasPrefix(assistants[0].Content, DefaultResearchFailureNotice))
	assert.True(t, strings.HasSuffix(assistants[0].Content, conversation.VideoSection(nil)))
	assert.Equal(t, "", c.BackendID)
	assert.Empty(t, backend.savedRequests())
	assert.False(t, store.State().IsAwaitingResponse)
}

func TestResearchVideoNotFoundIsEmptyEnrichment(t *testing.T) {
	store := newMemStore()
	backend := &fakeBackend{
		generate: func(ctx context.Context, req api.GenerateRequest) (*api.GenerateResponse, error) {
			return &api.GenerateResponse{ChatID: "chat-1"}, nil
		},
		videos: func(ctx context.Context, q string) (*api.VideoResponse, error) {
			return nil, &api.StatusError{StatusCode: 404}
		},
	}
	o := newTestOrchestrator(store, backend)

	res, err := o.SendMessage(context.Background(), "obscure topic", conversation.ModeResearch).Wait()
	require.NoError(t, err)
	o.Drain()

	assert.NoError(t, res.VideoErr)
	assert.Equal(t, 0, res.VideoCount)
	assert.Empty(t, backend.savedRequests())
	assert.True(t, store.selected(t).HasUsedResearchMode)
}

func TestEnrichmentPersistenceFailureIsIgnored(t *testing.T) {
	store := newMemStore()
	contentGate, videoGate := newGate(), newGate()
	close(contentGate.release)
	close(videoGate.release)
	backend := researchBackend(contentGate, videoGate)
	backend.saveErr = errors.New("mongo down")
	o := newTestOrchestrator(store, backend)

	_, err := o.SendMessage(context.Background(), "photosynthesis", conversation.ModeResearch).Wait()
	require.NoError(t, err)
	o.Drain()

	assistants := assistantMessages(store.selected(t))
	require.Len(t, assistants, 1)
	assert.Contains(t, assistants[0].Content, "youtu.be/a")
}

func TestBackendIDStaysStableAcrossSends(t *testing.T) {
	store := newMemStore()
	var calls atomic.Int64
	backend := &fakeBackend{
		generate: func(ctx context.Context, req api.GenerateRequest) (*api.GenerateResponse, error) {
			return &api.GenerateResponse{ChatID: fmt.Sprintf("chat-%d", calls.Add(1))}, nil
		},
		videos: func(ctx context.Context, q string) (*api.VideoResponse, error) {
			return &api.VideoResponse{}, nil
		},
	}
	o := newTestOrchestrator(store, backend)

	_, err := o.SendMessage(context.Background(), "first", conversation.ModeResearch).Wait()
	require.NoError(t, err)
	_, err = o.SendMessage(context.Background(), "second", conversation.ModeResearch).Wait()
	require.NoError(t, err)

	c := store.selected(t)
	assert.Equal(t, "chat-1", c.BackendID)
	assert.Len(t, assistantMessages(c), 2)
	assert.Len(t, store.State().Conversations, 1)
}

func TestDivergentBackendIDIsLogged(t *testing.T) {
	var buf bytes.Buffer
	previous := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = previous })

	store := newMemStore()
	var calls atomic.Int64
	backend := &fakeBackend{
		generate: func(ctx context.Context, req api.GenerateRequest) (*api.GenerateResponse, error) {
			return &api.GenerateResponse{ChatID: fmt.Sprintf("chat-%d", calls.Add(1))}, nil
		},
		videos: func(ctx context.Context, q string) (*api.VideoResponse, error) {
			return &api.VideoResponse{}, nil
		},
	}
	o := newTestOrchestrator(store, backend)

	_, err := o.SendMessage(context.Background(), "first", conversation.ModeResearch).Wait()
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "ignoring divergent backend id")

	res, err := o.SendMessage(context.Background(), "second", conversation.ModeResearch).Wait()
	require.NoError(t, err)
	o.Drain()

	assert.Equal(t, "chat-1", res.BackendID)
	assert.Equal(t, "chat-1", store.selected(t).BackendID)
	out := buf.String()
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, "ignoring divergent backend id")
	assert.Contains(t, out, `"divergent_backend_id":"chat-2"`)
	assert.Contains(t, out, `"backend_id":"chat-1"`)
}

func TestDrainWaitsForRunningTurn(t *testing.T) {
	store := newMemStore()
	contentGate, videoGate := newGate(), newGate()
	backend := researchBackend(contentGate, videoGate)
	o := newTestOrchestrator(store, backend)

	turn := o.SendMessage(context.Background(), "photosynthesis", conversation.ModeResearch)
	waitStarted(t, contentGate)
	waitStarted(t, videoGate)

	drained := make(chan struct{})
	go func() {
		o.Drain()
		close(drained)
	}()

	select {
	case <-drained:
		t.Fatal("Drain returned while the turn was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(contentGate.release)
	close(videoGate.release)

	select {
	case <-drained:
	case <-time.After(2 * time.Second):
		t.Fatal("Drain did not return after the turn finished")
	}
	assert.False(t, turn.IsRunning())
	assert.Len(t, backend.savedRequests(), 1)
	assert.False(t, store.State().IsAwaitingResponse)
}

func TestCancelEndsTurnWithFallback(t *testing.T) {
	store := newMemStore()
	backend := &fakeBackend{query: func(ctx context.Context, req api.QueryRequest) (*api.QueryResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	o := newTestOrchestrator(store, backend)

	turn := o.SendMessage(context.Background(), "hello", conversation.ModeGeneral)
	assert.True(t, turn.IsRunning())
	turn.Cancel()

	res, err := turn.Wait()
	require.NoError(t, err)
	assert.ErrorIs(t, res.PrimaryErr, context.Canceled)
	assert.Len(t, assistantMessages(store.selected(t)), 1)
	assert.False(t, turn.IsRunning())
}

func TestNilTurn(t *testing.T) {
	var turn *Turn
	_, err := turn.Wait()
	assert.ErrorIs(t, err, ErrTurnNil)
	assert.False(t, turn.IsRunning())
	turn.Cancel()
	<-turn.Done()
}
