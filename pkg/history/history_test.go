package history

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/guru/pkg/api"
	"github.com/go-go-golems/guru/pkg/conversation"
)

const twoPages = `{"user_id":"ada_x1y2","history":[
	{"page":1,"preview":"what is gravity","chats":[
		{"_id":"r1","timestamp":"2025-08-01T10:00:00","chat_id":"chat-1","query":"what is gravity","response":"Gravity pulls.","LLM_model":"gpt-4o"}
	]},
	{"page":2,"preview":"photosynthesis","chats":[
		{"_id":"r2","timestamp":"2025-08-02T09:00:00","chat_id":"chat-2","query":"photosynthesis",
		 "response":[{"type":"text","content":"Light becomes sugar."}],
		 "youtube_links":[{"title":"Intro","link":"https://youtu.be/a"},{"title":"More","link":"https://youtu.be/b"}],
		 "LLM_model":"gemini"}
	]}
]}`

func decode(t *testing.T, body string) *api.HistoryResponse {
	t.Helper()
	var resp api.HistoryResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	return &resp
}

func TestBuildTwoPages(t *testing.T) {
	built := Build("ada_x1y2", decode(t, twoPages), BuildOptions{ResearchModels: []string{"gemini"}})

	require.Len(t, built.Conversations, 2)
	assert.Equal(t, 2, built.CurrentPage)
	assert.Equal(t, 0, built.Skipped)

	page2, page1 := built.Conversations[0], built.Conversations[1]
	assert.Equal(t, 2, page2.Page)
	assert.Equal(t, 1, page1.Page)

	require.Len(t, page2.Messages, 2)
	assert.Equal(t, conversation.RoleUser, page2.Messages[0].Role)
	assistant := page2.Messages[1]
	assert.Equal(t, conversation.RoleAssistant, assistant.Role)
	assert.True(t, strings.HasPrefix(assistant.Content, conversation.BlocksMarker))
	assert.Contains(t, assistant.Content, conversation.VideosMarker)
	assert.Contains(t, assistant.Content, "youtu.be/b")
	assert.True(t, page2.HasUsedResearchMode)
	assert.Equal(t, "", page2.BackendID)
	assert.Equal(t, 2, assistant.Page)

	require.Len(t, page1.Messages, 2)
	assert.Equal(t, "Gravity pulls.", page1.Messages[1].Content)
	assert.False(t, page1.HasUsedResearchMode)
	assert.Equal(t, "what is gravity", page1.Title)
}

func TestBuildSortsMessagesByTimestamp(t *testing.T) {
	body := `{"history":[{"page":3,"chats":[
		{"_id":"late","timestamp":"2025-08-01T12:00:00","query":"second","response":"b"},
		{"_id":"early","timestamp":"2025-08-01T08:00:00","query":"first","response":"a"}
	]}]}`
	built := Build("u", decode(t, body), BuildOptions{})

	require.Len(t, built.Conversations, 1)
	c := built.Conversations[0]
	require.Len(t, c.Messages, 4)
	assert.Equal(t, "first", c.Messages[0].Content)
	assert.Equal(t, "a", c.Messages[1].Content)
	assert.Equal(t, "second", c.Messages[2].Content)
	assert.Equal(t, "first", c.Title)
	assert.Equal(t, time.Date(2025, 8, 1, 8, 0, 0, 0, time.UTC), c.CreatedAt)
	assert.Equal(t, time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC), c.UpdatedAt)
}

func TestBuildSkipsMalformedRecords(t *testing.T) {
	body := `{"history":[
		{"page":1,"chats":[
			{"_id":"ok","timestamp":"2025-08-01T10:00:00","query":"fine","response":"yes"},
			{"_id":"bad-ts","timestamp":"not a date at all","query":"broken"},
			{"_id":"bad-resp","timestamp":"2025-08-01T11:00:00","query":"odd","response":42}
		]},
		{"page":0,"chats":[{"_id":"zero","query":"nowhere","response":"x"}]},
		{"page":2,"chats":[]}
	]}`
	built := Build("u", decode(t, body), BuildOptions{})

	require.Len(t, built.Conversations, 1)
	assert.Equal(t, 1, built.CurrentPage)
	assert.Equal(t, 3, built.Skipped)
	assert.Len(t, built.Conversations[0].Messages, 2)
}

func TestBuildIsDeterministic(t *testing.T) {
	a := Build("ada_x1y2", decode(t, twoPages), BuildOptions{})
	b := Build("ada_x1y2", decode(t, twoPages), BuildOptions{})
	assert.Equal(t, a, b)

	other := Build("grace_k3l4", decode(t, twoPages), BuildOptions{})
	assert.NotEqual(t, a.Conversations[0].ID, other.Conversations[0].ID)
}

func TestResponseContent(t *testing.T) {
	text, ok, err := responseContent(json.RawMessage(`{"lesson":[{"script":"from lesson"}]}`))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "from lesson", text)

	_, ok, err = responseContent(json.RawMessage(`null`))
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = responseContent(json.RawMessage(`"  "`))
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = responseContent(json.RawMessage(`{"unexpected":true}`))
	assert.Error(t, err)
}

type memStore struct {
	mu    sync.Mutex
	state *conversation.State
}

func newMemStore(username string) *memStore {
	s := conversation.NewState()
	if username != "" {
		s.Identity = &conversation.Identity{DisplayName: "Ada", StableUsername: username}
	}
	return &memStore{state: s}
}

func (m *memStore) Dispatch(a conversation.Action) *conversation.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = conversation.Reduce(m.state, a)
	return m.state
}

func (m *memStore) State() *conversation.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

type fakeService struct {
	resp  *api.HistoryResponse
	err   error
	calls []string
}

func (f *fakeService) History(ctx context.Context, username string) (*api.HistoryResponse, error) {
	f.calls = append(f.calls, username)
	return f.resp, f.err
}

func TestLoaderReplacesState(t *testing.T) {
	store := newMemStore("ada_x1y2")
	store.Dispatch(conversation.CreateConversation("local", time.Now()))
	svc := &fakeService{resp: decode(t, twoPages)}

	res := NewLoader(store, svc).Load(context.Background())
	require.True(t, res.Applied)
	assert.Equal(t, []string{"ada_x1y2"}, svc.calls)

	s := store.State()
	require.Len(t, s.Conversations, 2)
	assert.Equal(t, 2, s.Conversations[0].Page)
	assert.Equal(t, 2, s.CurrentPage)
	assert.Equal(t, "", s.SelectedConversationID)
	_, ok := s.Conversation("local")
	assert.False(t, ok)
	assert.True(t, s.Conversations[0].HasUsedResearchMode)
}

func TestLoaderIsIdempotent(t *testing.T) {
	store := newMemStore("ada_x1y2")
	svc := &fakeService{resp: decode(t, twoPages)}
	l := NewLoader(store, svc)

	l.Load(context.Background())
	first := store.State().Conversations
	l.Load(context.Background())
	assert.Equal(t, first, store.State().Conversations)
}

func TestLoaderNotFoundIsEmptyHistory(t *testing.T) {
	store := newMemStore("ada_x1y2")
	store.Dispatch(conversation.CreateConversation("local", time.Now()))
	svc := &fakeService{err: &api.StatusError{StatusCode: 404, Detail: "No history"}}

	res := NewLoader(store, svc).Load(context.Background())
	assert.True(t, res.Applied)
	assert.NoError(t, res.Err)

	s := store.State()
	assert.Empty(t, s.Conversations)
	assert.Equal(t, 1, s.CurrentPage)
}

func TestLoaderTransportFailureKeepsState(t *testing.T) {
	store := newMemStore("ada_x1y2")
	store.Dispatch(conversation.CreateConversation("local", time.Now()))
	before := store.State()
	svc := &fakeService{err: errors.New("connection refused")}

	res := NewLoader(store, svc).Load(context.Background())
	assert.False(t, res.Applied)
	assert.Error(t, res.Err)
	assert.Same(t, before, store.State())
}

func TestLoaderWithoutIdentityDoesNothing(t *testing.T) {
	store := newMemStore("")
	svc := &fakeService{}

	res := NewLoader(store, svc).Load(context.Background())
	assert.False(t, res.Applied)
	assert.Empty(t, svc.calls)
}
