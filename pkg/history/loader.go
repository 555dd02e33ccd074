package history

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/guru/pkg/api"
	"github.com/go-go-golems/guru/pkg/conversation"
)

type Service interface {
	History(ctx context.Context, username string) (*api.HistoryResponse, error)
}

// Dispatcher is the part of the store the loader writes through.
type Dispatcher interface {
	Dispatch(a conversation.Action) *conversation.State
	State() *conversation.State
}

// Loader rehydrates the persisted history of the current user.
//
// Loading replaces every local conversation. A conversation created locally
// and not yet known to the server is lost when Load runs again.
type Loader struct {
	dispatcher Dispatcher
	service    Service
	opts       BuildOptions
}

type LoaderOption func(*Loader)

func WithResearchModels(models ...string) LoaderOption {
	return func(l *Loader) {
		l.opts.ResearchModels = append([]string(nil), models...)
	}
}

func NewLoader(d Dispatcher, s Service, options ...LoaderOption) *Loader {
	l := &Loader{
		dispatcher: d,
		service:    s,
		opts:       BuildOptions{ResearchModels: []string{"gemini"}},
	}
	for _, o := range options {
		o(l)
	}
	return l
}

// Result reports what a Load did.
type Result struct {
	Username string
	// Applied is false when the state was left untouched.
	Applied       bool
	Conversations int
	CurrentPage   int
	Skipped       int
	// Err is the transport failure that prevented the load, already logged.
	Err error
}

// Load fetches the history of the current identity and replaces all
// conversations with it. "Not found" replaces with an empty history. Any
// other failure leaves the state as it was.
func (l *Loader) Load(ctx context.Context) Result {
	username := l.dispatcher.State().Username()
	ret := Result{Username: username}
	if username == "" {
		log.Debug().Msg("no identity yet, skipping history load")
		return ret
	}

	resp, err := l.service.History(ctx, username)
	if err != nil {
		if !api.IsNotFound(err) {
			log.Warn().Err(err).Str("username", username).Msg("could not load history, keeping local state")
			ret.Err = err
			return ret
		}
		resp = nil
	}

	if current := l.dispatcher.State().Username(); current != username {
		log.Debug().Str("username", username).Str("current", current).Msg("identity changed during history load, discarding result")
		return ret
	}

	built := Build(username, resp, l.opts)
	l.dispatcher.Dispatch(conversation.ReplaceAllHistory(built.Conversations, built.CurrentPage))

	ret.Applied = true
	ret.Conversations = len(built.Conversations)
	ret.CurrentPage = built.CurrentPage
	ret.Skipped = built.Skipped

	log.Info().
		Str("username", username).
		Int("conversations", ret.Conversations).
		Int("page", ret.CurrentPage).
		Int("skipped", ret.Skipped).
		Msg("history loaded")
	return ret
}
