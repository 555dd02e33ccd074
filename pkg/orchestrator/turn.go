package orchestrator

import (
	"context"
	"errors"
	"sync"

	"github.com/go-go-golems/guru/pkg/conversation"
)

var ErrTurnNil = errors.New("turn is nil")

// TurnResult describes what a finished turn did to the conversation.
type TurnResult struct {
	ConversationID     string
	UserMessageID      string
	AssistantMessageID string
	BackendID          string
	Mode               conversation.Mode

	// PrimaryErr is the query or content-generation failure that was replaced
	// by a fallback notice.
	PrimaryErr error
	// VideoErr is the video recommendation failure, if any.
	VideoErr error
	// VideoCount is the number of videos appended to the assistant message.
	VideoCount int
}

// Turn is a single in-flight send. The user message is already committed when
// a Turn is handed out; the network part runs in the background.
type Turn struct {
	ConversationID string
	UserMessageID  string
	Mode           conversation.Mode

	done chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	result *TurnResult
	err    error
}

func newTurn(conversationID, userMessageID string, mode conversation.Mode, cancel context.CancelFunc) *Turn {
	return &Turn{
		ConversationID: conversationID,
		UserMessageID:  userMessageID,
		Mode:           mode,
		done:           make(chan struct{}),
		cancel:         cancel,
	}
}

func (t *Turn) setResult(result *TurnResult, err error) {
	t.mu.Lock()
	t.result = result
	t.err = err
	cancel := t.cancel
	t.cancel = nil
	close(t.done)
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Cancel aborts the in-flight collaborator calls. The turn still finishes
// normally: cancelled calls are handled like any other failure.
func (t *Turn) Cancel() {
	if t == nil {
		return
	}
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the turn is done. The error is only set when the turn
// panicked; collaborator failures are reported in the result.
func (t *Turn) Wait() (*TurnResult, error) {
	if t == nil {
		return nil, ErrTurnNil
	}
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}

// Done is closed when the turn finished.
func (t *Turn) Done() <-chan struct{} {
	if t == nil {
		c := make(chan struct{})
		close(c)
		return c
	}
	return t.done
}

func (t *Turn) IsRunning() bool {
	if t == nil {
		return false
	}
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}
