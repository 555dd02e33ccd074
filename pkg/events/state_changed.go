package events

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// TopicStateChanged carries one event per applied action.
const TopicStateChanged = "state-changed"

// StateChanged tells subscribers that the store moved to a new version.
// It does not carry the state itself; subscribers read it back from the store.
type StateChanged struct {
	Action   string `json:"action"`
	Version  int64  `json:"version"`
	Sequence uint64 `json:"sequence"`

	SelectedConversationID string `json:"selectedConversationId,omitempty"`
	IsAwaitingResponse     bool   `json:"isAwaitingResponse"`
}

func NewStateChangedFromJson(b []byte) (*StateChanged, error) {
	var e StateChanged
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, errors.Wrap(err, "could not decode state-changed event")
	}
	return &e, nil
}
