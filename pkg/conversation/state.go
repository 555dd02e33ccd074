package conversation

import (
	"github.com/huandu/go-clone"
)

// Reduce is the single state transition function. It never mutates s: the
// action is applied to a deep copy, the selection invariant is restored and
// the version bumped.
func Reduce(s *State, a Action) *State {
	if s == nil {
		s = NewState()
	}
	if a == nil {
		return s
	}
	next := clone.Clone(s).(*State)
	a.Apply(next)
	if next.Conversations == nil {
		next.Conversations = []Conversation{}
	}
	if _, ok := next.Conversation(next.SelectedConversationID); !ok {
		next.SelectedConversationID = ""
	}
	next.Version = s.Version + 1
	return next
}

// ReduceAll applies actions in order.
func ReduceAll(s *State, actions ...Action) *State {
	for _, a := range actions {
		s = Reduce(s, a)
	}
	return s
}
