package identity

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/go-go-golems/guru/pkg/conversation"
)

// ErrCorrupt is returned by Load when a stored identity exists but cannot be
// used. The caller decides to discard it.
var ErrCorrupt = errors.New("stored identity is corrupt")

var errClosed = errors.New("identity store closed")

// Store persists the single local identity.
//
// Load returns (nil, nil) when nothing was stored yet.
type Store interface {
	Load(ctx context.Context) (*conversation.Identity, error)
	Save(ctx context.Context, identity *conversation.Identity) error
	Clear(ctx context.Context) error
	Close() error
}

func validate(i *conversation.Identity) error {
	if i == nil || i.StableUsername == "" {
		return errors.Wrap(ErrCorrupt, "missing stable username")
	}
	return nil
}

// MemoryStore keeps the identity for the lifetime of the process.
type MemoryStore struct {
	mu       sync.RWMutex
	identity *conversation.Identity
	closed   bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) (*conversation.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	if s.identity == nil {
		return nil, nil
	}
	cp := *s.identity
	return &cp, nil
}

func (s *MemoryStore) Save(ctx context.Context, identity *conversation.Identity) error {
	if err := validate(identity); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	cp := *identity
	s.identity = &cp
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	s.identity = nil
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
