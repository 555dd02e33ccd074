package identity

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/guru/pkg/conversation"
)

type identityDocument struct {
	Identity *conversation.Identity `yaml:"identity"`
}

// YAMLFileStore persists the identity as a small YAML document.
type YAMLFileStore struct {
	mu     sync.Mutex
	path   string
	closed bool
}

func NewYAMLFileStore(path string) (*YAMLFileStore, error) {
	if path == "" {
		return nil, errors.New("yaml identity store path is required")
	}
	return &YAMLFileStore{path: path}, nil
}

func (s *YAMLFileStore) Path() string {
	return s.path
}

func (s *YAMLFileStore) Load(ctx context.Context) (*conversation.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errClosed
	}

	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "could not read %s", s.path)
	}

	var doc identityDocument
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, errors.Wrapf(ErrCorrupt, "%s: %v", s.path, err)
	}
	if err := validate(doc.Identity); err != nil {
		return nil, errors.Wrap(err, s.path)
	}
	return doc.Identity, nil
}

func (s *YAMLFileStore) Save(ctx context.Context, identity *conversation.Identity) error {
	if err := validate(identity); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}

	b, err := yaml.Marshal(identityDocument{Identity: identity})
	if err != nil {
		return errors.Wrap(err, "could not encode identity")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.path)
}

func (s *YAMLFileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *YAMLFileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
