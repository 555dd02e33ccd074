package identity

import (
	"context"
	"strings"

	"github.com/lithammer/shortuuid/v3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/guru/pkg/api"
	"github.com/go-go-golems/guru/pkg/conversation"
)

// GuestName is used when an identity is created without a name.
const GuestName = "Guest"

// Creator is the remote identity service.
type Creator interface {
	CreateUser(ctx context.Context, name string) (*api.CreateUserResponse, error)
}

// Service loads, creates and persists the local identity.
type Service struct {
	store   Store
	creator Creator
	suffix  func() string
}

type ServiceOption func(*Service)

func WithCreator(c Creator) ServiceOption {
	return func(s *Service) { s.creator = c }
}

// WithSuffixGenerator replaces the random suffix of locally generated
// usernames.
func WithSuffixGenerator(f func() string) ServiceOption {
	return func(s *Service) {
		if f != nil {
			s.suffix = f
		}
	}
}

func NewService(store Store, options ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		suffix: randomSuffix,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Load returns the stored identity, or nil when there is none. A corrupt
// identity is discarded so that a new one gets created.
func (s *Service) Load(ctx context.Context) *conversation.Identity {
	identity, err := s.store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrCorrupt) {
			log.Warn().Err(err).Msg("discarding corrupt stored identity")
			if err := s.store.Clear(ctx); err != nil {
				log.Error().Err(err).Msg("could not discard corrupt identity")
			}
			return nil
		}
		log.Warn().Err(err).Msg("could not load stored identity")
		return nil
	}
	return identity
}

// Create registers displayName with the identity service. When the service
// is unavailable a local username is generated the same way the service
// would build it.
func (s *Service) Create(ctx context.Context, displayName string) *conversation.Identity {
	name := strings.TrimSpace(displayName)
	if name == "" {
		name = GuestName
	}

	if s.creator != nil {
		resp, err := s.creator.CreateUser(ctx, name)
		if err == nil {
			ret := &conversation.Identity{DisplayName: resp.Name, StableUsername: resp.Username}
			if ret.DisplayName == "" {
				ret.DisplayName = name
			}
			return ret
		}
		log.Warn().Err(err).Str("name", name).Msg("identity service unavailable, generating a local username")
	}

	return &conversation.Identity{
		DisplayName:    name,
		StableUsername: LocalUsername(name, s.suffix()),
	}
}

// Save persists identity.
func (s *Service) Save(ctx context.Context, identity *conversation.Identity) error {
	return s.store.Save(ctx, identity)
}

func (s *Service) Close() error {
	return s.store.Close()
}

// LocalUsername builds "<lowercased name>_<suffix>", with inner whitespace
// collapsed to underscores.
func LocalUsername(name, suffix string) string {
	base := strings.ToLower(strings.Join(strings.Fields(name), "_"))
	if base == "" {
		base = strings.ToLower(GuestName)
	}
	return base + "_" + suffix
}

func randomSuffix() string {
	return shortuuid.New()[:4]
}
