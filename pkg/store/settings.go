package store

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/guru/pkg/api"
	"github.com/go-go-golems/guru/pkg/config"
	"github.com/go-go-golems/guru/pkg/history"
	"github.com/go-go-golems/guru/pkg/identity"
	"github.com/go-go-golems/guru/pkg/orchestrator"
)

// NewIdentityStore opens the identity store selected by the settings.
func NewIdentityStore(settings *config.Settings) (identity.Store, error) {
	switch settings.IdentityStore {
	case config.IdentityStoreMemory:
		return identity.NewMemoryStore(), nil
	case config.IdentityStoreSQLite:
		return identity.NewSQLiteStore(settings.IdentityDatabase())
	case config.IdentityStoreYAML, "":
		st, err := identity.NewYAMLFileStore(settings.IdentityFile())
		if err != nil {
			return nil, err
		}
		log.Debug().Str("path", st.Path()).Msg("using yaml identity store")
		return st, nil
	}
	return nil, errors.Errorf("unknown identity store %q", settings.IdentityStore)
}

// NewFromSettings wires a store against the configured backend. Extra
// options are applied last.
func NewFromSettings(settings *config.Settings, options ...Option) (*Store, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	client, err := api.NewClient(settings.BaseURL,
		api.WithAllowInsecure(settings.AllowInsecure),
		api.WithTimeout(settings.RequestTimeout),
	)
	if err != nil {
		return nil, err
	}

	identityStore, err := NewIdentityStore(settings)
	if err != nil {
		return nil, errors.Wrap(err, "could not open identity store")
	}

	base := []Option{
		WithBackend(client),
		WithIdentityStore(identityStore),
		WithOrchestratorOptions(
			orchestrator.WithMaxImages(settings.MaxImages),
			orchestrator.WithLang(settings.Lang),
			orchestrator.WithFailureNotice(settings.FailureNotice),
			orchestrator.WithResearchFailureNotice(settings.ResearchFailureNotice),
			orchestrator.WithLoadingLabel(settings.LoadingLabel),
		),
		WithHistoryOptions(history.WithResearchModels(settings.ResearchModels...)),
	}

	s, err := New(append(base, options...)...)
	if err != nil {
		_ = identityStore.Close()
		return nil, err
	}
	return s, nil
}
