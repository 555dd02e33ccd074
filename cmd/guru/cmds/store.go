package cmds

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/go-go-golems/guru/pkg/config"
	"github.com/go-go-golems/guru/pkg/events"
	"github.com/go-go-golems/guru/pkg/store"
)

func loadSettings() (*config.Settings, error) {
	settings, err := config.FromViper(viper.GetViper())
	if err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return settings, nil
}

// openStore builds the store from the configuration and starts it, which
// loads the identity and its history.
func openStore(ctx context.Context, busOptions ...events.BusOption) (*store.Store, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}
	s, err := store.NewFromSettings(settings,
		store.WithBusOptions(append([]events.BusOption{events.WithVerbose(viper.GetBool("verbose"))}, busOptions...)...),
	)
	if err != nil {
		return nil, err
	}
	s.Start(ctx)
	return s, nil
}

// requireIdentity fails with a hint when no identity was created yet.
func requireIdentity(s *store.Store) error {
	if s.State().Identity.IsZero() {
		return errors.New("no identity yet, run `guru identity set <name>` first")
	}
	return nil
}
