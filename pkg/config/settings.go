package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	IdentityStoreYAML   = "yaml"
	IdentityStoreSQLite = "sqlite"
	IdentityStoreMemory = "memory"
)

// Settings configures the backend client, the identity store and the send
// orchestrator.
type Settings struct {
	BaseURL       string `yaml:"base-url" mapstructure:"base-url"`
	AllowInsecure bool   `yaml:"allow-insecure" mapstructure:"allow-insecure"`
	// RequestTimeout bounds every backend call when > 0.
	RequestTimeout time.Duration `yaml:"request-timeout" mapstructure:"request-timeout"`

	StateDir      string `yaml:"state-dir" mapstructure:"state-dir"`
	IdentityStore string `yaml:"identity-store" mapstructure:"identity-store"`

	MaxImages      int      `yaml:"max-images" mapstructure:"max-images"`
	Lang           string   `yaml:"lang" mapstructure:"lang"`
	ResearchModels []string `yaml:"research-models" mapstructure:"research-models"`

	FailureNotice         string `yaml:"failure-notice" mapstructure:"failure-notice"`
	ResearchFailureNotice string `yaml:"research-failure-notice" mapstructure:"research-failure-notice"`
	LoadingLabel          string `yaml:"loading-label" mapstructure:"loading-label"`
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".guru"
	}
	return filepath.Join(home, ".guru")
}

// NewSettings returns the defaults.
func NewSettings() *Settings {
	return &Settings{
		BaseURL:        "http://localhost:8000",
		AllowInsecure:  true,
		StateDir:       defaultStateDir(),
		IdentityStore:  IdentityStoreYAML,
		MaxImages:      3,
		Lang:           "auto",
		ResearchModels: []string{"gemini"},
	}
}

// SetDefaults registers the defaults with v so that config files and the
// environment only need to override what differs.
func SetDefaults(v *viper.Viper) {
	d := NewSettings()
	v.SetDefault("base-url", d.BaseURL)
	v.SetDefault("allow-insecure", d.AllowInsecure)
	v.SetDefault("request-timeout", d.RequestTimeout)
	v.SetDefault("state-dir", d.StateDir)
	v.SetDefault("identity-store", d.IdentityStore)
	v.SetDefault("max-images", d.MaxImages)
	v.SetDefault("lang", d.Lang)
	v.SetDefault("research-models", d.ResearchModels)
	v.SetDefault("failure-notice", d.FailureNotice)
	v.SetDefault("research-failure-notice", d.ResearchFailureNotice)
	v.SetDefault("loading-label", d.LoadingLabel)
}

// FromViper decodes and validates the settings held by v.
func FromViper(v *viper.Viper) (*Settings, error) {
	s := NewSettings()
	if err := v.Unmarshal(s); err != nil {
		return nil, errors.Wrap(err, "could not decode settings")
	}
	s.ResearchModels = splitList(s.ResearchModels)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) Validate() error {
	if strings.TrimSpace(s.BaseURL) == "" {
		return errors.New("base-url is required")
	}
	if s.RequestTimeout < 0 {
		return errors.Errorf("request-timeout must not be negative, got %s", s.RequestTimeout)
	}
	if s.MaxImages < 0 {
		return errors.Errorf("max-images must not be negative, got %d", s.MaxImages)
	}
	switch s.IdentityStore {
	case IdentityStoreYAML, IdentityStoreSQLite, IdentityStoreMemory:
	default:
		return errors.Errorf("unknown identity-store %q (yaml, sqlite, memory)", s.IdentityStore)
	}
	if s.IdentityStore != IdentityStoreMemory && s.StateDir == "" {
		return errors.New("state-dir is required")
	}
	return nil
}

func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}

func (s *Settings) IdentityFile() string {
	return filepath.Join(s.StateDir, "identity.yaml")
}

func (s *Settings) IdentityDatabase() string {
	return filepath.Join(s.StateDir, "guru.db")
}

// splitList accepts both proper lists and the comma separated form an
// environment variable produces.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
