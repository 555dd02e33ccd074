package doc

import (
	"testing"

	"github.com/go-go-golems/glazed/pkg/help"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddDocToHelpSystem_LoadsTopics(t *testing.T) {
	hs := help.NewHelpSystem()
	require.NoError(t, AddDocToHelpSystem(hs))

	for _, slug := range []string{"guru-conversations", "guru-research-mode", "guru-configuration"} {
		section, err := hs.GetSectionWithSlug(slug)
		require.NoError(t, err, slug)
		require.NotNil(t, section, slug)
		assert.NotEmpty(t, section.Title, slug)
	}
}
