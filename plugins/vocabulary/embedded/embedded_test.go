package embedded

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedLists(t *testing.T) {
	for _, lang := range []string{"en", "fr"} {
		s, err := New([]byte(`{"language":"` + lang + `"}`))
		require.NoError(t, err)
		words, err := s.Load(context.Background(), nil)
		require.NoError(t, err)
		assert.Greater(t, len(words), 50, lang)
		seen := map[string]bool{}
		for _, w := range words {
			assert.False(t, seen[w], "duplicate %q", w)
			seen[w] = true
			assert.NotContains(t, w, "#")
		}
	}
	_, err := New([]byte(`{"language":"de"}`))
	require.Error(t, err)
}
