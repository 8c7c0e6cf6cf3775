package gcs

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revealer/pkg/contract"
)

func TestParseURI(t *testing.T) {
	b, o, err := ParseURI("gs://words/fr/most_common.txt")
	require.NoError(t, err)
	assert.Equal(t, "words", b)
	assert.Equal(t, "fr/most_common.txt", o)

	for _, bad := range []string{"s3://a/b", "gs://bucket", "gs:///obj", "gs://bucket/"} {
		_, _, err := ParseURI(bad)
		assert.ErrorIs(t, err, contract.ErrInvalidInput, bad)
	}
}

func TestLoadWithStubOpener(t *testing.T) {
	s, err := New([]byte(`{"limit":4,"without_auth":true}`))
	require.NoError(t, err)
	objects := map[string]string{
		"w/a.txt": "# top\nthe of\nand",
		"w/b.txt": "to in",
	}
	s.open = func(_ context.Context, bucket, object string) (io.ReadCloser, error) {
		body, ok := objects[bucket+"/"+object]
		if !ok {
			return nil, errors.New("object not found")
		}
		return io.NopCloser(strings.NewReader(body)), nil
	}
	got, err := s.Load(context.Background(), []string{"gs://w/a.txt", "gs://w/b.txt"})
	require.NoError(t, err)
	assert.Equal(t, []string{"the", "of", "and", "to"}, got)

	_, err = s.Load(context.Background(), []string{"gs://w/missing.txt"})
	require.Error(t, err)
	_, err = s.Load(context.Background(), nil)
	require.ErrorIs(t, err, contract.ErrInvalidInput)
	assert.Len(t, s.clientOpts(), 1)
	require.NoError(t, s.Close())
}
