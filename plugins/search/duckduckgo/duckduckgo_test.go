package duckduckgo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revealer/pkg/contract"
)

const lite = `<html><body><table>
<tr><td><a rel="nofollow" href="https://en.wikipedia.org/wiki/Red_fox" class='result-link'>Red fox - Wikipedia</a></td></tr>
<tr><td class='result-snippet'>The red fox is the largest of the true foxes</td></tr>
<tr><td><a rel="nofollow" href="https://example.org" class='result-link'>The <b>quick</b> brown fox</a></td></tr>
<tr><td><a href="https://en.wikipedia.org/wiki/Red_fox" class="result-link">Red fox - Wikipedia</a></td></tr>
<tr><td><a href="/lite/?q=next">Next Page</a></td></tr>
<tr><td><a class="result-link" href="https://a">Third</a></td></tr>
</table></body></html>`

func TestParseTitles(t *testing.T) {
	got, err := ParseTitles(strings.NewReader(lite), 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"Red fox - Wikipedia", "The quick brown fox", "Third"}, got)

	got, err = ParseTitles(strings.NewReader(lite), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Red fox - Wikipedia"}, got)
}

func newTestSearcher(t *testing.T, url string, extra map[string]any) *Searcher {
	t.Helper()
	o := map[string]any{"endpoint": url, "qps": 1000}
	for k, v := range extra {
		o[k] = v
	}
	raw, _ := json.Marshal(o)
	s, err := New(raw)
	require.NoError(t, err)
	s.backoff = time.Millisecond
	return s
}

func TestSearchPostsQuery(t *testing.T) {
	var gotQ atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		_ = r.ParseForm()
		gotQ.Store(r.PostForm.Get("q"))
		_, _ = w.Write([]byte(lite))
	}))
	defer srv.Close()

	s := newTestSearcher(t, srv.URL, map[string]any{"site": "en.wikipedia.org"})
	titles, err := s.Search(context.Background(), "Wikipedia fox  jumps", 2)
	require.NoError(t, err)
	assert.Len(t, titles, 2)
	assert.Equal(t, "site:en.wikipedia.org Wikipedia fox  jumps", gotQ.Load())
}

func TestSearchBacksOffOn429(t *testing.T) {
	var n atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if n.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(lite))
	}))
	defer srv.Close()

	s := newTestSearcher(t, srv.URL, nil)
	titles, err := s.Search(context.Background(), "fox", 5)
	require.NoError(t, err)
	assert.Len(t, titles, 3)
	assert.EqualValues(t, 3, n.Load())
}

func TestSearchGivesUpAfterAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := newTestSearcher(t, srv.URL, map[string]any{"max_attempts": 2})
	_, err := s.Search(context.Background(), "fox", 5)
	require.ErrorIs(t, err, contract.ErrRateLimited)
}

func TestSearchUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	s := newTestSearcher(t, srv.URL, nil)
	_, err := s.Search(context.Background(), "fox", 5)
	var ue contract.UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, http.StatusBadGateway, ue.UpstreamStatus())
}

func TestSearchEmptyQuery(t *testing.T) {
	s := newTestSearcher(t, "http://127.0.0.1:1", nil)
	_, err := s.Search(context.Background(), "   ", 5)
	require.ErrorIs(t, err, contract.ErrInvalidInput)
}

func TestNewRejectsUnknownField(t *testing.T) {
	_, err := New([]byte(`{"bogus":1}`))
	require.Error(t, err)
}
