package htmlpage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revealer/pkg/contract"
)

const page = `<!doctype html><html><body>
<header>Pedantle <span id="puzzle-num"> 812 </span></header>
<div id="article"><div id="wiki">
  <h2><span class="w">x</span> <span class="w">y</span></h2>
  <p><span>a</span><span>b</span><b><span>c</span></b></p>
</div></div>
<footer><span>not counted</span></footer>
</body></html>`

func TestParse(t *testing.T) {
	m, err := Parse(strings.NewReader(page), "puzzle-num", "wiki")
	require.NoError(t, err)
	assert.Equal(t, contract.PuzzleMeta{ID: 812, Slots: 5}, m)
}

func TestParseMissingElements(t *testing.T) {
	_, err := Parse(strings.NewReader(`<div id="wiki"><span>a</span></div>`), "puzzle-num", "wiki")
	require.ErrorIs(t, err, contract.ErrMetadata)

	_, err = Parse(strings.NewReader(`<b id="puzzle-num">3</b>`), "puzzle-num", "wiki")
	require.ErrorIs(t, err, contract.ErrMetadata)

	_, err = Parse(strings.NewReader(`<b id="puzzle-num">three</b><div id="wiki"></div>`), "puzzle-num", "wiki")
	require.ErrorIs(t, err, contract.ErrMetadata)
}

func TestParseEmptyWiki(t *testing.T) {
	m, err := Parse(strings.NewReader(`<b id="puzzle-num">4</b><div id="wiki"></div>`), "puzzle-num", "wiki")
	require.NoError(t, err)
	assert.Equal(t, 0, m.Slots)
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()
	raw, _ := json.Marshal(Options{SiteURL: srv.URL})
	s, err := New(raw)
	require.NoError(t, err)
	m, err := s.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 812, m.ID)

	raw, _ = json.Marshal(Options{SiteURL: srv.URL, Path: "/missing"})
	s, err = New(raw)
	require.NoError(t, err)
	_, err = s.Fetch(context.Background())
	require.ErrorIs(t, err, contract.ErrMetadata)
}

func TestNewRequiresSite(t *testing.T) {
	_, err := New(nil)
	require.ErrorIs(t, err, contract.ErrInvalidInput)
}
