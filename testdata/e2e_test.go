package testdata

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	cfgpkg "revealer/internal/config"
	"revealer/internal/session"
	"revealer/internal/store"
)

// fakeSite 模拟谜题站点：GET / 返回谜题页，POST /score 按整词（大小写不敏感）揭示位置。
type fakeSite struct {
	id     int
	tokens []string
	fail   map[string]int // 词 → 固定返回的 HTTP 状态
	flaky  int            // 每个词前 flaky 次请求返回 503

	mu    sync.Mutex
	calls map[string]int
}

func newFakeSite(id int, text string) *fakeSite {
	return &fakeSite{id: id, tokens: strings.Fields(text), fail: map[string]int{}, calls: map[string]int{}}
}

func (s *fakeSite) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/":
		var b strings.Builder
		fmt.Fprintf(&b, `<html><body><h1>Pedantle <span id="puzzle-num">%d</span></h1><div id="wiki"><p>`, s.id)
		for _, t := range s.tokens {
			fmt.Fprintf(&b, `<span class="w">%s</span> `, html.EscapeString(strings.Repeat("█", len(t))))
		}
		b.WriteString(`</p></div></body></html>`)
		_, _ = w.Write([]byte(b.String()))
	case r.Method == http.MethodPost && r.URL.Path == "/score":
		if r.URL.Query().Get("n") != fmt.Sprint(s.id) {
			http.Error(w, "wrong puzzle", http.StatusBadRequest)
			return
		}
		var req struct {
			Num    int      `json:"num"`
			Word   string   `json:"word"`
			Answer []string `json:"answer"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.calls[req.Word]++
		n := s.calls[req.Word]
		s.mu.Unlock()
		if st, ok := s.fail[req.Word]; ok {
			http.Error(w, "boom", st)
			return
		}
		if n <= s.flaky {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		x := map[string][]int{}
		for i, t := range s.tokens {
			if strings.EqualFold(t, req.Word) {
				x[t] = append(x[t], i)
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"x": x, "score": []any{}})
	default:
		http.NotFound(w, r)
	}
}

func (s *fakeSite) Calls(word string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[word]
}

func writeWords(t *testing.T, words ...string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "words.txt")
	if err := os.WriteFile(p, []byte(strings.Join(words, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write words: %v", err)
	}
	return p
}

// baseConfig 构造指向 fake 站点的最小配置（searcher/submitter 关闭）。
func baseConfig(siteURL, words string) cfgpkg.Config {
	return cfgpkg.Resolve(cfgpkg.Config{
		MaxRetries:  -1,
		SiteURL:     siteURL,
		Inputs:      []string{words},
		BatchSize:   3,
		Concurrency: 4,
		Logging:     cfgpkg.Logging{Level: "error"},
		Components:  cfgpkg.Components{Searcher: "none", Submitter: "none"},
	})
}

func runSession(t *testing.T, cfg cfgpkg.Config, ck session.Checkpointer) (session.Result, error) {
	t.Helper()
	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	set.Checkpoint = ck
	return session.Run(context.Background(), comp, set, nil)
}

func TestE2EVerifyAndSubmit(t *testing.T) {
	site := newFakeSite(77, "The quick fox jumps")
	srv := httptest.NewServer(site)
	defer srv.Close()

	outDir := t.TempDir()
	cfg := baseConfig(srv.URL, writeWords(t, "the", "fox", "jumps", "zzz"))
	cfg.Components.Searcher = "static"
	cfg.Components.Submitter = "filesystem"
	cfg.Options.Searcher = json.RawMessage(`{"titles":["Quick fox - Wikipedia"]}`)
	cfg.Options.Submitter = json.RawMessage(fmt.Sprintf(`{"output_dir":%q}`, outDir))

	res, err := runSession(t, cfg, nil)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if res.State != session.StateDone || res.Resolved != 4 {
		t.Fatalf("应完成: %+v", res)
	}
	if site.Calls("Quick") != 1 || site.Calls("fox") != 1 || site.Calls("Wikipedia") != 0 {
		t.Fatalf("验证阶段探测次数错误: %v", site.calls)
	}
	got, err := os.ReadFile(filepath.Join(outDir, "77.txt"))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if want := "The\nquick\nfox\njumps\n"; string(got) != want {
		t.Fatalf("output mismatch\nwant:\n%s\ngot:\n%s", want, got)
	}
}

func TestE2EExhaustedWithFailures(t *testing.T) {
	site := newFakeSite(5, "The quick fox jumps")
	site.fail["zzz"] = http.StatusInternalServerError
	srv := httptest.NewServer(site)
	defer srv.Close()

	res, err := runSession(t, baseConfig(srv.URL, writeWords(t, "zzz", "the", "fox", "jumps")), nil)
	if err != nil {
		t.Fatalf("单词失败不应中止: %v", err)
	}
	if res.State != session.StateExhausted || res.Resolved != 3 || res.Failures != 1 {
		t.Fatalf("结果错误: %+v", res)
	}
	if want := "Wikipedia The  fox jumps"; res.Text != want {
		t.Fatalf("render: want %q got %q", want, res.Text)
	}
}

func TestE2ERetry(t *testing.T) {
	site := newFakeSite(9, "alpha beta")
	site.flaky = 2
	srv := httptest.NewServer(site)
	defer srv.Close()

	cfg := baseConfig(srv.URL, writeWords(t, "alpha", "beta"))
	cfg.MaxRetries = 2
	cfg.RetryDelayMS = 1
	res, err := runSession(t, cfg, nil)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if res.State != session.StateDone {
		t.Fatalf("重试后应完成: %+v", res)
	}
	if site.Calls("alpha") != 3 {
		t.Fatalf("alpha 应请求 3 次, got %d", site.Calls("alpha"))
	}

	// 不重试时 503 直接记为失败
	site2 := newFakeSite(9, "alpha beta")
	site2.flaky = 1
	srv2 := httptest.NewServer(site2)
	defer srv2.Close()
	res, err = runSession(t, baseConfig(srv2.URL, writeWords(t, "alpha", "beta")), nil)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if res.State != session.StateExhausted || res.Failures != 2 {
		t.Fatalf("默认不重试: %+v", res)
	}
}

func TestE2ECheckpointResume(t *testing.T) {
	site := newFakeSite(11, "The quick fox jumps")
	srv := httptest.NewServer(site)
	defer srv.Close()

	st, err := store.Open(store.Config{Dir: filepath.Join(t.TempDir(), "ckpt")})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	res, err := runSession(t, baseConfig(srv.URL, writeWords(t, "the", "fox")), st)
	if err != nil || res.State != session.StateExhausted {
		t.Fatalf("第一轮: %+v %v", res, err)
	}
	res, err = runSession(t, baseConfig(srv.URL, writeWords(t, "the", "fox", "quick", "jumps")), st)
	if err != nil || res.State != session.StateDone {
		t.Fatalf("续跑应完成: %+v %v", res, err)
	}
	if site.Calls("the") != 1 || site.Calls("fox") != 1 {
		t.Fatalf("断点中已尝试的词不应重复探测: %v", site.calls)
	}
}

func TestE2EMetadataFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	res, err := runSession(t, baseConfig(srv.URL, writeWords(t, "a")), nil)
	if err == nil || res.State != session.StateFailed {
		t.Fatalf("元信息失败应致命: %+v %v", res, err)
	}
}
