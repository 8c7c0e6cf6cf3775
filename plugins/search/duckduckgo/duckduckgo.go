package duckduckgo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	xrate "golang.org/x/time/rate"

	"revealer/pkg/contract"
)

// Options: DuckDuckGo HTML 轻量版抓取配置。
type Options struct {
	Endpoint       string  `json:"endpoint"`        // 默认 https://lite.duckduckgo.com/lite/
	Site           string  `json:"site"`            // 可选：限定站点（附加 site: 前缀）
	TimeoutSeconds int     `json:"timeout_seconds"` // 默认 15
	UserAgent      string  `json:"user_agent"`
	QPS            float64 `json:"qps"`             // 默认 1
	MaxBackoffSec  int     `json:"max_backoff_sec"` // 429 退避上限，默认 30
	MaxAttempts    int     `json:"max_attempts"`    // 429 时的总尝试次数，默认 5
}

func (o *Options) defaults() {
	if o.Endpoint == "" {
		o.Endpoint = "https://lite.duckduckgo.com/lite/"
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 15
	}
	if o.UserAgent == "" {
		o.UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	}
	if o.QPS <= 0 {
		o.QPS = 1
	}
	if o.MaxBackoffSec <= 0 {
		o.MaxBackoffSec = 30
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
}

// Searcher 以 POST 表单查询 DuckDuckGo 并提取结果标题。
type Searcher struct {
	endpoint   string
	site       string
	ua         string
	lim        *xrate.Limiter
	backoff    time.Duration
	maxBackoff time.Duration
	attempts   int
	do         func(*http.Request) (*http.Response, error)
}

// New 从原样 JSON 选项构造。
func New(raw json.RawMessage) (*Searcher, error) {
	var o Options
	if len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&o); err != nil {
			return nil, fmt.Errorf("duckduckgo options: %w", err)
		}
	}
	o.defaults()
	if _, err := url.Parse(o.Endpoint); err != nil {
		return nil, fmt.Errorf("duckduckgo: endpoint: %v: %w", err, contract.ErrInvalidInput)
	}
	hc := &http.Client{Timeout: time.Duration(o.TimeoutSeconds) * time.Second}
	return &Searcher{
		endpoint:   o.Endpoint,
		site:       strings.TrimSpace(o.Site),
		ua:         o.UserAgent,
		lim:        xrate.NewLimiter(xrate.Limit(o.QPS), 1),
		backoff:    time.Second,
		maxBackoff: time.Duration(o.MaxBackoffSec) * time.Second,
		attempts:   o.MaxAttempts,
		do:         hc.Do,
	}, nil
}

// Search 实现 contract.Searcher：返回至多 limit 个去重后的结果标题。
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("duckduckgo: %w: empty query", contract.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 5
	}
	if s.site != "" {
		query = "site:" + s.site + " " + query
	}
	form := url.Values{}
	form.Set("q", query)

	delay := s.backoff
	for attempt := 1; ; attempt++ {
		if err := s.lim.Wait(ctx); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, fmt.Errorf("duckduckgo: new request: %v: %w", err, contract.ErrInvalidInput)
		}
		req.Header.Set("User-Agent", s.ua)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp, err := s.do(req)
		if err != nil {
			return nil, fmt.Errorf("duckduckgo: %w", err)
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			_ = resp.Body.Close()
			if attempt >= s.attempts {
				return nil, fmt.Errorf("duckduckgo: %w", contract.ErrRateLimited)
			}
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
			if delay *= 2; delay > s.maxBackoff {
				delay = s.maxBackoff
			}
			continue
		}
		defer resp.Body.Close()
		if resp.StatusCode/100 != 2 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
			return nil, upstreamError{status: resp.StatusCode, msg: strings.TrimSpace(string(b))}
		}
		titles, err := ParseTitles(resp.Body, limit)
		if err != nil {
			return nil, fmt.Errorf("duckduckgo: %v: %w", err, contract.ErrResponseInvalid)
		}
		return titles, nil
	}
}

// ParseTitles 提取结果链接（a.result-link，或 HTML 版的 a.result__a）的文本，去重后至多 limit 条。
func ParseTitles(r io.Reader, limit int) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	var out []string
	seen := map[string]struct{}{}
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.A && isResultLink(n) {
			t := strings.Join(strings.Fields(textOf(n)), " ")
			if _, dup := seen[t]; t != "" && !dup {
				seen[t] = struct{}{}
				out = append(out, t)
				if len(out) >= limit {
					return false
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !walk(c) {
				return false
			}
		}
		return true
	}
	walk(doc)
	return out, nil
}

func isResultLink(n *html.Node) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == "result-link" || c == "result__a" {
				return true
			}
		}
	}
	return false
}

func textOf(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textOf(c))
	}
	return b.String()
}

type upstreamError struct {
	status int
	msg    string
}

func (e upstreamError) Error() string {
	return fmt.Sprintf("duckduckgo: http %d: %s", e.status, e.msg)
}
func (e upstreamError) UpstreamStatus() int     { return e.status }
func (e upstreamError) UpstreamMessage() string { return e.msg }

var _ contract.Searcher = (*Searcher)(nil)
