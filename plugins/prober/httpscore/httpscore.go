package httpscore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"revealer/pkg/contract"
)

// Options: 最小必需配置。
type Options struct {
	SiteURL        string            `json:"site_url"`        // 例如 https://pedantle.certitudes.org
	ScorePath      string            `json:"score_path"`      // 默认 /score；可为完整 URL（以 http 开头）
	TimeoutSeconds int               `json:"timeout_seconds"` // client 级超时（秒），默认 30
	MaxIdleConns   int               `json:"max_idle_conns"`  // 每主机空闲连接上限，默认 256
	UserAgent      string            `json:"user_agent"`
	ExtraHeaders   map[string]string `json:"extra_headers"`
}

func (o *Options) defaults() {
	if o.ScorePath == "" {
		o.ScorePath = "/score"
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 30
	}
	if o.MaxIdleConns <= 0 {
		o.MaxIdleConns = 256
	}
	if o.UserAgent == "" {
		o.UserAgent = "revealer/1"
	}
}

// Client 按计分端点线协议发起单词探测。
type Client struct {
	url    string
	origin string
	ua     string
	extraH map[string]string
	do     func(*http.Request) (*http.Response, error)
}

// New 从原样 JSON 选项构造客户端。
func New(raw json.RawMessage) (*Client, error) {
	var opts Options
	if len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&opts); err != nil {
			return nil, fmt.Errorf("httpscore options: %w", err)
		}
	}
	opts.defaults()
	site := strings.TrimRight(strings.TrimSpace(opts.SiteURL), "/")
	if site == "" {
		return nil, fmt.Errorf("httpscore: %w: missing site_url", contract.ErrInvalidInput)
	}
	if _, err := url.ParseRequestURI(site); err != nil {
		return nil, fmt.Errorf("httpscore: %w: bad site_url: %v", contract.ErrInvalidInput, err)
	}
	full := opts.ScorePath
	if !(strings.HasPrefix(full, "http://") || strings.HasPrefix(full, "https://")) {
		full = site + "/" + strings.TrimLeft(full, "/")
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.MaxIdleConns = opts.MaxIdleConns
	tr.MaxIdleConnsPerHost = opts.MaxIdleConns
	hc := &http.Client{Timeout: time.Duration(opts.TimeoutSeconds) * time.Second, Transport: tr}
	return &Client{url: full, origin: site, ua: opts.UserAgent, extraH: opts.ExtraHeaders, do: hc.Do}, nil
}

type scoreReq struct {
	Num    int      `json:"num"`
	Word   string   `json:"word"`
	Answer []string `json:"answer"`
}

type scoreResp struct {
	X map[string][]int `json:"x"`
}

// upstreamError 承载非 2xx 状态；5xx/408 同时实现 net.Error 的临时语义。
type upstreamError struct {
	status int
	msg    string
}

func (e upstreamError) Error() string {
	return fmt.Sprintf("httpscore upstream %d: %s", e.status, e.msg)
}
func (e upstreamError) Timeout() bool           { return e.status == http.StatusRequestTimeout }
func (e upstreamError) Temporary() bool         { return e.status/100 == 5 }
func (e upstreamError) UpstreamStatus() int     { return e.status }
func (e upstreamError) UpstreamMessage() string { return e.msg }

// Unwrap 使 429 可被 errors.Is(err, ErrRateLimited) 识别。
func (e upstreamError) Unwrap() error {
	if e.status == http.StatusTooManyRequests {
		return contract.ErrRateLimited
	}
	return nil
}

// Probe: POST {score_url}?n={id}，Origin 为站点根，返回 x 字段中的揭示。
// 缺少 x 字段视为无揭示（空映射），不是错误。
func (c *Client) Probe(ctx context.Context, meta contract.PuzzleMeta, word string) (contract.Reveal, error) {
	if word == "" {
		return nil, fmt.Errorf("httpscore: %w: empty word", contract.ErrInvalidInput)
	}
	body, err := json.Marshal(scoreReq{Num: meta.ID, Word: word, Answer: []string{word}})
	if err != nil {
		return nil, fmt.Errorf("encode: %v: %w", err, contract.ErrInvalidInput)
	}
	u := c.url + "?n=" + strconv.Itoa(meta.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %v: %w", err, contract.ErrInvalidInput)
	}
	req.Header.Set("Origin", c.origin)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.ua)
	for k, v := range c.extraH {
		if k == "" {
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := c.do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, upstreamError{status: resp.StatusCode, msg: strings.TrimSpace(string(slurp))}
	}
	var sr scoreResp
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode: %v: %w", err, contract.ErrResponseInvalid)
	}
	if sr.X == nil {
		return contract.Reveal{}, nil
	}
	return contract.Reveal(sr.X), nil
}
