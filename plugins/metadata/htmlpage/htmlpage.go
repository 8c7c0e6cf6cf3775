package htmlpage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"revealer/pkg/contract"
)

// Options: 谜题页抓取配置。
type Options struct {
	SiteURL        string `json:"site_url"`        // 谜题页地址
	Path           string `json:"path"`            // 相对路径，默认 "/"
	TimeoutSeconds int    `json:"timeout_seconds"` // 默认 30
	UserAgent      string `json:"user_agent"`
	MaxBytes       int64  `json:"max_bytes"` // 页面读取上限，默认 8MiB
	IDElement      string `json:"id_element"`   // 默认 puzzle-num
	TextElement    string `json:"text_element"` // 默认 wiki
}

func (o *Options) defaults() {
	if o.Path == "" {
		o.Path = "/"
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 30
	}
	if o.UserAgent == "" {
		o.UserAgent = "revealer/1"
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = 8 << 20
	}
	if o.IDElement == "" {
		o.IDElement = "puzzle-num"
	}
	if o.TextElement == "" {
		o.TextElement = "wiki"
	}
}

// Source 抓取谜题页面并解析编号与槽位数。
type Source struct {
	url    string
	ua     string
	max    int64
	idElem string
	txElem string
	do     func(*http.Request) (*http.Response, error)
}

// New 从原样 JSON 选项构造。
func New(raw json.RawMessage) (*Source, error) {
	var o Options
	if len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&o); err != nil {
			return nil, fmt.Errorf("htmlpage options: %w", err)
		}
	}
	o.defaults()
	site := strings.TrimRight(strings.TrimSpace(o.SiteURL), "/")
	if site == "" {
		return nil, fmt.Errorf("htmlpage: %w: missing site_url", contract.ErrInvalidInput)
	}
	hc := &http.Client{Timeout: time.Duration(o.TimeoutSeconds) * time.Second}
	return &Source{
		url:    site + "/" + strings.TrimLeft(o.Path, "/"),
		ua:     o.UserAgent,
		max:    o.MaxBytes,
		idElem: o.IDElement,
		txElem: o.TextElement,
		do:     hc.Do,
	}, nil
}

// Fetch 实现 contract.MetadataSource。
func (s *Source) Fetch(ctx context.Context) (contract.PuzzleMeta, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return contract.PuzzleMeta{}, fmt.Errorf("new request: %v: %w", err, contract.ErrInvalidInput)
	}
	req.Header.Set("User-Agent", s.ua)
	req.Header.Set("Accept", "text/html")
	resp, err := s.do(req)
	if err != nil {
		return contract.PuzzleMeta{}, fmt.Errorf("htmlpage: fetch %s: %w", s.url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return contract.PuzzleMeta{}, fmt.Errorf("htmlpage: fetch %s: status %d: %w", s.url, resp.StatusCode, contract.ErrMetadata)
	}
	return Parse(io.LimitReader(resp.Body, s.max), s.idElem, s.txElem)
}

// Parse 解析页面：
//   - 编号：id=idElem 元素的文本内容（整数）；
//   - 槽位数：id=textElem 元素内（任意深度）<span> 的个数。
//
// 任一元素缺失或编号非整数时返回包裹 ErrMetadata 的错误。
func Parse(r io.Reader, idElem, textElem string) (contract.PuzzleMeta, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return contract.PuzzleMeta{}, fmt.Errorf("htmlpage: parse: %v: %w", err, contract.ErrMetadata)
	}
	idNode := findByID(doc, idElem)
	if idNode == nil {
		return contract.PuzzleMeta{}, fmt.Errorf("htmlpage: element #%s not found: %w", idElem, contract.ErrMetadata)
	}
	txt := strings.TrimSpace(textOf(idNode))
	id, err := strconv.Atoi(txt)
	if err != nil {
		return contract.PuzzleMeta{}, fmt.Errorf("htmlpage: puzzle number %q: %w", txt, errors.Join(contract.ErrMetadata, err))
	}
	wiki := findByID(doc, textElem)
	if wiki == nil {
		return contract.PuzzleMeta{}, fmt.Errorf("htmlpage: element #%s not found: %w", textElem, contract.ErrMetadata)
	}
	return contract.PuzzleMeta{ID: id, Slots: countSpans(wiki)}, nil
}

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if a.Key == "id" && a.Val == id {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := findByID(c, id); f != nil {
			return f
		}
	}
	return nil
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func countSpans(n *html.Node) int {
	cnt := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Span {
			cnt++
		}
		cnt += countSpans(c)
	}
	return cnt
}
