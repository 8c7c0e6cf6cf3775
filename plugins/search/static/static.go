package static

import (
	"context"

	"revealer/pkg/contract"
)

// Options: 固定候选标题（离线联调与测试）。
type Options struct {
	Titles []string `json:"titles"`
}

// Searcher 忽略查询，按序返回配置的标题。
type Searcher struct{ titles []string }

func New(opts *Options) *Searcher {
	s := &Searcher{}
	if opts != nil {
		s.titles = append([]string(nil), opts.Titles...)
	}
	return s
}

func (s *Searcher) Search(ctx context.Context, _ string, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := len(s.titles)
	if limit > 0 && limit < n {
		n = limit
	}
	return append([]string(nil), s.titles[:n]...), nil
}

var _ contract.Searcher = (*Searcher)(nil)
