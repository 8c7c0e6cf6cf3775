package title

import (
	"strings"
	"unicode"

	"revealer/pkg/contract"
)

// Options: 标题拆分配置（均可选）。
type Options struct {
	// Separators: 视作词间隔的额外字符；默认 "'’-"。
	Separators string `json:"separators"`
	// KeepPunct: 为 false 时去掉词首尾的标点（如括号、逗号）。
	KeepPunct bool `json:"keep_punct"`
}

// Splitter 将候选标题拆为待验证的词序列。
type Splitter struct {
	seps      string
	keepPunct bool
}

// New 创建标题拆分器。
func New(opts *Options) *Splitter {
	s := &Splitter{seps: "'’-"}
	if opts != nil {
		if opts.Separators != "" {
			s.seps = opts.Separators
		}
		s.keepPunct = opts.KeepPunct
	}
	return s
}

// Split 实现 contract.Splitter：分隔字符替换为空格后按空白切分；保持出现顺序，不返回空串。
func (s *Splitter) Split(text string) []string {
	mapped := strings.Map(func(r rune) rune {
		if strings.ContainsRune(s.seps, r) {
			return ' '
		}
		return r
	}, text)
	fields := strings.Fields(mapped)
	out := fields[:0]
	for _, f := range fields {
		if !s.keepPunct {
			f = strings.TrimFunc(f, func(r rune) bool { return unicode.IsPunct(r) })
		}
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

var _ contract.Splitter = (*Splitter)(nil)
