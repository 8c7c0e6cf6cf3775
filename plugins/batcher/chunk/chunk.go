package chunk

import (
	"context"
	"fmt"
	"iter"

	"revealer/pkg/contract"
)

// Options 为定长切批 Batcher 的可选配置。
type Options struct {
	// Dedupe: 丢弃重复词，仅保留首次出现。
	Dedupe bool `json:"dedupe"`
	// SkipEmpty: 丢弃空串（默认读取端已过滤，此项用于程序化输入）。
	SkipEmpty bool `json:"skip_empty"`
}

// Batcher 将词表按原始顺序切为至多 Size 个词的连续块。
type Batcher struct {
	dedupe    bool
	skipEmpty bool
}

// New 创建定长切批 Batcher。
func New(opts *Options) *Batcher {
	b := &Batcher{}
	if opts != nil {
		b.dedupe = opts.Dedupe
		b.skipEmpty = opts.SkipEmpty
	}
	return b
}

// Make 生成惰性批计划：
// - Size <= 0 返回 ErrBatchSize；
// - 仅在启用过滤时复制词表，否则直接引用输入；
// - 计划本身不持有游标，可反复遍历。
func (b *Batcher) Make(ctx context.Context, words []string, limit contract.BatchLimit) (contract.Plan, error) {
	if limit.Size <= 0 {
		return nil, fmt.Errorf("batcher: %w (got %d)", contract.ErrBatchSize, limit.Size)
	}
	src := words
	if b.dedupe || b.skipEmpty {
		seen := make(map[string]struct{}, len(words))
		src = make([]string, 0, len(words))
		for i, w := range words {
			if i%4096 == 0 {
				if err := ctxErr(ctx); err != nil {
					return nil, err
				}
			}
			if b.skipEmpty && w == "" {
				continue
			}
			if b.dedupe {
				if _, ok := seen[w]; ok {
					continue
				}
				seen[w] = struct{}{}
			}
			src = append(src, w)
		}
	}
	return &Plan{words: src, size: limit.Size}, nil
}

// Plan 为定长批计划。
type Plan struct {
	words []string
	size  int
}

// Len 返回批数（空词表为 0）。
func (p *Plan) Len() int {
	if len(p.words) == 0 {
		return 0
	}
	return 1 + (len(p.words)-1)/p.size
}

// At 返回第 i 批；越界返回空批。
func (p *Plan) At(i int) contract.Batch {
	if i < 0 || i >= p.Len() {
		return contract.Batch{Index: i}
	}
	from := i * p.size
	to := len(p.words)
	if p.size < to-from {
		to = from + p.size
	}
	return contract.Batch{Index: i, Words: p.words[from:to:to]}
}

// All 按序遍历全部批次；每次调用都从头开始。
func (p *Plan) All() iter.Seq2[int, contract.Batch] {
	return func(yield func(int, contract.Batch) bool) {
		for i := 0; i < p.Len(); i++ {
			if !yield(i, p.At(i)) {
				return
			}
		}
	}
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
