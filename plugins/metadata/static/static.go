package static

import (
	"context"
	"encoding/json"
	"fmt"

	"revealer/pkg/contract"
)

// Options: 固定元信息（离线联调/测试）。
type Options struct {
	ID    int `json:"id"`
	Slots int `json:"slots"`
}

// Source 返回固定的谜题元信息。
type Source struct{ meta contract.PuzzleMeta }

// New 构造；Slots 为负时报错。
func New(o *Options) (*Source, error) {
	if o == nil {
		o = &Options{}
	}
	if o.Slots < 0 {
		return nil, fmt.Errorf("static metadata: %w: slots must be >= 0", contract.ErrInvalidInput)
	}
	return &Source{meta: contract.PuzzleMeta{ID: o.ID, Slots: o.Slots}}, nil
}

// FromJSON 便捷构造。
func FromJSON(raw json.RawMessage) (*Source, error) {
	var o Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("static metadata options: %w", err)
		}
	}
	return New(&o)
}

// Fetch 实现 contract.MetadataSource。
func (s *Source) Fetch(ctx context.Context) (contract.PuzzleMeta, error) {
	if err := ctx.Err(); err != nil {
		return contract.PuzzleMeta{}, err
	}
	return s.meta, nil
}
