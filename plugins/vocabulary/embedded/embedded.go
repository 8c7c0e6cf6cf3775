package embedded

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"revealer/pkg/contract"
	"revealer/plugins/vocabulary/filesystem"
)

//go:embed en.txt
var enWords string

//go:embed fr.txt
var frWords string

// Options: 内置起步词表。
type Options struct {
	// Language: en|fr，默认 en。
	Language string `json:"language"`
}

// Source 返回随二进制分发的高频词表（去重，保持顺序）；忽略 roots。
type Source struct{ data string }

// New 从原样 JSON 选项构造。
func New(raw json.RawMessage) (*Source, error) {
	var o Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("embedded options: %w", err)
		}
	}
	switch strings.ToLower(o.Language) {
	case "", "en":
		return &Source{data: enWords}, nil
	case "fr":
		return &Source{data: frWords}, nil
	default:
		return nil, fmt.Errorf("embedded: %w: unsupported language %q", contract.ErrInvalidInput, o.Language)
	}
}

// Load 实现 contract.VocabularySource。
func (s *Source) Load(ctx context.Context, _ []string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	var out []string
	err := filesystem.ScanWords(strings.NewReader(s.data), "#", func(w string) error {
		if _, ok := seen[w]; !ok {
			seen[w] = struct{}{}
			out = append(out, w)
		}
		return nil
	})
	return out, err
}
