package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"revealer/pkg/contract"
)

// Options: 进程内计分端点模拟（用于集成测试与无网络联调）。
type Options struct {
	// HiddenText: 隐藏答案文本，按空白切分为槽位。
	HiddenText string `json:"hidden_text"`
	// FailWords: 这些词的探测返回 HTTP 500 语义的失败。
	FailWords []string `json:"fail_words"`
	// DelayMS: 每次探测的固定延迟（毫秒）。
	DelayMS int `json:"delay_ms"`
	// MaskSolved: 已被揭示过的槽位再次命中时以 "#" 前缀返回。
	MaskSolved bool `json:"mask_solved"`
}

// Client 在内存中对隐藏文本做大小写不敏感的整词匹配。
type Client struct {
	slots      []string
	index      map[string][]int // 小写词 → 槽位
	fail       map[string]struct{}
	delay      time.Duration
	maskSolved bool

	mu     sync.Mutex
	solved []bool
	calls  int
}

// New 从原样 JSON 选项构造模拟客户端。
func New(raw json.RawMessage) (*Client, error) {
	var o Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("mock options: %w", err)
		}
	}
	slots := strings.Fields(o.HiddenText)
	c := &Client{
		slots:      slots,
		index:      make(map[string][]int, len(slots)),
		fail:       make(map[string]struct{}, len(o.FailWords)),
		delay:      time.Duration(o.DelayMS) * time.Millisecond,
		maskSolved: o.MaskSolved,
		solved:     make([]bool, len(slots)),
	}
	for i, s := range slots {
		k := strings.ToLower(s)
		c.index[k] = append(c.index[k], i)
	}
	for _, w := range o.FailWords {
		c.fail[w] = struct{}{}
	}
	return c, nil
}

// Slots 返回隐藏文本槽位数（供 static 元信息与测试使用）。
func (c *Client) Slots() int { return len(c.slots) }

// Calls 返回累计探测次数。
func (c *Client) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Probe 返回 word 命中的槽位，键为隐藏文本中的原始写法。
func (c *Client) Probe(ctx context.Context, _ contract.PuzzleMeta, word string) (contract.Reveal, error) {
	if c.delay > 0 {
		t := time.NewTimer(c.delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if _, bad := c.fail[word]; bad {
		return nil, statusError(500)
	}
	out := contract.Reveal{}
	for _, i := range c.index[strings.ToLower(word)] {
		tok := c.slots[i]
		if c.maskSolved && c.solved[i] {
			tok = contract.MaskMarker + tok
		}
		out[tok] = append(out[tok], i)
		c.solved[i] = true
	}
	return out, nil
}

// statusError 模拟非 2xx 上游错误。
type statusError int

func (e statusError) Error() string           { return fmt.Sprintf("mock upstream %d", int(e)) }
func (e statusError) UpstreamStatus() int     { return int(e) }
func (e statusError) UpstreamMessage() string { return "injected failure" }
