package flaky

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync/atomic"

	"revealer/pkg/contract"
	"revealer/plugins/prober/mock"
)

// Options 定义可选项。
type Options struct {
	mock.Options
	// Every: 每 Every 次调用注入一次失败（<=0 时取 3）。
	Every int `json:"every"`
	// LogPath: 调试用日志文件，记录每次调用结果（可选）。
	LogPath string `json:"log_path,omitempty"`
}

// Client 在 mock 之上按节拍轮换注入失败：
// 第 1 次注入返回 429；第 2 次返回无法解析的载荷；第 3 次返回网络错误；循环往复。
// 其余调用委托给内部 mock。
type Client struct {
	inner   *mock.Client
	every   int32
	logPath string
	count   atomic.Int32
	faults  atomic.Int32
}

// New 构造 Client。
func New(raw json.RawMessage) (*Client, error) {
	var o Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, err
		}
	}
	if o.Every <= 0 {
		o.Every = 3
	}
	innerRaw, _ := json.Marshal(o.Options)
	inner, err := mock.New(innerRaw)
	if err != nil {
		return nil, err
	}
	return &Client{inner: inner, every: int32(o.Every), logPath: o.LogPath}, nil
}

func (c *Client) log(s string) {
	if c.logPath == "" {
		return
	}
	_ = appendFile(c.logPath, s+"\n")
}

// appendFile 以追加方式写入。
func appendFile(path, s string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(s)
	return err
}

// Probe 实现 contract.Prober。
func (c *Client) Probe(ctx context.Context, meta contract.PuzzleMeta, word string) (contract.Reveal, error) {
	if c.count.Add(1)%c.every != 0 {
		c.log("ok " + word)
		return c.inner.Probe(ctx, meta, word)
	}
	switch c.faults.Add(1) % 3 {
	case 1:
		c.log("rate_limited " + word)
		return nil, tooMany{}
	case 2:
		c.log("invalid_payload " + word)
		return nil, fmt.Errorf("flaky decode: %w", contract.ErrResponseInvalid)
	default:
		c.log("network " + word)
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: fmt.Errorf("flaky: connection refused")}
	}
}

type tooMany struct{}

func (tooMany) Error() string           { return "flaky upstream 429" }
func (tooMany) UpstreamStatus() int     { return 429 }
func (tooMany) UpstreamMessage() string { return "slow down" }
func (tooMany) Unwrap() error           { return contract.ErrRateLimited }

var _ contract.Prober = (*Client)(nil)
