package rate

import (
	"context"
	"fmt"
	"time"

	xrate "golang.org/x/time/rate"
)

// LimitKey: 限流分组键（prober 名称 + 端点主机）。
type LimitKey string

// Limits: 每分组的限额配置。RPM=0 表示不启用。
type Limits struct {
	RPM   int // requests per minute
	Burst int // 突发上限；<=0 时取 max(1, RPM/60)
}

// Ask: 一次放行申请。
type Ask struct {
	Key      LimitKey
	Requests int // 默认为 1
}

// Gate: 限流闸门（并发安全）。
type Gate interface {
	// Wait: 阻塞直到额度可用或 ctx 取消；单次申请超过突发上限时快速失败。
	Wait(ctx context.Context, a Ask) error
}

// Snapshoter: 可选诊断接口；返回分组当前可用额度，未限流的分组为 -1。
type Snapshoter interface {
	Snapshot(key LimitKey) (avail float64)
}

// NewGate: 从静态配置构造闸门；clk 为空则使用 time.Now。
// 未配置或 RPM<=0 的分组直接放行。
func NewGate(m map[LimitKey]Limits, clk func() time.Time) Gate {
	if clk == nil {
		clk = time.Now
	}
	g := &gate{clk: clk, m: make(map[LimitKey]*xrate.Limiter, len(m))}
	for k, lim := range m {
		if lim.RPM <= 0 {
			continue
		}
		burst := lim.Burst
		if burst <= 0 {
			burst = max(1, lim.RPM/60)
		}
		l := xrate.NewLimiter(xrate.Limit(float64(lim.RPM)/60.0), burst)
		// 以注入时钟为起点，保证 Snapshot 在固定时钟下可预测
		l.SetLimitAt(clk(), l.Limit())
		g.m[k] = l
	}
	return g
}

type gate struct {
	clk func() time.Time
	m   map[LimitKey]*xrate.Limiter
}

func (g *gate) Wait(ctx context.Context, a Ask) error {
	l, n := g.lookup(a)
	if l == nil {
		return nil
	}
	if n > l.Burst() {
		return fmt.Errorf("rate: ask %d exceeds burst %d for %s", n, l.Burst(), a.Key)
	}
	return l.WaitN(ctx, n)
}

func (g *gate) Snapshot(key LimitKey) float64 {
	l := g.m[key]
	if l == nil {
		return -1
	}
	return l.TokensAt(g.clk())
}

func (g *gate) lookup(a Ask) (*xrate.Limiter, int) {
	n := a.Requests
	if n <= 0 {
		n = 1
	}
	return g.m[a.Key], n
}
