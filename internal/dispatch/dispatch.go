package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"revealer/internal/diag"
	"revealer/internal/rate"
	"revealer/pkg/contract"
)

// - 单点并发：仅此层管理探测并发；Prober 为同步实现。
// - 有界在途：任意时刻在途探测数 <= Concurrency（信号量闸门）。
// - 完成序：Outcome 按完成先后送出，不按提交顺序。
// - 失败隔离：单词失败只体现为一条失败 Outcome，不影响同批其他探测。
// - 排空后返回：一批的所有探测结束后通道才关闭。

// Outcome 为单次探测的显式结果（成功载荷或带分类的失败）。
type Outcome struct {
	Word     string
	Reveal   contract.Reveal
	Err      error
	Code     diag.Code // 失败分类：network|upstream|protocol|cancel|...；成功为空
	Attempts int
	Dur      time.Duration
}

// OK 报告探测是否成功。
func (o Outcome) OK() bool { return o.Err == nil }

// Options 为分发器运行参数。
type Options struct {
	// Concurrency: 在途探测上限，必须 >= 1。
	Concurrency int
	// MaxRetries: 可重试失败的额外尝试次数；0 表示不重试。
	MaxRetries int
	// RetryDelay: 重试间隔；<=0 时不等待。
	RetryDelay time.Duration
	// Timeout: 单次请求超时；<=0 表示仅依赖传输层默认值。
	Timeout time.Duration
	// Gate/GateKey: 可选速率闸门，在每次请求前调用 Wait。
	Gate    rate.Gate
	GateKey rate.LimitKey
}

// Dispatcher 对一批词并发发起探测。
type Dispatcher struct {
	prober contract.Prober
	opts   Options
}

// New 创建分发器。
func New(p contract.Prober, opts Options) (*Dispatcher, error) {
	if p == nil {
		return nil, errors.New("dispatch: nil prober")
	}
	if opts.Concurrency < 1 {
		return nil, fmt.Errorf("dispatch: concurrency must be >= 1: %w", contract.ErrInvalidInput)
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Dispatcher{prober: p, opts: opts}, nil
}

// Concurrency 返回在途上限。
func (d *Dispatcher) Concurrency() int { return d.opts.Concurrency }

// Stream 为 words 中每个词发起一次探测，按完成顺序送出 Outcome；全部结束后关闭通道。
// 每个词恰好对应一条 Outcome。ctx 取消后尚未发起的词以 cancel 失败送出。
// 调用方必须读尽通道。
func (d *Dispatcher) Stream(ctx context.Context, meta contract.PuzzleMeta, words []string) <-chan Outcome {
	out := make(chan Outcome, min(d.opts.Concurrency, len(words)))
	go func() {
		defer close(out)
		ctx, span := diag.StartSpan(ctx, "dispatch.batch",
			attribute.Int("puzzle.id", meta.ID),
			attribute.Int("batch.words", len(words)),
			attribute.Int("concurrency", d.opts.Concurrency))
		defer span.End()

		sem := semaphore.NewWeighted(int64(d.opts.Concurrency))
		var g errgroup.Group
		for _, w := range words {
			if err := sem.Acquire(ctx, 1); err != nil {
				out <- Outcome{Word: w, Err: err, Code: diag.Classify(err)}
				continue
			}
			g.Go(func() error {
				defer sem.Release(1)
				out <- d.Probe(ctx, meta, w)
				return nil
			})
		}
		_ = g.Wait()
	}()
	return out
}

// Stats 为一批探测的汇总。
type Stats struct {
	Total  int
	OK     int
	Failed int
	ByCode map[diag.Code]int
}

// Run 执行一批探测并以完成顺序逐条回调 fn（单消费者，fn 无需并发安全）。
// 返回时该批所有探测均已结束。
func (d *Dispatcher) Run(ctx context.Context, meta contract.PuzzleMeta, words []string, fn func(Outcome)) Stats {
	st := Stats{ByCode: map[diag.Code]int{}}
	for o := range d.Stream(ctx, meta, words) {
		st.Total++
		if o.OK() {
			st.OK++
		} else {
			st.Failed++
			st.ByCode[o.Code]++
		}
		if fn != nil {
			fn(o)
		}
	}
	return st
}

// Probe 是单次探测原语：限速、超时与可选重试都在这里；永不 panic 外泄。
// 验证阶段的小流量探测直接调用本方法。
func (d *Dispatcher) Probe(ctx context.Context, meta contract.PuzzleMeta, word string) Outcome {
	t0 := time.Now()
	o := Outcome{Word: word}
	if word == "" {
		o.Err = fmt.Errorf("dispatch: empty word: %w", contract.ErrInvalidInput)
		o.Code = diag.Classify(o.Err)
		return o
	}
	ctx, span := diag.StartSpan(ctx, "probe", attribute.String("word", word))
	for attempt := 0; ; attempt++ {
		o.Attempts = attempt + 1
		r, err := d.once(ctx, meta, word)
		if err == nil {
			o.Reveal, o.Err, o.Code = r, nil, ""
			break
		}
		o.Err, o.Code = err, diag.Classify(err)
		if attempt >= d.opts.MaxRetries || !diag.Retryable(err) {
			break
		}
		if sleepWithCtx(ctx, d.opts.RetryDelay) != nil {
			break
		}
	}
	o.Dur = time.Since(t0)
	result := "ok"
	if o.Err != nil {
		result = string(o.Code)
	}
	span.SetAttributes(attribute.Int("attempts", o.Attempts), attribute.String("result", result))
	diag.EndSpan(span, o.Err)
	diag.ObserveProbe(result, o.Dur)
	return o
}

func (d *Dispatcher) once(ctx context.Context, meta contract.PuzzleMeta, word string) (r contract.Reveal, err error) {
	if d.opts.Gate != nil {
		if err := d.opts.Gate.Wait(ctx, rate.Ask{Key: d.opts.GateKey, Requests: 1}); err != nil {
			return nil, err
		}
	}
	actx := ctx
	if d.opts.Timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
	}
	diag.ProbeStarted()
	defer diag.ProbeDone()
	defer func() {
		if rec := recover(); rec != nil {
			r, err = nil, fmt.Errorf("dispatch: prober panic: %v: %w", rec, contract.ErrInvariantViolation)
		}
	}()
	r, err = d.prober.Probe(actx, meta, word)
	// 单次超时归为网络错误；运行上下文结束才算 cancel
	if err != nil && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
		return nil, &timeoutError{after: d.opts.Timeout, cause: err}
	}
	return r, err
}

// timeoutError 表示单次探测超过 Timeout；实现 net.Error。
// 不向下解包，避免被归类为 cancel。
type timeoutError struct {
	after time.Duration
	cause error
}

func (e *timeoutError) Error() string {
	return fmt.Sprintf("dispatch: probe timed out after %s: %v", e.after, e.cause)
}
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }

// sleepWithCtx: 可取消的 sleep。
func sleepWithCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
