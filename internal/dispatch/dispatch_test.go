package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revealer/internal/diag"
	"revealer/internal/rate"
	"revealer/pkg/contract"
)

type statusErr struct{ code int }

func (e statusErr) Error() string           { return fmt.Sprintf("status %d", e.code) }
func (e statusErr) UpstreamStatus() int     { return e.code }
func (e statusErr) UpstreamMessage() string { return "" }

// funcProber 以函数实现 Prober。
type funcProber func(ctx context.Context, meta contract.PuzzleMeta, word string) (contract.Reveal, error)

func (f funcProber) Probe(ctx context.Context, meta contract.PuzzleMeta, word string) (contract.Reveal, error) {
	return f(ctx, meta, word)
}

// trackingProber 统计最大在途数。
type trackingProber struct {
	cur, peak atomic.Int64
	delay     time.Duration
}

func (p *trackingProber) Probe(ctx context.Context, _ contract.PuzzleMeta, word string) (contract.Reveal, error) {
	n := p.cur.Add(1)
	for {
		old := p.peak.Load()
		if n <= old || p.peak.CompareAndSwap(old, n) {
			break
		}
	}
	defer p.cur.Add(-1)
	time.Sleep(p.delay)
	return contract.Reveal{word: {0}}, nil
}

func wordsN(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("w%03d", i)
	}
	return out
}

var meta = contract.PuzzleMeta{ID: 1, Slots: 10}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, Options{Concurrency: 1})
	require.Error(t, err)
	_, err = New(&trackingProber{}, Options{Concurrency: 0})
	require.ErrorIs(t, err, contract.ErrInvalidInput)
}

func TestConcurrencyBound(t *testing.T) {
	for _, c := range []int{1, 3, 8} {
		t.Run(fmt.Sprintf("C=%d", c), func(t *testing.T) {
			p := &trackingProber{delay: 3 * time.Millisecond}
			d, err := New(p, Options{Concurrency: c})
			require.NoError(t, err)
			seen := map[string]bool{}
			st := d.Run(context.Background(), meta, wordsN(40), func(o Outcome) {
				seen[o.Word] = true
			})
			assert.Equal(t, 40, st.Total)
			assert.Equal(t, 40, st.OK)
			assert.Len(t, seen, 40)
			assert.LessOrEqual(t, p.peak.Load(), int64(c))
			assert.Equal(t, int64(0), p.cur.Load())
		})
	}
}

func TestCompletionOrder(t *testing.T) {
	p := funcProber(func(ctx context.Context, _ contract.PuzzleMeta, w string) (contract.Reveal, error) {
		if w == "slow" {
			time.Sleep(80 * time.Millisecond)
		}
		return contract.Reveal{w: {0}}, nil
	})
	d, _ := New(p, Options{Concurrency: 2})
	var order []string
	d.Run(context.Background(), meta, []string{"slow", "fast"}, func(o Outcome) { order = append(order, o.Word) })
	assert.Equal(t, []string{"fast", "slow"}, order)
}

// "zzz" 返回 500：其余词不受影响，失败以 upstream 标记。
func TestFailureIsolation(t *testing.T) {
	p := funcProber(func(ctx context.Context, _ contract.PuzzleMeta, w string) (contract.Reveal, error) {
		switch w {
		case "zzz":
			return nil, statusErr{500}
		case "bad":
			return nil, fmt.Errorf("decode: %w", contract.ErrResponseInvalid)
		case "down":
			return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}
		}
		return contract.Reveal{w: {1}}, nil
	})
	d, _ := New(p, Options{Concurrency: 4})
	byWord := map[string]Outcome{}
	st := d.Run(context.Background(), meta, []string{"fox", "zzz", "bad", "down", "dog"}, func(o Outcome) { byWord[o.Word] = o })
	assert.Equal(t, 5, st.Total)
	assert.Equal(t, 2, st.OK)
	assert.Equal(t, 3, st.Failed)
	assert.Equal(t, diag.CodeUpstream, byWord["zzz"].Code)
	assert.Equal(t, diag.CodeProtocol, byWord["bad"].Code)
	assert.Equal(t, diag.CodeNetwork, byWord["down"].Code)
	assert.True(t, byWord["fox"].OK())
	assert.Equal(t, 1, byWord["zzz"].Attempts)
}

func TestRetryPolicy(t *testing.T) {
	var calls atomic.Int32
	p := funcProber(func(ctx context.Context, _ contract.PuzzleMeta, w string) (contract.Reveal, error) {
		if calls.Add(1) <= 2 {
			return nil, statusErr{503}
		}
		return contract.Reveal{w: {0}}, nil
	})
	d, _ := New(p, Options{Concurrency: 1, MaxRetries: 2, RetryDelay: time.Millisecond})
	o := d.Probe(context.Background(), meta, "fox")
	require.True(t, o.OK())
	assert.Equal(t, 3, o.Attempts)

	calls.Store(0)
	d0, _ := New(p, Options{Concurrency: 1})
	o = d0.Probe(context.Background(), meta, "fox")
	assert.False(t, o.OK())
	assert.Equal(t, 1, o.Attempts)
}

func TestProtocolErrorsNotRetried(t *testing.T) {
	var calls atomic.Int32
	p := funcProber(func(ctx context.Context, _ contract.PuzzleMeta, w string) (contract.Reveal, error) {
		calls.Add(1)
		return nil, contract.ErrResponseInvalid
	})
	d, _ := New(p, Options{Concurrency: 1, MaxRetries: 5})
	o := d.Probe(context.Background(), meta, "fox")
	assert.Equal(t, diag.CodeProtocol, o.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPerRequestTimeout(t *testing.T) {
	p := funcProber(func(ctx context.Context, _ contract.PuzzleMeta, w string) (contract.Reveal, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	d, _ := New(p, Options{Concurrency: 2, Timeout: 20 * time.Millisecond})
	o := d.Probe(context.Background(), meta, "hang")
	assert.Equal(t, diag.CodeNetwork, o.Code)
	assert.True(t, diag.Retryable(o.Err))
	var ne net.Error
	require.ErrorAs(t, o.Err, &ne)
	assert.True(t, ne.Timeout())
}

// 单次超时按网络错误重试，第二次成功
func TestTimeoutIsRetried(t *testing.T) {
	var calls atomic.Int32
	p := funcProber(func(ctx context.Context, _ contract.PuzzleMeta, w string) (contract.Reveal, error) {
		if calls.Add(1) == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return contract.Reveal{w: {0}}, nil
	})
	d, _ := New(p, Options{Concurrency: 1, MaxRetries: 2, Timeout: 20 * time.Millisecond})
	o := d.Probe(context.Background(), meta, "fox")
	require.True(t, o.OK(), "超时后应重试成功: %v", o.Err)
	assert.Equal(t, 2, o.Attempts)
	assert.Equal(t, int32(2), calls.Load())
}

// 运行上下文结束时仍归为 cancel，且不重试
func TestParentCancelStaysCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	p := funcProber(func(pctx context.Context, _ contract.PuzzleMeta, w string) (contract.Reveal, error) {
		calls.Add(1)
		cancel()
		<-pctx.Done()
		return nil, pctx.Err()
	})
	d, _ := New(p, Options{Concurrency: 1, MaxRetries: 3, Timeout: time.Second})
	o := d.Probe(ctx, meta, "fox")
	assert.Equal(t, diag.CodeCancel, o.Code)
	assert.Equal(t, int32(1), calls.Load())
}

// 超大并发预算不按预算分配缓冲
func TestHugeConcurrencyFewWords(t *testing.T) {
	d, err := New(&trackingProber{}, Options{Concurrency: math.MaxInt})
	require.NoError(t, err)
	st := d.Run(context.Background(), meta, wordsN(3), nil)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 3, st.OK)
}

func TestPanicBecomesFailure(t *testing.T) {
	p := funcProber(func(ctx context.Context, _ contract.PuzzleMeta, w string) (contract.Reveal, error) {
		if w == "boom" {
			panic("kaboom")
		}
		return contract.Reveal{}, nil
	})
	d, _ := New(p, Options{Concurrency: 2})
	st := d.Run(context.Background(), meta, []string{"boom", "ok"}, nil)
	assert.Equal(t, 1, st.OK)
	assert.Equal(t, 1, st.ByCode[diag.CodeInvariant])
}

func TestCanceledContextEmitsEveryWord(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d, _ := New(&trackingProber{}, Options{Concurrency: 2})
	var mu sync.Mutex
	n := 0
	st := d.Run(ctx, meta, wordsN(10), func(o Outcome) { mu.Lock(); n++; mu.Unlock() })
	assert.Equal(t, 10, n)
	assert.Equal(t, 10, st.Total)
}

func TestEmptyWordRejected(t *testing.T) {
	d, _ := New(&trackingProber{}, Options{Concurrency: 1})
	o := d.Probe(context.Background(), meta, "")
	assert.ErrorIs(t, o.Err, contract.ErrInvalidInput)
}

func TestGateConsulted(t *testing.T) {
	g := rate.NewGate(map[rate.LimitKey]rate.Limits{"k": {RPM: 60, Burst: 1}}, nil)
	require.NoError(t, g.Wait(context.Background(), rate.Ask{Key: "k"}))
	d, _ := New(&trackingProber{}, Options{Concurrency: 1, Gate: g, GateKey: "k"})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	o := d.Probe(ctx, meta, "fox")
	require.Error(t, o.Err)
}
