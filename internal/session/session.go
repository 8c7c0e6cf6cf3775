package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"revealer/internal/answer"
	"revealer/internal/diag"
	"revealer/internal/dispatch"
	"revealer/internal/rate"
	"revealer/internal/store"
	"revealer/pkg/contract"
)

// - 批间严格串行：第 n+1 批在第 n 批全部排空后才开始。
// - 渲染只发生在一批聚合排空之后，不会看到半合并状态。
// - 尝试集归 Session 实例所有，仅在本 goroutine 读写。
// - 只有元信息、词表、切批与提交阶段的错误会终止运行；单词探测失败只记日志。

// State 为会话状态机的状态名。
type State string

const (
	StateStart         State = "START"
	StateFetchMetadata State = "FETCH_METADATA"
	StateProbing       State = "PROBING"
	StateRender        State = "RENDER"
	StateSearch        State = "EXTERNAL_SEARCH"
	StateVerify        State = "VERIFY"
	StateSubmit        State = "SUBMIT"
	StateDone          State = "DONE"
	StateExhausted     State = "EXHAUSTED"
	StateFailed        State = "FAILED"
)

// Components 聚合运行所需的协作组件。Searcher/Splitter/Submitter 可为空。
type Components struct {
	Metadata   contract.MetadataSource
	Vocabulary contract.VocabularySource
	Batcher    contract.Batcher
	Prober     contract.Prober
	Searcher   contract.Searcher
	Splitter   contract.Splitter
	Submitter  contract.Submitter
}

// Waiter 在 FETCH_METADATA 之前等待谜题发布（game=next）。
type Waiter interface {
	Next() (time.Time, bool)
	Wait(ctx context.Context) error
}

// Checkpointer 保存/恢复每轮进度；*store.Store 满足该接口。
type Checkpointer interface {
	Load(ctx context.Context, id int) (store.Snapshot, error)
	Save(ctx context.Context, snap store.Snapshot) error
	Delete(ctx context.Context, id int) error
}

// Progress 为对外暴露的进度快照。
type Progress struct {
	State    State     `json:"state"`
	Variant  string    `json:"variant,omitempty"`
	Puzzle   int       `json:"puzzle"`
	Round    int       `json:"round"`
	Batches  int       `json:"batches"`
	Resolved int       `json:"resolved"`
	Total    int       `json:"total"`
	Tried    int       `json:"tried"`
	Text     string    `json:"text,omitempty"`
	Updated  time.Time `json:"updated"`
}

// Observer 接收状态迁移通知；实现必须并发安全且不阻塞。
type Observer interface {
	Observe(p Progress)
}

// Settings 运行期配置。
type Settings struct {
	Inputs  []string
	Variant string

	BatchSize     int
	Concurrency   int
	MaxRetries    int
	RetryDelay    time.Duration
	ProbeTimeout  time.Duration
	SearchResults int

	// Sentinel: 渲染前缀；Ignore: 预置进尝试集的词。
	Sentinel string
	Ignore   []string

	Gate    rate.Gate
	GateKey rate.LimitKey

	Waiter     Waiter
	Checkpoint Checkpointer
	Observer   Observer
}

// Result 为一次运行的终态。
type Result struct {
	State    State
	Puzzle   contract.PuzzleMeta
	Rounds   int
	Resolved int
	Total    int
	Tokens   []string
	Text     string
	Probes   int
	Failures int
}

// Completed 报告是否以 DONE 结束。
func (r Result) Completed() bool { return r.State == StateDone }

type run struct {
	comp   Components
	set    Settings
	log    *diag.Logger
	disp   *dispatch.Dispatcher
	meta   contract.PuzzleMeta
	buf    *answer.Buffer
	tried  map[string]struct{}
	state  State
	round  int
	plan   contract.Plan
	probes int
	fails  int
}

// Run 执行完整会话：START → FETCH_METADATA → (PROBING → RENDER → EXTERNAL_SEARCH → VERIFY)* → SUBMIT → DONE，
// 批次耗尽而缓冲未完整时以 EXHAUSTED 结束。EXHAUSTED 不是错误。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (Result, error) {
	if err := sanity(comp, set); err != nil {
		return Result{State: StateFailed}, fmt.Errorf("sanity: %w", err)
	}
	t0 := time.Now()
	r := &run{comp: comp, set: set, log: logger, state: StateStart, tried: make(map[string]struct{})}
	for _, w := range set.Ignore {
		r.tried[w] = struct{}{}
	}
	ctx, span := diag.StartSpan(ctx, "session", attribute.String("variant", set.Variant))
	res, err := r.exec(ctx)
	diag.EndSpan(span, err)

	term := diag.GetTerminal()
	if err != nil {
		r.move(StateFailed)
		res.State = StateFailed
		term.RunFinish("fail", res.Resolved, res.Total, time.Since(t0))
		return res, err
	}
	term.RunFinish(strings.ToLower(string(res.State)), res.Resolved, res.Total, time.Since(t0))
	logger.InfoFinish("session", strings.ToLower(string(res.State)), t0, int64(res.Resolved))
	return res, nil
}

func (r *run) exec(ctx context.Context) (Result, error) {
	diag.GetTerminal().RunStart(r.set.Concurrency, r.set.Variant)

	// 词表与切批先于等待发布，尽早暴露输入错误
	vt := r.log.Start("vocabulary", "load")
	words, err := r.comp.Vocabulary.Load(ctx, r.set.Inputs)
	if err != nil {
		r.fail("vocabulary", "load failed", err, "", vt.Since())
		return r.result(), fmt.Errorf("vocabulary load: %w", err)
	}
	vt.Finish("load", int64(len(words)))
	diag.IncOp("vocabulary", "finish", "success")

	bt := r.log.Start("batcher", "make")
	r.plan, err = r.comp.Batcher.Make(ctx, words, contract.BatchLimit{Size: r.set.BatchSize})
	if err != nil {
		r.fail("batcher", "make failed", err, "", bt.Since())
		return r.result(), fmt.Errorf("batcher make: %w", err)
	}
	bt.Finish("make", int64(r.plan.Len()))
	diag.IncOp("batcher", "finish", "success")

	if r.set.Waiter != nil {
		if at, ok := r.set.Waiter.Next(); ok {
			diag.GetTerminal().Waiting(at)
			r.log.State("session", "wait", at.UTC().Format(time.RFC3339), 0)
			if err := r.set.Waiter.Wait(ctx); err != nil {
				return r.result(), fmt.Errorf("wait for release: %w", err)
			}
		}
	}

	r.move(StateFetchMetadata)
	mt := r.log.Start("metadata", "fetch")
	r.meta, err = r.comp.Metadata.Fetch(ctx)
	if err != nil {
		r.fail("metadata", "fetch failed", err, "", mt.Since())
		return r.result(), fmt.Errorf("metadata fetch: %w", err)
	}
	if r.meta.Slots < 0 {
		err := fmt.Errorf("metadata: negative slot count %d: %w", r.meta.Slots, contract.ErrMetadata)
		r.fail("metadata", "fetch failed", err, "", mt.Since())
		return r.result(), err
	}
	mt.FinishKV("fetch", int64(r.meta.Slots), map[string]string{"puzzle": strconv.Itoa(r.meta.ID)})
	diag.IncOp("metadata", "finish", "success")

	if r.buf, err = answer.New(r.meta.Slots, r.set.Sentinel); err != nil {
		return r.result(), err
	}
	r.restore(ctx)
	diag.SetSlots(r.buf.Resolved(), r.buf.Len())
	diag.GetTerminal().PuzzleStart(r.meta.ID, r.meta.Slots, r.plan.Len())

	r.disp, err = dispatch.New(r.comp.Prober, dispatch.Options{
		Concurrency: r.set.Concurrency,
		MaxRetries:  r.set.MaxRetries,
		RetryDelay:  r.set.RetryDelay,
		Timeout:     r.set.ProbeTimeout,
		Gate:        r.set.Gate,
		GateKey:     r.set.GateKey,
	})
	if err != nil {
		return r.result(), err
	}

	for i := 0; i < r.plan.Len() && !r.buf.IsComplete(); i++ {
		if err := ctx.Err(); err != nil {
			return r.result(), err
		}
		if err := r.roundOnce(ctx, r.plan.At(i)); err != nil {
			return r.result(), err
		}
	}

	if !r.buf.IsComplete() {
		r.move(StateExhausted)
		return r.result(), nil
	}

	r.move(StateSubmit)
	if r.comp.Submitter != nil {
		st := r.log.Start("submitter", "submit")
		if err := r.comp.Submitter.Submit(ctx, r.meta, r.buf.Tokens()); err != nil {
			r.fail("submitter", "submit failed", err, "", st.Since())
			return r.result(), fmt.Errorf("submitter submit: %w", err)
		}
		st.Finish("submit", int64(r.buf.Len()))
		diag.IncOp("submitter", "finish", "success")
	}
	if r.set.Checkpoint != nil {
		if err := r.set.Checkpoint.Delete(ctx, r.meta.ID); err != nil {
			r.fail("checkpoint", "delete failed", err, "", nil)
		}
	}
	r.move(StateDone)
	return r.result(), nil
}

// roundOnce: PROBING → RENDER → EXTERNAL_SEARCH → VERIFY。
func (r *run) roundOnce(ctx context.Context, b contract.Batch) error {
	r.round = b.Index + 1
	t0 := time.Now()
	ctx, span := diag.StartSpan(ctx, "round", attribute.Int("round", r.round))
	defer span.End()

	r.move(StateProbing)
	words := r.claim(b.Words)
	pt := r.log.StartWithKV("dispatch", "batch", r.round, map[string]string{
		"words":   strconv.Itoa(len(words)),
		"skipped": strconv.Itoa(len(b.Words) - len(words)),
	})
	term := diag.GetTerminal()
	done, errs := 0, 0
	st := r.disp.Run(ctx, r.meta, words, func(o dispatch.Outcome) {
		done++
		if !r.absorb(o) {
			errs++
		}
		term.ProbeProgress(r.round, done, len(words), errs)
	})
	pt.FinishKV("batch", int64(st.OK), map[string]string{"failed": strconv.Itoa(st.Failed)})
	diag.ObserveDuration("dispatch", "batch", time.Since(t0))
	if err := ctx.Err(); err != nil {
		return err
	}

	if !r.buf.IsComplete() {
		r.move(StateRender)
		text := r.buf.Render()
		r.log.DebugStart("session", "render", r.round, "", map[string]string{"text": text})

		r.move(StateSearch)
		titles := r.search(ctx, text)

		r.move(StateVerify)
		errs += r.verify(ctx, titles)
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	diag.IncRound()
	diag.SetSlots(r.buf.Resolved(), r.buf.Len())
	term.RoundFinish(r.round, r.buf.Resolved(), r.buf.Len(), errs, time.Since(t0))
	r.log.InfoFinish("session", "round "+strconv.Itoa(r.round)+" resolved "+strconv.Itoa(r.buf.Resolved())+"/"+strconv.Itoa(r.buf.Len()), t0, int64(r.buf.Resolved()))
	r.checkpoint(ctx)
	r.notify()
	return nil
}

// claim 过滤掉已尝试与空词，并把剩余词记入尝试集。
func (r *run) claim(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w == "" {
			continue
		}
		if _, seen := r.tried[w]; seen {
			continue
		}
		r.tried[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// absorb 合并一次探测结果；失败只记录，返回是否成功。
func (r *run) absorb(o dispatch.Outcome) bool {
	r.probes++
	if o.OK() {
		answer.Aggregate(r.buf, o.Reveal)
		return true
	}
	r.fails++
	var kv map[string]string
	var ue contract.UpstreamError
	if errors.As(o.Err, &ue) {
		kv = map[string]string{"http_status": strconv.Itoa(ue.UpstreamStatus())}
		if m := strings.TrimSpace(ue.UpstreamMessage()); m != "" {
			if len(m) > 200 {
				m = m[:200]
			}
			kv["upstream_msg"] = m
		}
	}
	if o.Attempts > 1 {
		if kv == nil {
			kv = map[string]string{}
		}
		kv["attempts"] = strconv.Itoa(o.Attempts)
	}
	r.log.ErrorWithKV("prober", string(o.Code), o.Err.Error(), nil, r.round, o.Word, kv)
	diag.IncError("prober", string(o.Code))
	return false
}

// search 调用外部搜索；失败降级为无候选。
func (r *run) search(ctx context.Context, text string) []string {
	if r.comp.Searcher == nil {
		return nil
	}
	t := r.log.StartWith("searcher", "search", r.round, "")
	titles, err := r.comp.Searcher.Search(ctx, text, r.set.SearchResults)
	if err != nil {
		r.fail("searcher", "search failed", err, "", nil)
		return nil
	}
	t.Finish("search", int64(len(titles)))
	diag.IncOp("searcher", "finish", "success")
	return titles
}

// verify 逐个探测候选标题中的新词（单请求原语，串行）；返回失败数。
func (r *run) verify(ctx context.Context, titles []string) int {
	if r.comp.Splitter == nil || len(titles) == 0 {
		return 0
	}
	errs := 0
	for _, title := range titles {
		for _, w := range r.claim(r.comp.Splitter.Split(title)) {
			if ctx.Err() != nil {
				return errs
			}
			if !r.absorb(r.disp.Probe(ctx, r.meta, w)) {
				errs++
			}
		}
	}
	return errs
}

func (r *run) restore(ctx context.Context) {
	if r.set.Checkpoint == nil {
		return
	}
	snap, err := r.set.Checkpoint.Load(ctx, r.meta.ID)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		r.fail("checkpoint", "load failed", err, "", nil)
		return
	}
	if snap.Slots != r.meta.Slots {
		r.log.ErrorWith("checkpoint", string(diag.CodeInvariant), "slot count mismatch, ignoring checkpoint", nil, 0, "")
		return
	}
	answer.Restore(r.buf, snap.Tokens)
	for _, w := range snap.Tried {
		r.tried[w] = struct{}{}
	}
	r.log.InfoFinish("checkpoint", "restored", time.Now(), int64(r.buf.Resolved()))
}

func (r *run) checkpoint(ctx context.Context) {
	if r.set.Checkpoint == nil {
		return
	}
	tried := make([]string, 0, len(r.tried))
	for w := range r.tried {
		tried = append(tried, w)
	}
	snap := store.Snapshot{PuzzleID: r.meta.ID, Slots: r.meta.Slots, Tokens: r.buf.Tokens(), Tried: tried, Round: r.round}
	if err := r.set.Checkpoint.Save(ctx, snap); err != nil {
		r.fail("checkpoint", "save failed", err, "", nil)
	}
}

func (r *run) move(to State) {
	if r.state == to {
		return
	}
	r.log.State("session", string(r.state), string(to), r.round)
	r.state = to
	r.notify()
}

func (r *run) notify() {
	if r.set.Observer == nil {
		return
	}
	p := Progress{
		State:   r.state,
		Variant: r.set.Variant,
		Puzzle:  r.meta.ID,
		Round:   r.round,
		Tried:   len(r.tried),
		Updated: time.Now().UTC(),
	}
	if r.plan != nil {
		p.Batches = r.plan.Len()
	}
	if r.buf != nil {
		p.Resolved, p.Total, p.Text = r.buf.Resolved(), r.buf.Len(), r.buf.Render()
	}
	r.set.Observer.Observe(p)
}

func (r *run) fail(comp, msg string, err error, word string, since *time.Time) {
	code := diag.Classify(err)
	r.log.ErrorWith(comp, string(code), msg+": "+err.Error(), since, r.round, word)
	diag.IncOp(comp, "error", "error")
	if code != diag.CodeUnknown {
		diag.IncError(comp, string(code))
	}
}

func (r *run) result() Result {
	res := Result{State: r.state, Puzzle: r.meta, Rounds: r.round, Probes: r.probes, Failures: r.fails}
	if r.buf != nil {
		res.Resolved, res.Total = r.buf.Resolved(), r.buf.Len()
		res.Tokens, res.Text = r.buf.Tokens(), r.buf.Render()
	}
	return res
}

func sanity(c Components, s Settings) error {
	if c.Metadata == nil || c.Vocabulary == nil || c.Batcher == nil || c.Prober == nil {
		return fmt.Errorf("%w: metadata, vocabulary, batcher and prober are required", contract.ErrInvalidInput)
	}
	if s.BatchSize <= 0 {
		return contract.ErrBatchSize
	}
	if s.Concurrency <= 0 {
		return fmt.Errorf("%w: concurrency must be > 0", contract.ErrInvalidInput)
	}
	if s.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must be >= 0", contract.ErrInvalidInput)
	}
	if c.Searcher != nil && c.Splitter == nil {
		return fmt.Errorf("%w: searcher requires a splitter", contract.ErrInvalidInput)
	}
	return nil
}
