package diag

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// 级别定义
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "debug"
	case Warn:
		return "warn"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Logger 为最小结构化日志器：单行 JSON，写入轮转文件；无 sink 时写 stderr。
type Logger struct {
	corrID string
	level  Level
	sink   *RotatingFile
	out    io.Writer
	mu     sync.Mutex
}

// NewLogger 通过配置的 level 初始化，日志写入 dir（空则 logs），10MiB 轮转。
// corrID 为空时生成 UUID。
func NewLogger(corrID, level, dir string) *Logger {
	if strings.TrimSpace(corrID) == "" {
		corrID = NewCorrID()
	}
	if strings.TrimSpace(dir) == "" {
		dir = "logs"
	}
	return &Logger{
		corrID: corrID,
		level:  parseLevel(strings.TrimSpace(level)),
		sink:   NewRotatingFile(dir, 10*1024*1024),
		out:    os.Stderr,
	}
}

// NewWriterLogger 直接写入 w，不落盘（测试与嵌入场景）。
func NewWriterLogger(corrID, level string, w io.Writer) *Logger {
	if w == nil {
		w = io.Discard
	}
	return &Logger{corrID: corrID, level: parseLevel(level), out: w}
}

// NewCorrID 生成一次运行的关联 ID。
func NewCorrID() string { return uuid.NewString() }

// CorrID 返回关联 ID。
func (l *Logger) CorrID() string {
	if l == nil {
		return ""
	}
	return l.corrID
}

// Close 关闭底层文件。
func (l *Logger) Close() error {
	if l == nil || l.sink == nil {
		return nil
	}
	return l.sink.Close()
}

func parseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return Debug
	case "warn":
		return Warn
	case "error":
		return Error
	default:
		return Info
	}
}

// Event 为标准事件结构。
type Event struct {
	Level  string            `json:"level"`
	TS     string            `json:"ts"`
	CorrID string            `json:"corr_id"`
	Comp   string            `json:"comp"`
	Stage  string            `json:"stage"` // start|finish|error|state
	Code   string            `json:"code,omitempty"`
	DurMS  int64             `json:"dur_ms,omitempty"`
	Count  int64             `json:"count,omitempty"`
	Round  int               `json:"round,omitempty"`
	Word   string            `json:"word,omitempty"`
	Msg    string            `json:"msg"`
	KV     map[string]string `json:"kv,omitempty"`
}

func (l *Logger) log(lv Level, ev Event) {
	if l == nil || lv < l.level {
		return
	}
	ev.Level = lv.String()
	ev.TS = NowUTC()
	ev.CorrID = l.corrID
	b, _ := json.Marshal(ev)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sink == nil {
		_, _ = l.writer().Write(append(b, '\n'))
		return
	}
	if err := l.sink.WriteLine(b); err != nil {
		fmt.Fprintf(os.Stderr, "logger sink error: %v\n", err)
		_, _ = l.writer().Write(append(b, '\n'))
	}
}

func (l *Logger) writer() io.Writer {
	if l.out == nil {
		return os.Stderr
	}
	return l.out
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	l.log(Info, Event{Comp: comp, Stage: "start", Msg: msg})
	return &Timer{l: l, comp: comp, t0: time.Now()}
}

// StartWith 记录带轮次/词的 start。
func (l *Logger) StartWith(comp, msg string, round int, word string) *Timer {
	l.log(Info, Event{Comp: comp, Stage: "start", Round: round, Word: word, Msg: msg})
	return &Timer{l: l, comp: comp, round: round, word: word, t0: time.Now()}
}

// StartWithKV 记录带轮次与键值的 start。
func (l *Logger) StartWithKV(comp, msg string, round int, kv map[string]string) *Timer {
	l.log(Info, Event{Comp: comp, Stage: "start", Round: round, Msg: msg, KV: kv})
	return &Timer{l: l, comp: comp, round: round, t0: time.Now()}
}

// State 记录状态迁移。
func (l *Logger) State(comp, from, to string, round int) {
	l.log(Info, Event{Comp: comp, Stage: "state", Round: round, Msg: from + "->" + to})
}

// Error 记录 error 事件（不采样）。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	l.ErrorWithKV(comp, code, msg, durSince, 0, "", nil)
}

// ErrorWith 支持轮次/词。
func (l *Logger) ErrorWith(comp, code, msg string, durSince *time.Time, round int, word string) {
	l.ErrorWithKV(comp, code, msg, durSince, round, word, nil)
}

// ErrorWithKV 支持附带键值对（例如 HTTP 状态码、上游错误片段）。
func (l *Logger) ErrorWithKV(comp, code, msg string, durSince *time.Time, round int, word string, kv map[string]string) {
	var dur int64
	if durSince != nil {
		dur = time.Since(*durSince).Milliseconds()
	}
	l.log(Error, Event{Comp: comp, Stage: "error", Code: code, DurMS: dur, Msg: msg, Round: round, Word: word, KV: kv})
}

// InfoFinish 在已有起点的情况下记录 finish。
func (l *Logger) InfoFinish(comp, msg string, start time.Time, count int64) {
	l.log(Info, Event{Comp: comp, Stage: "finish", DurMS: time.Since(start).Milliseconds(), Count: count, Msg: msg})
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l     *Logger
	comp  string
	round int
	word  string
	t0    time.Time
}

// Finish 记录 finish；可选 count。
func (t *Timer) Finish(msg string, count int64) {
	t.FinishKV(msg, count, nil)
}

// FinishKV 记录带键值的 finish。
func (t *Timer) FinishKV(msg string, count int64, kv map[string]string) {
	if t == nil || t.l == nil {
		return
	}
	t.l.log(Info, Event{Comp: t.comp, Stage: "finish", DurMS: time.Since(t.t0).Milliseconds(), Count: count, Round: t.round, Word: t.word, Msg: msg, KV: kv})
}

// Since 返回计时起点，供 Error 计算耗时。
func (t *Timer) Since() *time.Time {
	if t == nil {
		return nil
	}
	return &t.t0
}

// DebugStart 输出调试级别的 start 事件（仅在 level=debug 时生效）。
func (l *Logger) DebugStart(comp, msg string, round int, word string, kv map[string]string) {
	l.log(Debug, Event{Comp: comp, Stage: "start", Round: round, Word: word, Msg: msg, KV: kv})
}
