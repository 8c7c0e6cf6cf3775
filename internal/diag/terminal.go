package diag

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Terminal: 终端信息提示（非日志）。
// - 输出到提供的 io.Writer（默认建议 stderr）。
// - TTY: 单行 \r 覆盖且状态标签着色；非 TTY: 关键节点分行打印纯文本。
// - 并发安全；写失败后进入禁用态为 no-op。
type Terminal struct {
	w       io.Writer
	enabled bool
	isTTY   bool

	concurrency int
	variant     string
	runStart    time.Time

	// 当前谜题
	puzzleID     int
	slots        int
	batchesTotal int
	round        int

	lastLen   int
	lastFlush time.Time

	mu sync.Mutex
}

var (
	termMu sync.RWMutex
	term   *Terminal

	styleOK   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	styleWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	styleFail = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

// SetTerminal 设置全局终端指针（nil 可清除）。
func SetTerminal(t *Terminal) {
	termMu.Lock()
	term = t
	termMu.Unlock()
}

// GetTerminal 返回全局终端（可能为 nil）。
func GetTerminal() *Terminal {
	termMu.RLock()
	defer termMu.RUnlock()
	return term
}

// NewTerminal 构造终端提示器。
// enabled=false 时总是 no-op。
func NewTerminal(w io.Writer, enabled bool) *Terminal {
	if w == nil {
		w = os.Stderr
	}
	t := &Terminal{w: w, enabled: enabled}
	// CI 环境视为非 TTY
	if os.Getenv("CI") == "" {
		if f, ok := w.(*os.File); ok {
			fd := f.Fd()
			t.isTTY = isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
		}
	}
	return t
}

// RunStart: 记录运行上下文（并发、变体）。
func (t *Terminal) RunStart(concurrency int, variant string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.concurrency = concurrency
	t.variant = variant
	t.runStart = time.Now()
	t.println(fmt.Sprintf("[run] 并发=%d | 变体=%s", concurrency, safe(variant)))
}

// Waiting: 等待谜题发布。
func (t *Terminal) Waiting(until time.Time) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.println(fmt.Sprintf("[wait] 等待发布 %s", until.Format(time.RFC3339)))
}

// PuzzleStart: 标记谜题与计划批次。
func (t *Terminal) PuzzleStart(id, slots, batchesTotal int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.puzzleID = id
	t.slots = slots
	t.batchesTotal = batchesTotal
	t.round = 0
	t.println(fmt.Sprintf("[puzzle] #%d | 槽位=%d | 计划批次=%d", id, slots, batchesTotal))
}

// ProbeProgress: 批内进度（仅 TTY，≥100ms 节流）。
func (t *Terminal) ProbeProgress(round, done, total, errs int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled || !t.isTTY {
		return
	}
	now := time.Now()
	if now.Sub(t.lastFlush) < 100*time.Millisecond {
		return
	}
	t.lastFlush = now
	t.printInline(fmt.Sprintf("[round %d/%d] 探测 %d/%d | 错误 %d | 并发 %d | 用时 %s",
		round, t.batchesTotal, done, total, errs, t.concurrency, formatSince(t.runStart)))
}

// RoundFinish: 每轮结束报告已解出/总数（两种模式均输出）。
func (t *Terminal) RoundFinish(round, resolved, total, errs int, dur time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.round = round
	if t.isTTY && t.lastLen > 0 {
		t.printInline("")
	}
	t.println(fmt.Sprintf("[round %d/%d] 已解出 %d/%d | 错误 %d | 用时 %s",
		round, t.batchesTotal, resolved, total, errs, formatDur(dur)))
}

// RunFinish: 结束总览；state 为 done|exhausted|fail。
func (t *Terminal) RunFinish(state string, resolved, total int, dur time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	if t.isTTY && t.lastLen > 0 {
		t.printInline("")
	}
	tag := "[" + state + "]"
	if t.isTTY {
		switch state {
		case "done":
			tag = styleOK.Render(tag)
		case "exhausted":
			tag = styleWarn.Render(tag)
		default:
			tag = styleFail.Render(tag)
		}
	}
	t.println(fmt.Sprintf("%s 谜题 #%d | 已解出 %d/%d | 轮次 %d | 总用时 %s",
		tag, t.puzzleID, resolved, total, t.round, formatDur(dur)))
}

func (t *Terminal) println(s string) {
	if t == nil || !t.enabled {
		return
	}
	if _, err := io.WriteString(t.w, s+"\n"); err != nil {
		// 写失败即禁用
		t.enabled = false
	}
	t.lastLen = 0
}

func (t *Terminal) printInline(s string) {
	if t == nil || !t.enabled {
		return
	}
	// 新行比旧短时以空格覆盖行尾
	pad := 0
	if l := visLen(s); t.lastLen > l {
		pad = t.lastLen - l
	}
	var b strings.Builder
	b.WriteByte('\r')
	b.WriteString(s)
	if pad > 0 {
		b.WriteString(strings.Repeat(" ", pad))
	}
	if _, err := io.WriteString(t.w, b.String()); err != nil {
		t.enabled = false
		return
	}
	t.lastLen = visLen(s)
}

func visLen(s string) int { return lipgloss.Width(s) }

func safe(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "\r", " ")
}

func formatSince(t0 time.Time) string { return formatDur(time.Since(t0)) }

func formatDur(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", max(d.Milliseconds(), 0))
	}
	return fmt.Sprintf("%.1fs", float64(d.Milliseconds())/1000.0)
}
