package statusd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"revealer/internal/rate"
	"revealer/internal/session"
)

// Board 保存最近一次进度快照；实现 session.Observer。
type Board struct {
	mu      sync.RWMutex
	p       session.Progress
	started time.Time
	corrID  string

	gate    rate.Snapshoter
	gateKey rate.LimitKey
}

// Status 为 /status 的响应体。
type Status struct {
	session.Progress
	CorrID string `json:"corr_id,omitempty"`

	// GateTokens: 限流分组当前可用额度；未启用限流时省略。
	GateTokens *float64 `json:"gate_tokens,omitempty"`
}

// NewBoard 创建进度板。
func NewBoard() *Board {
	return &Board{started: time.Now().UTC(), p: session.Progress{State: session.StateStart}}
}

// Observe 实现 session.Observer。
func (b *Board) Observe(p session.Progress) {
	b.mu.Lock()
	b.p = p
	b.mu.Unlock()
}

// SetCorrID 记录本次运行的关联 ID。
func (b *Board) SetCorrID(id string) {
	b.mu.Lock()
	b.corrID = id
	b.mu.Unlock()
}

// WatchGate 使 /status 附带 key 分组的可用额度。
func (b *Board) WatchGate(g rate.Snapshoter, key rate.LimitKey) {
	b.mu.Lock()
	b.gate, b.gateKey = g, key
	b.mu.Unlock()
}

// Status 汇总进度、关联 ID 与限流额度。
func (b *Board) Status() Status {
	b.mu.RLock()
	st := Status{Progress: b.p, CorrID: b.corrID}
	g, key := b.gate, b.gateKey
	b.mu.RUnlock()
	if g != nil {
		if avail := g.Snapshot(key); avail >= 0 {
			st.GateTokens = &avail
		}
	}
	return st
}

// Router 构建 /healthz、/status、/metrics 路由。
func Router(b *Board, g prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), otelgin.Middleware("revealer"))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "uptime_s": int64(time.Since(b.started).Seconds())})
	})
	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, b.Status())
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
	return r
}

// Server 为可选的状态 HTTP 服务。
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Start 在 addr 上监听并在后台提供服务。
func Start(addr string, b *Board, g prometheus.Gatherer) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		srv: &http.Server{Handler: Router(b, g), ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}
	go func() { _ = s.srv.Serve(ln) }()
	return s, nil
}

// Addr 返回实际监听地址（addr 端口为 0 时有用）。
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Shutdown 优雅关闭。
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func init() { gin.SetMode(gin.ReleaseMode) }

var _ session.Observer = (*Board)(nil)
