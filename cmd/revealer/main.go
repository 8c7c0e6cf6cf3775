package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	cfgpkg "revealer/internal/config"
	"revealer/internal/diag"
	"revealer/internal/rate"
	"revealer/internal/session"
	"revealer/internal/statusd"
	"revealer/internal/store"
)

var (
	sessionRun = session.Run
	version    = "dev"
)

// 退出码
const (
	exitDone      = 0
	exitFatal     = 1
	exitExhausted = 2
	exitConfig    = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// cliFlags: 全局旗标；仅在显式设置时覆盖配置。
type cliFlags struct {
	config        string
	variant       string
	game          string
	site          string
	batchSize     int
	concurrency   int
	maxRetries    int
	logLevel      string
	checkpointDir string
	statusAddr    string
	tracing       string
	status        bool
}

func run(args []string) int {
	// 在任何 ENV 读取前，尝试加载工作目录下的 .env（不覆盖已有 ENV）。
	_ = loadDotEnv(".env")
	code := exitDone
	root := newRootCmd(&code)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		// 旗标解析等 cobra 层错误
		if code == exitDone {
			code = exitConfig
		}
	}
	return code
}

func newRootCmd(code *int) *cobra.Command {
	var fl cliFlags
	runE := func(cmd *cobra.Command, args []string) error {
		*code = runSession(cmd, args, &fl)
		return nil
	}
	root := &cobra.Command{
		Use:           "revealer [words-file...]",
		Short:         "Reveal the hidden article of a Pedantix/Pedantle puzzle by bulk word probing",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runE,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&fl.config, "config", "", "配置文件路径（JSON/YAML）；缺省读取 ./config.json 或 ./config.yaml（若存在）")
	pf.StringVar(&fl.variant, "variant", "", "谜题变体 pedantix|pedantle")
	pf.StringVar(&fl.game, "game", "", "live 立即开始；next 等待下一次发布")
	pf.StringVar(&fl.site, "site", "", "站点地址（覆盖变体默认）")
	pf.IntVar(&fl.batchSize, "batch-size", 0, "每批词数")
	pf.IntVar(&fl.concurrency, "concurrency", 0, "每批并发上限")
	// max-retries 允许显式设置为 0；默认 -1 表示“未覆盖”。
	pf.IntVar(&fl.maxRetries, "max-retries", -1, "单次探测最大重试次数（0 表示不重试）")
	pf.StringVar(&fl.logLevel, "log-level", "", "日志等级 debug|info|error")
	pf.StringVar(&fl.checkpointDir, "checkpoint-dir", "", "断点目录（为空不启用）")
	pf.StringVar(&fl.statusAddr, "status-addr", "", "状态 HTTP 服务监听地址，例如 :9090")
	pf.StringVar(&fl.tracing, "tracing", "", "追踪导出 none|stdout|otlp")
	pf.BoolVar(&fl.status, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")

	runCmd := &cobra.Command{
		Use:   "run [words-file...]",
		Short: "Solve the current (or next) puzzle",
		RunE:  runE,
	}
	initCmd := &cobra.Command{
		Use:   "init-config [dir]",
		Short: "Write a default config.json and .env template (existing files are kept)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				dir = strings.TrimSpace(args[0])
			}
			*code = initConfig(cmd.ErrOrStderr(), dir)
			return nil
		},
	}
	root.AddCommand(runCmd, initCmd)
	return root
}

func initConfig(stderr io.Writer, dir string) int {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fprintf(stderr, "生成默认配置失败: %v\n", err)
		return exitConfig
	}
	cfgPath := filepath.Join(dir, "config.json")
	if err := writeConfig(cfgPath, cfgpkg.DefaultTemplateConfig()); err != nil {
		if errors.Is(err, os.ErrExist) {
			fprintf(stderr, "已存在，跳过: %s\n", cfgPath)
		} else {
			fprintf(stderr, "生成默认配置失败: %v\n", err)
			return exitConfig
		}
	}
	if err := writeDotEnv(filepath.Join(dir, ".env")); err != nil {
		fprintf(stderr, "提示：.env 生成失败（已跳过）：%v\n", err)
	}
	return exitDone
}

// loadConfig 叠加 文件/ENV JSON → ENV 覆盖 → CLI 覆盖，返回最终配置。
func loadConfig(cmd *cobra.Command, args []string, fl *cliFlags) (cfgpkg.Config, error) {
	var layers []cfgpkg.Config

	path := fl.config
	if path == "" {
		path = os.Getenv("REVEALER_CONFIG_FILE")
	}
	// 默认读取工作目录下 config.json / config.yaml（若存在）
	if path == "" {
		for _, name := range []string{"config.json", "config.yaml", "config.yml"} {
			if _, err := os.Stat(name); err == nil {
				path = name
				break
			}
		}
	}
	switch raw := os.Getenv("REVEALER_CONFIG_JSON"); {
	case raw != "":
		base, err := cfgpkg.LoadJSON("", []byte(raw))
		if err != nil {
			return cfgpkg.Config{}, err
		}
		layers = append(layers, base)
	case path != "":
		base, err := cfgpkg.LoadFile(path)
		if err != nil {
			return cfgpkg.Config{}, err
		}
		layers = append(layers, base)
	}

	overEnv, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfgpkg.Config{}, err
	}
	layers = append(layers, overEnv)

	// CLI 覆盖：只取显式设置的旗标
	overCLI := cfgpkg.Config{MaxRetries: -1}
	f := cmd.Flags()
	if f.Changed("variant") {
		overCLI.Variant = fl.variant
	}
	if f.Changed("game") {
		overCLI.Game = fl.game
	}
	if f.Changed("site") {
		overCLI.SiteURL = fl.site
	}
	if f.Changed("batch-size") {
		overCLI.BatchSize = fl.batchSize
	}
	if f.Changed("concurrency") {
		overCLI.Concurrency = fl.concurrency
	}
	if f.Changed("max-retries") {
		overCLI.MaxRetries = fl.maxRetries
	}
	if f.Changed("log-level") {
		overCLI.Logging.Level = fl.logLevel
	}
	if f.Changed("checkpoint-dir") {
		overCLI.Checkpoint.Dir = fl.checkpointDir
	}
	if f.Changed("status-addr") {
		overCLI.Status.Addr = fl.statusAddr
	}
	if f.Changed("tracing") {
		overCLI.Tracing.Exporter = fl.tracing
	}
	if len(args) > 0 {
		overCLI.Inputs = args
	}
	layers = append(layers, overCLI)
	return cfgpkg.Resolve(layers...), nil
}

func runSession(cmd *cobra.Command, args []string, fl *cliFlags) int {
	start := time.Now()
	stderr := cmd.ErrOrStderr()
	corrID := diag.NewCorrID()

	cfg, err := loadConfig(cmd, args, fl)
	if err != nil {
		fprintf(stderr, "配置解析失败: %v\n", err)
		return exitConfig
	}
	if err := cfgpkg.Validate(cfg); err != nil {
		fprintf(stderr, "配置校验失败: %v\n", err)
		// 提示打印有效配置，便于诊断
		_ = dumpConfig(stderr, cfg)
		return exitConfig
	}

	logger := diag.NewLogger(corrID, cfg.Logging.Level, cfg.Logging.Dir)
	defer logger.Close()

	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		fprintf(stderr, "装配失败: %v\n", err)
		logger.Error("config", string(diag.CodeConfig), err.Error(), &start)
		return exitConfig
	}

	ctx, stop := signal.NotifyContext(context.Background(), stopSignals...)
	defer stop()

	shutdown, err := diag.InitTracing(ctx, diag.TraceConfig{
		Exporter: cfg.Tracing.Exporter,
		Endpoint: cfg.Tracing.Endpoint,
		Insecure: cfg.Tracing.Insecure,
		Out:      stderr,
		Version:  version,
	})
	if err != nil {
		fprintf(stderr, "追踪初始化失败: %v\n", err)
		return exitConfig
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(sctx)
	}()

	if dir := strings.TrimSpace(cfg.Checkpoint.Dir); dir != "" {
		st, err := store.Open(store.Config{Dir: dir})
		if err != nil {
			fprintf(stderr, "断点存储打开失败: %v\n", err)
			logger.Error("store", string(diag.Classify(err)), err.Error(), &start)
			return exitFatal
		}
		defer st.Close()
		set.Checkpoint = st
	}

	if addr := strings.TrimSpace(cfg.Status.Addr); addr != "" {
		board := statusd.NewBoard()
		board.SetCorrID(logger.CorrID())
		if g, ok := set.Gate.(rate.Snapshoter); ok {
			board.WatchGate(g, set.GateKey)
		}
		srv, err := statusd.Start(addr, board, diag.Registry)
		if err != nil {
			fprintf(stderr, "状态服务启动失败: %v\n", err)
			logger.Error("statusd", string(diag.Classify(err)), err.Error(), &start)
			return exitFatal
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
		set.Observer = board
	}

	// 终端信息提示（非日志）：按 CLI 启用，默认开启
	diag.SetTerminal(diag.NewTerminal(stderr, fl.status))
	defer diag.SetTerminal(nil)

	logger.DebugStart("config", "effective", 0, "", map[string]string{
		"variant":     cfg.Variant,
		"game":        cfg.Game,
		"site_url":    cfg.SiteURL,
		"inputs":      fmt.Sprintf("%d", len(cfg.Inputs)),
		"batch_size":  fmt.Sprintf("%d", cfg.BatchSize),
		"concurrency": fmt.Sprintf("%d", cfg.Concurrency),
		"max_retries": fmt.Sprintf("%d", cfg.MaxRetries),
		"metadata":    cfg.Components.Metadata,
		"vocabulary":  cfg.Components.Vocabulary,
		"prober":      cfg.Components.Prober,
		"searcher":    cfg.Components.Searcher,
		"submitter":   cfg.Components.Submitter,
	})

	t := logger.Start("session", "run")
	res, err := sessionRun(ctx, comp, set, logger)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			fprintf(stderr, "运行失败: %v\n", err)
		}
		return exitFatal
	}
	t.FinishKV("run", int64(res.Resolved), map[string]string{"state": string(res.State)})
	if !res.Completed() {
		// 未完成：输出当前渲染结果供人工续解
		fprintf(cmd.OutOrStdout(), "%s\n", res.Text)
		return exitExhausted
	}
	return exitDone
}

func fprintf(w io.Writer, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

func dumpConfig(w io.Writer, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	_, _ = w.Write(append([]byte("有效配置:\n"), b...))
	_, _ = w.Write([]byte("\n"))
	return nil
}

func writeConfig(path string, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if path == "-" {
		_, err = os.Stdout.Write(append(b, '\n'))
		return err
	}
	// 不覆盖已存在文件
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return err
	}
	return nil
}
