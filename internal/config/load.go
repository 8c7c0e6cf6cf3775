package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults 返回带有安全默认值的 Config 雏形。
// 站点与哨兵词不在此处设定，由变体层提供。
func Defaults() Config {
	return Config{
		Variant:        "pedantle",
		Game:           "live",
		BatchSize:      500,
		Concurrency:    200,
		MaxRetries:     0,
		RetryDelayMS:   500,
		ProbeTimeoutMS: 30000,
		SearchResults:  5,
		Ignore:         cloneStrings(DefaultIgnore),
		Tracing:        Tracing{Exporter: "none"},
		Logging:        Logging{Level: "info", Dir: "logs"},
		Components: Components{
			Metadata:   "htmlpage",
			Vocabulary: "filesystem",
			Batcher:    "chunk",
			Prober:     "httpscore",
			Searcher:   "duckduckgo",
			Splitter:   "title",
			Submitter:  "filesystem",
		},
	}
}

// Resolve 依次叠加 默认值 → 变体默认 → 各覆盖层。
// 变体名取自最后一个显式设置了 variant 的覆盖层。
func Resolve(layers ...Config) Config {
	out := Defaults()
	for _, l := range layers {
		if v := strings.TrimSpace(l.Variant); v != "" {
			out.Variant = v
		}
	}
	out = Merge(out, VariantDefaults(out.Variant))
	for _, l := range layers {
		out = Merge(out, l)
	}
	return out
}

// LoadFile 按扩展名选择 JSON 或 YAML 解析。
func LoadFile(path string) (Config, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(path, nil)
	default:
		return LoadJSON(path, nil)
	}
}

// LoadJSON 从文件路径或原始 JSON 解析 Config（严格拒绝未知字段）。
func LoadJSON(path string, raw []byte) (Config, error) {
	r, closeFn, err := open(path, raw)
	if err != nil {
		return Config{MaxRetries: -1}, err
	}
	defer closeFn()
	return decodeStrict(r)
}

// LoadYAML 解析 YAML：先转为通用树再编码为 JSON，
// 以复用 json 标签与严格解码（未知字段同样失败）。
func LoadYAML(path string, raw []byte) (Config, error) {
	r, closeFn, err := open(path, raw)
	if err != nil {
		return Config{MaxRetries: -1}, err
	}
	defer closeFn()
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{MaxRetries: -1}, fmt.Errorf("config: read yaml: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return Config{MaxRetries: -1}, fmt.Errorf("config: parse yaml: %w", err)
	}
	if tree == nil {
		tree = map[string]any{}
	}
	js, err := json.Marshal(tree)
	if err != nil {
		return Config{MaxRetries: -1}, fmt.Errorf("config: yaml to json: %w", err)
	}
	return decodeStrict(bytes.NewReader(js))
}

func open(path string, raw []byte) (io.Reader, func(), error) {
	switch {
	case len(raw) > 0:
		return bytes.NewReader(raw), func() {}, nil
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return f, func() { _ = f.Close() }, nil
	default:
		return nil, nil, errors.New("config: no config source provided")
	}
}

// decodeStrict: 未出现的 max_retries 记为 -1（未覆盖）。
func decodeStrict(r io.Reader) (Config, error) {
	cfg := Config{MaxRetries: -1}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{MaxRetries: -1}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON 为“替换”；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	setStr(&out.Variant, over.Variant)
	setStr(&out.Game, over.Game)
	setStr(&out.SiteURL, over.SiteURL)
	if len(over.Inputs) > 0 {
		out.Inputs = cloneStrings(over.Inputs)
	}
	setInt(&out.BatchSize, over.BatchSize)
	setInt(&out.Concurrency, over.Concurrency)
	// MaxRetries 的 0 具有语义（禁用重试）；约定 -1 表示未覆盖。
	if over.MaxRetries >= 0 {
		out.MaxRetries = over.MaxRetries
	}
	setInt(&out.RetryDelayMS, over.RetryDelayMS)
	setInt(&out.ProbeTimeoutMS, over.ProbeTimeoutMS)
	setInt(&out.SearchResults, over.SearchResults)
	setStr(&out.Sentinel, over.Sentinel)
	if over.Ignore != nil {
		out.Ignore = cloneStrings(over.Ignore)
	}

	setInt(&out.Limits.RPM, over.Limits.RPM)
	setInt(&out.Limits.Burst, over.Limits.Burst)
	setStr(&out.Checkpoint.Dir, over.Checkpoint.Dir)
	setStr(&out.Status.Addr, over.Status.Addr)
	setStr(&out.Tracing.Exporter, over.Tracing.Exporter)
	setStr(&out.Tracing.Endpoint, over.Tracing.Endpoint)
	if over.Tracing.Insecure {
		out.Tracing.Insecure = true
	}
	setStr(&out.Logging.Level, over.Logging.Level)
	setStr(&out.Logging.Dir, over.Logging.Dir)

	// 组件名（空不覆盖）
	setStr(&out.Components.Metadata, over.Components.Metadata)
	setStr(&out.Components.Vocabulary, over.Components.Vocabulary)
	setStr(&out.Components.Batcher, over.Components.Batcher)
	setStr(&out.Components.Prober, over.Components.Prober)
	setStr(&out.Components.Searcher, over.Components.Searcher)
	setStr(&out.Components.Splitter, over.Components.Splitter)
	setStr(&out.Components.Submitter, over.Components.Submitter)

	// Options（完整替换对应键）
	setRaw(&out.Options.Metadata, over.Options.Metadata)
	setRaw(&out.Options.Vocabulary, over.Options.Vocabulary)
	setRaw(&out.Options.Batcher, over.Options.Batcher)
	setRaw(&out.Options.Prober, over.Options.Prober)
	setRaw(&out.Options.Searcher, over.Options.Searcher)
	setRaw(&out.Options.Splitter, over.Options.Splitter)
	setRaw(&out.Options.Submitter, over.Options.Submitter)
	return out
}

func setStr(dst *string, v string) {
	if t := strings.TrimSpace(v); t != "" {
		*dst = t
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setRaw(dst *json.RawMessage, v json.RawMessage) {
	if len(v) > 0 {
		*dst = cloneRaw(v)
	}
}

// EnvPrefix 为环境变量前缀。
const EnvPrefix = "REVEALER_"

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 支持：VARIANT, GAME, SITE_URL, INPUTS, BATCH_SIZE, CONCURRENCY, MAX_RETRIES,
// RETRY_DELAY_MS, PROBE_TIMEOUT_MS, SEARCH_RESULTS, SENTINEL, IGNORE,
// LIMITS_{RPM,BURST}, CHECKPOINT_DIR, STATUS_ADDR, TRACING_{EXPORTER,ENDPOINT},
// LOG_LEVEL, LOG_DIR, COMPONENTS_<KIND> 与 OPTIONS_<KIND>_JSON。
// 空值视为未设置；数值键解析失败时返回错误。
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	// -1 表示未设置，以便 Merge 区分“未覆盖”和“显式设置为 0”。
	over.MaxRetries = -1
	ints := map[string]*int{
		"BATCH_SIZE":       &over.BatchSize,
		"CONCURRENCY":      &over.Concurrency,
		"MAX_RETRIES":      &over.MaxRetries,
		"RETRY_DELAY_MS":   &over.RetryDelayMS,
		"PROBE_TIMEOUT_MS": &over.ProbeTimeoutMS,
		"SEARCH_RESULTS":   &over.SearchResults,
		"LIMITS_RPM":       &over.Limits.RPM,
		"LIMITS_BURST":     &over.Limits.Burst,
	}
	strs := map[string]*string{
		"VARIANT":          &over.Variant,
		"GAME":             &over.Game,
		"SITE_URL":         &over.SiteURL,
		"SENTINEL":         &over.Sentinel,
		"CHECKPOINT_DIR":   &over.Checkpoint.Dir,
		"STATUS_ADDR":      &over.Status.Addr,
		"TRACING_EXPORTER": &over.Tracing.Exporter,
		"TRACING_ENDPOINT": &over.Tracing.Endpoint,
		"LOG_LEVEL":        &over.Logging.Level,
		"LOG_DIR":          &over.Logging.Dir,

		"COMPONENTS_METADATA":   &over.Components.Metadata,
		"COMPONENTS_VOCABULARY": &over.Components.Vocabulary,
		"COMPONENTS_BATCHER":    &over.Components.Batcher,
		"COMPONENTS_PROBER":     &over.Components.Prober,
		"COMPONENTS_SEARCHER":   &over.Components.Searcher,
		"COMPONENTS_SPLITTER":   &over.Components.Splitter,
		"COMPONENTS_SUBMITTER":  &over.Components.Submitter,
	}
	raws := map[string]*json.RawMessage{
		"OPTIONS_METADATA_JSON":   &over.Options.Metadata,
		"OPTIONS_VOCABULARY_JSON": &over.Options.Vocabulary,
		"OPTIONS_BATCHER_JSON":    &over.Options.Batcher,
		"OPTIONS_PROBER_JSON":     &over.Options.Prober,
		"OPTIONS_SEARCHER_JSON":   &over.Options.Searcher,
		"OPTIONS_SPLITTER_JSON":   &over.Options.Splitter,
		"OPTIONS_SUBMITTER_JSON":  &over.Options.Submitter,
	}
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		key := strings.TrimPrefix(kv[:eq], EnvPrefix)
		val := kv[eq+1:]
		if p, ok := ints[key]; ok {
			// 空值视为未设置（.env 模板中的占位）
			if strings.TrimSpace(val) == "" {
				continue
			}
			v, err := atoi(val)
			if err != nil {
				return Config{MaxRetries: -1}, fmt.Errorf("config: env %s%s: %w", EnvPrefix, key, err)
			}
			*p = v
			continue
		}
		if p, ok := strs[key]; ok {
			*p = strings.TrimSpace(val)
			continue
		}
		if p, ok := raws[key]; ok {
			// 原样 JSON；空值视为未设置，避免清空文件层配置
			if t := strings.TrimSpace(val); t != "" {
				if !json.Valid([]byte(t)) {
					return Config{MaxRetries: -1}, fmt.Errorf("config: env %s%s: invalid json", EnvPrefix, key)
				}
				*p = json.RawMessage(t)
			}
			continue
		}
		switch key {
		case "INPUTS":
			over.Inputs = splitComma(val)
		case "IGNORE":
			over.Ignore = splitComma(val)
		case "TRACING_INSECURE":
			over.Tracing.Insecure = strings.EqualFold(strings.TrimSpace(val), "true") || strings.TrimSpace(val) == "1"
		default:
			// 集合之外的键忽略
		}
	}
	return over, nil
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func atoi(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &n)
	if err != nil {
		return 0, err
	}
	return n, nil
}
