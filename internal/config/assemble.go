package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"revealer/internal/rate"
	"revealer/internal/schedule"
	"revealer/internal/session"
	"revealer/pkg/registry"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate 先做结构标签校验，再做跨字段与注册表校验。
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, ok := Variants[cfg.Variant]; !ok {
		return fmt.Errorf("config: unknown variant %q", cfg.Variant)
	}
	if cfg.Components.Vocabulary != "embedded" && len(cfg.Inputs) == 0 {
		return errors.New("config: inputs empty")
	}
	// 输入路径不得为空字符串；"-" 不能与其他根混用
	dash := false
	for _, r := range cfg.Inputs {
		if strings.TrimSpace(r) == "" {
			return errors.New("config: input path cannot be empty")
		}
		if strings.TrimSpace(r) == "-" {
			dash = true
		}
	}
	if dash && len(cfg.Inputs) > 1 {
		return errors.New("config: '-' cannot be mixed with other roots")
	}
	if cfg.Tracing.Exporter == "otlp" && strings.TrimSpace(cfg.Tracing.Endpoint) == "" {
		return errors.New("config: tracing.endpoint required for otlp exporter")
	}
	c := cfg.Components
	if err := registered("metadata", c.Metadata, registry.Metadata, false); err != nil {
		return err
	}
	if err := registered("vocabulary", c.Vocabulary, registry.Vocabulary, false); err != nil {
		return err
	}
	if err := registered("batcher", c.Batcher, registry.Batcher, false); err != nil {
		return err
	}
	if err := registered("prober", c.Prober, registry.Prober, false); err != nil {
		return err
	}
	if err := registered("searcher", c.Searcher, registry.Searcher, true); err != nil {
		return err
	}
	if err := registered("splitter", c.Splitter, registry.Splitter, false); err != nil {
		return err
	}
	return registered("submitter", c.Submitter, registry.Submitter, true)
}

func registered[F any](kind, name string, m map[string]F, optional bool) error {
	if optional && name == registry.None {
		return nil
	}
	if _, ok := m[name]; !ok {
		return fmt.Errorf("config: %s %q not registered (known: %s)", kind, name, strings.Join(registry.Names(m), ", "))
	}
	return nil
}

// Assemble 构造 Components 与 Settings（含限流 Gate 与等待器）。
// 严格 Options 解析在 registry（工厂）层进行；此处只按变体补齐缺省键。
func Assemble(cfg Config) (session.Components, session.Settings, error) {
	var (
		comp session.Components
		set  session.Settings
	)
	if err := Validate(cfg); err != nil {
		return comp, set, err
	}
	v := Variants[cfg.Variant]
	names := cfg.Components
	opts, err := injectOptions(cfg, v)
	if err != nil {
		return comp, set, err
	}

	if comp.Metadata, err = registry.Metadata[names.Metadata](opts.Metadata); err != nil {
		return comp, set, fmt.Errorf("config: metadata %s: %w", names.Metadata, err)
	}
	if comp.Vocabulary, err = registry.Vocabulary[names.Vocabulary](opts.Vocabulary); err != nil {
		return comp, set, fmt.Errorf("config: vocabulary %s: %w", names.Vocabulary, err)
	}
	if comp.Batcher, err = registry.Batcher[names.Batcher](opts.Batcher); err != nil {
		return comp, set, fmt.Errorf("config: batcher %s: %w", names.Batcher, err)
	}
	if comp.Prober, err = registry.Prober[names.Prober](opts.Prober); err != nil {
		return comp, set, fmt.Errorf("config: prober %s: %w", names.Prober, err)
	}
	if comp.Splitter, err = registry.Splitter[names.Splitter](opts.Splitter); err != nil {
		return comp, set, fmt.Errorf("config: splitter %s: %w", names.Splitter, err)
	}
	if names.Searcher != registry.None {
		if comp.Searcher, err = registry.Searcher[names.Searcher](opts.Searcher); err != nil {
			return comp, set, fmt.Errorf("config: searcher %s: %w", names.Searcher, err)
		}
	}
	if names.Submitter != registry.None {
		if comp.Submitter, err = registry.Submitter[names.Submitter](opts.Submitter); err != nil {
			return comp, set, fmt.Errorf("config: submitter %s: %w", names.Submitter, err)
		}
	}

	set = session.Settings{
		Inputs:        cloneStrings(cfg.Inputs),
		Variant:       v.Name,
		BatchSize:     cfg.BatchSize,
		Concurrency:   cfg.Concurrency,
		MaxRetries:    cfg.MaxRetries,
		RetryDelay:    time.Duration(cfg.RetryDelayMS) * time.Millisecond,
		ProbeTimeout:  time.Duration(cfg.ProbeTimeoutMS) * time.Millisecond,
		SearchResults: cfg.SearchResults,
		Sentinel:      cfg.Sentinel,
		Ignore:        cloneStrings(cfg.Ignore),
	}
	if cfg.Limits.RPM > 0 {
		key := rate.DeriveKeyFromProberOptions(names.Prober, opts.Prober)
		set.Gate = rate.NewGate(map[rate.LimitKey]rate.Limits{
			key: {RPM: cfg.Limits.RPM, Burst: cfg.Limits.Burst},
		}, nil)
		set.GateKey = key
	}
	if cfg.Game == "next" {
		w, err := schedule.NewWaiter(v.ReleaseHour, schedule.Paris)
		if err != nil {
			return comp, set, fmt.Errorf("config: %w", err)
		}
		set.Waiter = w
	}
	return comp, set, nil
}

// injectOptions 按组件名补齐变体相关的缺省选项；显式配置的键保持不变。
func injectOptions(cfg Config, v Variant) (Options, error) {
	out := cfg.Options
	site := cfg.SiteURL
	if site == "" {
		site = v.SiteURL
	}
	var err error
	if cfg.Components.Prober == "httpscore" {
		if out.Prober, err = withDefault(out.Prober, "site_url", site); err != nil {
			return out, fmt.Errorf("config: options.prober: %w", err)
		}
	}
	if cfg.Components.Metadata == "htmlpage" {
		if out.Metadata, err = withDefault(out.Metadata, "site_url", site); err != nil {
			return out, fmt.Errorf("config: options.metadata: %w", err)
		}
	}
	if cfg.Components.Vocabulary == "embedded" {
		if out.Vocabulary, err = withDefault(out.Vocabulary, "language", v.Language); err != nil {
			return out, fmt.Errorf("config: options.vocabulary: %w", err)
		}
	}
	if cfg.Components.Searcher == "duckduckgo" {
		if out.Searcher, err = withDefault(out.Searcher, "site", v.SearchSite); err != nil {
			return out, fmt.Errorf("config: options.searcher: %w", err)
		}
	}
	return out, nil
}

// withDefault 在原样 JSON 对象中补一个缺失键；值为 "" 或 null 视同缺失。
func withDefault(raw json.RawMessage, key string, val any) (json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, err
		}
	}
	if cur, ok := obj[key]; ok {
		if t := strings.TrimSpace(string(cur)); t != `""` && t != "null" {
			return raw, nil
		}
	}
	if obj == nil {
		obj = make(map[string]json.RawMessage, 1)
	}
	b, err := json.Marshal(val)
	if err != nil {
		return nil, err
	}
	obj[key] = b
	return json.Marshal(obj)
}
