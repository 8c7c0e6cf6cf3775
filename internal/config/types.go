package config

import (
	"encoding/json"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON/YAML 均使用 snake_case；未知字段在解析期失败。
type Config struct {
	// Variant: pedantix|pedantle，决定站点、哨兵词与发布时刻的默认值。
	Variant string `json:"variant" validate:"omitempty,oneof=pedantix pedantle"`
	// Game: live 立即开始；next 先等待当日发布时刻。
	Game    string   `json:"game" validate:"omitempty,oneof=live next"`
	SiteURL string   `json:"site_url" validate:"omitempty,url"`
	Inputs  []string `json:"inputs"`

	BatchSize      int `json:"batch_size" validate:"gte=1"`
	Concurrency    int `json:"concurrency" validate:"gte=1"`
	MaxRetries     int `json:"max_retries" validate:"gte=0"`
	RetryDelayMS   int `json:"retry_delay_ms" validate:"gte=0"`
	ProbeTimeoutMS int `json:"probe_timeout_ms" validate:"gte=0"`
	SearchResults  int `json:"search_results" validate:"gte=1"`

	// Sentinel: 渲染前缀；Ignore: 永不作为验证词探测的 token。
	Sentinel string   `json:"sentinel"`
	Ignore   []string `json:"ignore"`

	Limits     Limits     `json:"limits"`
	Checkpoint Checkpoint `json:"checkpoint"`
	Status     Status     `json:"status"`
	Tracing    Tracing    `json:"tracing"`
	Logging    Logging    `json:"logging"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`
	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`
}

// Limits: 计分端点限流（仅承载；执行位于 rate.Gate）。RPM=0 关闭。
type Limits struct {
	RPM   int `json:"rpm" validate:"gte=0"`
	Burst int `json:"burst" validate:"gte=0"`
}

// Checkpoint: 断点目录；为空不启用。
type Checkpoint struct {
	Dir string `json:"dir"`
}

// Status: 状态 HTTP 服务监听地址；为空不启用。
type Status struct {
	Addr string `json:"addr" validate:"omitempty,hostname_port"`
}

// Tracing: 链路追踪导出。
type Tracing struct {
	Exporter string `json:"exporter" validate:"omitempty,oneof=none stdout otlp"`
	Endpoint string `json:"endpoint"`
	Insecure bool   `json:"insecure"`
}

// Logging: 日志等级与落盘目录。
type Logging struct {
	Level string `json:"level" validate:"omitempty,oneof=debug info error"`
	Dir   string `json:"dir"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Metadata   string `json:"metadata"`
	Vocabulary string `json:"vocabulary"`
	Batcher    string `json:"batcher"`
	Prober     string `json:"prober"`
	Searcher   string `json:"searcher"`
	Splitter   string `json:"splitter"`
	Submitter  string `json:"submitter"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Metadata   json.RawMessage `json:"metadata"`
	Vocabulary json.RawMessage `json:"vocabulary"`
	Batcher    json.RawMessage `json:"batcher"`
	Prober     json.RawMessage `json:"prober"`
	Searcher   json.RawMessage `json:"searcher"`
	Splitter   json.RawMessage `json:"splitter"`
	Submitter  json.RawMessage `json:"submitter"`
}
