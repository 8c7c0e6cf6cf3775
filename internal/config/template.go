package config

import "encoding/json"

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 变体 pedantle，立即开始（game=live）；
// - 词表为工作目录下 words.txt，猜测写入 ./out；
// - 站点与搜索限定由变体补齐，模板中留空；
// - 选项给出安全中性默认值。
func DefaultTemplateConfig() Config {
	d := Defaults()
	v := Variants[d.Variant]
	cfg := Config{
		Variant:        d.Variant,
		Game:           d.Game,
		Inputs:         []string{"words.txt"},
		BatchSize:      d.BatchSize,
		Concurrency:    d.Concurrency,
		MaxRetries:     1,
		RetryDelayMS:   d.RetryDelayMS,
		ProbeTimeoutMS: d.ProbeTimeoutMS,
		SearchResults:  d.SearchResults,
		Sentinel:       v.Sentinel,
		Ignore:         cloneStrings(DefaultIgnore),
		Limits:         Limits{RPM: 0, Burst: 0},
		Checkpoint:     Checkpoint{Dir: ".revealer"},
		Tracing:        Tracing{Exporter: "none"},
		Logging:        Logging{Level: "info", Dir: "logs"},
		Components:     d.Components,
	}
	// Options：包含所有键（值可为空/默认），确保键存在。
	cfg.Options.Metadata = json.RawMessage(`{
  "site_url": "",
  "path": "/",
  "timeout_seconds": 30,
  "user_agent": "",
  "max_bytes": 0,
  "id_element": "puzzle-num",
  "text_element": "wiki"
}`)
	cfg.Options.Vocabulary = json.RawMessage(`{
  "buf_size": 65536,
  "extensions": [".txt"],
  "exclude_dir_names": [".git"],
  "limit": 0,
  "comment_prefix": "#"
}`)
	cfg.Options.Batcher = json.RawMessage(`{
  "dedupe": true,
  "skip_empty": true
}`)
	cfg.Options.Prober = json.RawMessage(`{
  "site_url": "",
  "score_path": "/score",
  "timeout_seconds": 30,
  "max_idle_conns": 256,
  "user_agent": "",
  "extra_headers": {}
}`)
	cfg.Options.Searcher = json.RawMessage(`{
  "endpoint": "",
  "site": "",
  "timeout_seconds": 15,
  "user_agent": "",
  "qps": 1,
  "max_backoff_sec": 30,
  "max_attempts": 5
}`)
	cfg.Options.Splitter = json.RawMessage(`{
  "separators": "'’-",
  "keep_punct": false
}`)
	cfg.Options.Submitter = json.RawMessage(`{
  "output_dir": "out",
  "atomic": true,
  "perm_file": 0,
  "perm_dir": 0
}`)
	return cfg
}
