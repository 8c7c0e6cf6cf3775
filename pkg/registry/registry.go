package registry

import (
	"bytes"
	"encoding/json"
	"sort"

	"revealer/pkg/contract"
	"revealer/plugins/batcher/chunk"
	"revealer/plugins/metadata/htmlpage"
	mstatic "revealer/plugins/metadata/static"
	"revealer/plugins/prober/flaky"
	"revealer/plugins/prober/httpscore"
	"revealer/plugins/prober/mock"
	"revealer/plugins/search/duckduckgo"
	sstatic "revealer/plugins/search/static"
	"revealer/plugins/splitter/title"
	subfs "revealer/plugins/submitter/filesystem"
	"revealer/plugins/submitter/stdout"
	"revealer/plugins/vocabulary/embedded"
	vocfs "revealer/plugins/vocabulary/filesystem"
	"revealer/plugins/vocabulary/gcs"
)

// None: searcher/submitter 的显式关闭名。
const None = "none"

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewMetadata 等工厂签名：接收原样 JSON Options。
type (
	NewMetadata   func(raw json.RawMessage) (contract.MetadataSource, error)
	NewVocabulary func(raw json.RawMessage) (contract.VocabularySource, error)
	NewBatcher    func(raw json.RawMessage) (contract.Batcher, error)
	NewProber     func(raw json.RawMessage) (contract.Prober, error)
	NewSearcher   func(raw json.RawMessage) (contract.Searcher, error)
	NewSplitter   func(raw json.RawMessage) (contract.Splitter, error)
	NewSubmitter  func(raw json.RawMessage) (contract.Submitter, error)
)

// Metadata 工厂注册表（显式、零反射）。
var Metadata = map[string]NewMetadata{
	// htmlpage: 抓取谜题页，解析 puzzle-num 与 wiki 下 span 数
	"htmlpage": func(raw json.RawMessage) (contract.MetadataSource, error) { return htmlpage.New(raw) },
	"static": func(raw json.RawMessage) (contract.MetadataSource, error) {
		var opts mstatic.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return mstatic.New(&opts)
	},
}

// Vocabulary 工厂注册表。
var Vocabulary = map[string]NewVocabulary{
	"filesystem": func(raw json.RawMessage) (contract.VocabularySource, error) {
		var opts vocfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return vocfs.New(&opts), nil
	},
	"gcs": func(raw json.RawMessage) (contract.VocabularySource, error) {
		var opts gcs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return gcs.New(raw)
	},
	// embedded: 随二进制分发的高频词表
	"embedded": func(raw json.RawMessage) (contract.VocabularySource, error) {
		var opts embedded.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return embedded.New(raw)
	},
}

// Batcher 工厂注册表。
var Batcher = map[string]NewBatcher{
	// chunk: 定长连续切批
	"chunk": func(raw json.RawMessage) (contract.Batcher, error) {
		var opts chunk.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return chunk.New(&opts), nil
	},
}

// Prober 工厂注册表。
var Prober = map[string]NewProber{
	"httpscore": func(raw json.RawMessage) (contract.Prober, error) { return httpscore.New(raw) },
	"mock": func(raw json.RawMessage) (contract.Prober, error) {
		var opts mock.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return mock.New(raw)
	},
	// flaky: 在 mock 之上轮换注入 429/坏载荷/网络错误
	"flaky": func(raw json.RawMessage) (contract.Prober, error) {
		var opts flaky.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return flaky.New(raw)
	},
}

// Searcher 工厂注册表。
var Searcher = map[string]NewSearcher{
	"duckduckgo": func(raw json.RawMessage) (contract.Searcher, error) { return duckduckgo.New(raw) },
	"static": func(raw json.RawMessage) (contract.Searcher, error) {
		var opts sstatic.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return sstatic.New(&opts), nil
	},
}

// Splitter 工厂注册表。
var Splitter = map[string]NewSplitter{
	"title": func(raw json.RawMessage) (contract.Splitter, error) {
		var opts title.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return title.New(&opts), nil
	},
}

// Submitter 工厂注册表。
var Submitter = map[string]NewSubmitter{
	// filesystem: 原子写 <output_dir>/<id>.txt
	"filesystem": func(raw json.RawMessage) (contract.Submitter, error) {
		var opts subfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return subfs.New(&opts)
	},
	"stdout": func(raw json.RawMessage) (contract.Submitter, error) {
		var opts stdout.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return stdout.New(&opts), nil
	},
}

// Names 返回某注册表的实现名（排序），用于帮助信息与错误提示。
func Names[F any](m map[string]F) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
