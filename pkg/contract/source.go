package contract

import "context"

// MetadataSource: 获取谜题编号与槽位数（抓取并解析谜题页面）。
// 任一要素缺失时返回包裹 ErrMetadata 的错误。
type MetadataSource interface {
	Fetch(ctx context.Context) (PuzzleMeta, error)
}

// VocabularySource: 从存储加载候选词表（文件/目录/STDIN/对象存储）。
// 约束：按 roots 顺序、文件内顺序返回；不做去重。
type VocabularySource interface {
	Load(ctx context.Context, roots []string) ([]string, error)
}

// Searcher: 外部搜索协作方。以渲染出的部分文本为查询，返回至多 limit 个候选标题。
// 不保证延迟与结果质量。
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]string, error)
}

// Submitter: 接收最终解出的 token 序列，按顺序作为猜测提交。
type Submitter interface {
	Submit(ctx context.Context, meta PuzzleMeta, tokens []string) error
}
