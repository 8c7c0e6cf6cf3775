package config

// Variant: 谜题变体的站点与语言默认值。
type Variant struct {
	Name        string
	SiteURL     string
	Sentinel    string
	Language    string // 内置词表语言
	SearchSite  string // 搜索限定站点
	ReleaseHour int    // Europe/Paris 当地时刻
}

// Variants 为内置变体表。
var Variants = map[string]Variant{
	"pedantix": {
		Name:        "pedantix",
		SiteURL:     "https://pedantix.certitudes.org",
		Sentinel:    "Wikipédia",
		Language:    "fr",
		SearchSite:  "fr.wikipedia.org",
		ReleaseHour: 12,
	},
	"pedantle": {
		Name:        "pedantle",
		SiteURL:     "https://pedantle.certitudes.org",
		Sentinel:    "Wikipedia",
		Language:    "en",
		SearchSite:  "en.wikipedia.org",
		ReleaseHour: 21,
	},
}

// DefaultIgnore: 尝试集的预置词（哨兵与常见分隔符）。
var DefaultIgnore = []string{"Wikipédia", "Wikipedia", "Wiki", "-", "|", ":", "..."}

// VariantDefaults 返回变体层配置；未知名返回空覆盖。
func VariantDefaults(name string) Config {
	v, ok := Variants[name]
	if !ok {
		return Config{MaxRetries: -1}
	}
	return Config{Variant: v.Name, SiteURL: v.SiteURL, Sentinel: v.Sentinel, MaxRetries: -1}
}
