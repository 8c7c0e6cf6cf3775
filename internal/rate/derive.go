package rate

import (
	"encoding/json"
	"net/url"
	"strings"
)

// DeriveKeyFromProberOptions 从 prober 名称与其原样 Options JSON 中提取 site_url 主机，
// 返回 prober:host 形式的限流分组键；无 site_url 时仅用 prober 名称。
func DeriveKeyFromProberOptions(prober string, raw json.RawMessage) LimitKey {
	var obj map[string]any
	_ = json.Unmarshal(raw, &obj)
	site, _ := obj["site_url"].(string)
	host := ""
	if u, err := url.Parse(strings.TrimSpace(site)); err == nil {
		host = strings.ToLower(u.Host)
	}
	if host == "" {
		return LimitKey(prober)
	}
	return LimitKey(prober + ":" + host)
}
