package main

import (
	"bufio"
	"os"
	"strings"
)

// loadDotEnv 读取简单的 .env 文件格式并注入进程环境。
// 规则：
// - 忽略不存在的文件；无法读取时返回错误（但调用处可忽略）。
// - 跳过空行与以 # 开头的行；支持可选的前缀 "export "。
// - 仅按首个 '=' 分割；key 与 value 去首尾空白。
// - value 被成对的单/双引号包裹时去除外层引号；双引号内处理 \n \t \r \" \\ 转义。
// - 不覆盖已存在的环境变量。
func loadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		key, val, ok := parseDotEnvLine(s.Text())
		if !ok {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, val)
	}
	return s.Err()
}

func parseDotEnvLine(line string) (key, val string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
	eq := strings.IndexByte(line, '=')
	if eq <= 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:eq])
	val = strings.TrimSpace(line[eq+1:])
	if key == "" {
		return "", "", false
	}
	if len(val) >= 2 {
		q := val[0]
		if (q == '\'' || q == '"') && val[len(val)-1] == q {
			val = val[1 : len(val)-1]
			if q == '"' {
				val = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\r`, "\r", `\"`, `"`, `\\`, `\`).Replace(val)
			}
		}
	}
	return key, val, true
}

// writeDotEnv 生成 .env 模板（若文件已存在则跳过）。
func writeDotEnv(path string) error {
	if st, err := os.Stat(path); err == nil && !st.IsDir() {
		return nil
	} else if err != nil && !os.IsNotExist(err) {
		return err
	}
	var b strings.Builder
	b.WriteString("# revealer .env 模板（由 init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > 配置文件 > 变体默认 > 内置默认\n")
	b.WriteString("# 空值表示未设置。\n\n")

	b.WriteString("# 配置来源（二选一）\n")
	b.WriteString("REVEALER_CONFIG_FILE=\n")
	b.WriteString("REVEALER_CONFIG_JSON=\n\n")

	b.WriteString("# 运行参数覆盖\n")
	for _, k := range []string{
		"VARIANT", "GAME", "SITE_URL", "INPUTS", "BATCH_SIZE", "CONCURRENCY",
		"MAX_RETRIES", "RETRY_DELAY_MS", "PROBE_TIMEOUT_MS", "SEARCH_RESULTS",
		"SENTINEL", "IGNORE", "LIMITS_RPM", "LIMITS_BURST", "CHECKPOINT_DIR",
		"STATUS_ADDR", "TRACING_EXPORTER", "TRACING_ENDPOINT", "TRACING_INSECURE",
		"LOG_LEVEL", "LOG_DIR",
	} {
		b.WriteString("REVEALER_" + k + "=\n")
	}
	b.WriteString("\n# 组件选择与选项（原样 JSON）\n")
	for _, k := range []string{"METADATA", "VOCABULARY", "BATCHER", "PROBER", "SEARCHER", "SPLITTER", "SUBMITTER"} {
		b.WriteString("REVEALER_COMPONENTS_" + k + "=\n")
		b.WriteString("REVEALER_OPTIONS_" + k + "_JSON=\n")
	}
	b.WriteString("\n# gcs 词表凭据（由 Google 客户端库读取）\n")
	b.WriteString("GOOGLE_APPLICATION_CREDENTIALS=\n")

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	_, err = f.WriteString(b.String())
	return err
}
