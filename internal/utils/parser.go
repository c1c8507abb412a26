package utils

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	reCodeFence = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")
	// 引号内的片段：英文双引号、中文弯引号、书名号
	reQuoted = regexp.MustCompile(`"([^"\n]{1,200})"|“([^”\n]{1,200})”|《([^》\n]{1,200})》`)
)

// SanitizeLogName 把查询文本转换为可用作文件名的短标识
func SanitizeLogName(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore && b.Len() > 0 {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}

	name := strings.TrimRight(b.String(), "_")
	if runes := []rune(name); len(runes) > 48 {
		name = strings.TrimRight(string(runes[:48]), "_")
	}
	if name == "" {
		return "query"
	}
	return name
}

// ExtractJSON 从 LLM 回复中取出 JSON 主体（去掉代码块标记和前后说明文字）
func ExtractJSON(raw string) (string, bool) {
	text := strings.TrimSpace(raw)
	if m := reCodeFence.FindStringSubmatch(text); len(m) > 1 {
		text = strings.TrimSpace(m[1])
	}

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return "", false
	}
	closing := byte('}')
	if text[start] == '[' {
		closing = ']'
	}
	end := strings.LastIndexByte(text, closing)
	if end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// QuotedStrings 提取引号/书名号中的片段，跳过形如 "key": 的 JSON 键，按出现顺序去重
func QuotedStrings(raw string) []string {
	var result []string
	seen := make(map[string]bool)

	for _, loc := range reQuoted.FindAllStringSubmatchIndex(raw, -1) {
		rest := strings.TrimLeft(raw[loc[1]:], " \t")
		if strings.HasPrefix(rest, ":") {
			continue
		}

		var value string
		for g := 1; g <= 3; g++ {
			if loc[2*g] >= 0 {
				value = raw[loc[2*g]:loc[2*g+1]]
				break
			}
		}
		value = strings.TrimSpace(value)
		key := strings.ToLower(value)
		if value == "" || seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, value)
	}
	return result
}

// TruncateRunes 按字符截断
func TruncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
