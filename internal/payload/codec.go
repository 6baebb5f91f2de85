// Package payload 负责出站载荷的拼接与入站载荷的拆分清洗。
//
// 约定（固定，不可配置）：片段之间以三字符分隔符 `\+\` 连接；
// 片段内的反斜杠写作 `\\`，换行写作两字符字面量 `\n`。普通换行不是分隔符。
// 合法线上文本中反斜杠只会出现在 `\\`、`\n` 与分隔符里，
// 因此原文中的 `\+\` 不会被误拆。
package payload

import (
	"strings"

	"llmxml/pkg/contract"
)

const (
	// Delimiter 为片段分隔符：反斜杠、加号、反斜杠。
	Delimiter = `\+\`
	// NewlineEscape 为换行的线上表示。
	NewlineEscape = `\n`
	// BackslashEscape 为反斜杠的线上表示。
	BackslashEscape = `\\`
)

var (
	newlineNormalizer = strings.NewReplacer("\r\n", "\n", "\r", "\n")
	escaper           = strings.NewReplacer(`\`, BackslashEscape, "\n", NewlineEscape)
)

// NormalizeNewlines 将 CRLF/CR 统一为 LF。
func NormalizeNewlines(s string) string { return newlineNormalizer.Replace(s) }

// Escape 将文本转为单行线上形式。
func Escape(s string) string {
	return escaper.Replace(NormalizeNewlines(s))
}

// Unescape 自左向右按对还原转义：`\\` 为反斜杠，`\n` 为换行。
// 其余反斜杠不属于任何转义对：`\+` 视为分隔符残留整对丢弃，
// 其他情况只丢反斜杠、保留其后字符。
func Unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		if i+1 == len(s) {
			break
		}
		i++
		switch s[i] {
		case '\\':
			b.WriteByte('\\')
		case 'n':
			b.WriteByte('\n')
		case '+':
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// Encode 以 Delimiter 连接各 span 的线上文本，作为整篇的唯一出站载荷。
func Encode(spans []contract.Span) string {
	parts := make([]string, len(spans))
	for i, s := range spans {
		parts[i] = s.Text
	}
	return strings.Join(parts, Delimiter)
}

// Split 按 Delimiter 拆分，去首尾空白并丢弃空片段；片段保持线上形式。
// 扫描时 `\\` 整对跳过，转义后的反斜杠不会与其后字符拼成分隔符。
func Split(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	var cur strings.Builder
	flush := func() {
		if f := strings.TrimSpace(cur.String()); f != "" {
			out = append(out, f)
		}
		cur.Reset()
	}
	for i := 0; i < len(s); {
		if strings.HasPrefix(s[i:], BackslashEscape) {
			cur.WriteString(BackslashEscape)
			i += len(BackslashEscape)
			continue
		}
		if strings.HasPrefix(s[i:], Delimiter) {
			flush()
			i += len(Delimiter)
			continue
		}
		cur.WriteByte(s[i])
		i++
	}
	flush()
	return out
}

// Clean 将线上片段还原为写回文本：去掉片段开头的分隔符残留 `+\`，
// 再按对反转义，最后去首尾空白。
// 合法线上文本里 `+\` 之后只会是 `\` 或 n，据此区分残留。
func Clean(fragment string) string {
	s := strings.TrimSpace(fragment)
	if strings.HasPrefix(s, `+\`) && !strings.HasPrefix(s[2:], `\`) && !strings.HasPrefix(s[2:], "n") {
		s = s[2:]
	}
	return strings.TrimSpace(Unescape(s))
}

// Decode 取结果中 variant 对应的字段并拆分清洗。
// 结果非映射或字段缺失时视为空载荷，返回 nil。
func Decode(res contract.RewriteResult, variant contract.Variant) []string {
	if !res.Structured() {
		return nil
	}
	blob, ok := res.Variants[variant]
	if !ok {
		return nil
	}
	var out []string
	for _, f := range Split(blob) {
		if c := Clean(f); c != "" {
			out = append(out, c)
		}
	}
	return out
}
