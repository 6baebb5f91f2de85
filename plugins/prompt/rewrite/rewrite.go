// Package rewrite 构造"单次调用产出正/负两种语气改写"的 Chat 提示词。
package rewrite

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"text/template"

	"llmxml/internal/payload"
	"llmxml/pkg/contract"
)

// Options 为 rewrite PromptBuilder 的配置。
// InlineSystemTemplate 优先于 SystemTemplatePath；均为空时使用内置模板。
type Options struct {
	InlineSystemTemplate string `json:"inline_system_template"`
	SystemTemplatePath   string `json:"system_template_path"`
	// Guidance 追加在 system 尾部的补充说明（语气、术语等）。
	Guidance string `json:"guidance"`
}

// templateData 为 system 模板可见的字段。
type templateData struct {
	Delimiter     string
	NewlineEscape string
	Backslash     string
	SpanCount     int
}

// Builder 运行期不做 I/O；模板在构造期解析。
type Builder struct {
	sysT     *template.Template
	guidance string
}

// New 创建 rewrite PromptBuilder。
func New(opts *Options) (*Builder, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	src := defaultSystemTemplate
	switch {
	case o.InlineSystemTemplate != "":
		src = o.InlineSystemTemplate
	case o.SystemTemplatePath != "":
		b, err := os.ReadFile(o.SystemTemplatePath)
		if err != nil {
			return nil, fmt.Errorf("system template read: %w", err)
		}
		src = string(b)
	}
	tpl, err := template.New("system").Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("system template parse: %w", err)
	}
	return &Builder{sysT: tpl, guidance: strings.TrimSpace(o.Guidance)}, nil
}

var _ contract.PromptBuilder = (*Builder)(nil)

func (b *Builder) system(n int) (string, error) {
	var buf bytes.Buffer
	if err := b.sysT.Execute(&buf, templateData{Delimiter: payload.Delimiter, NewlineEscape: payload.NewlineEscape, Backslash: payload.BackslashEscape, SpanCount: n}); err != nil {
		return "", err
	}
	if b.guidance != "" {
		buf.WriteString("\n\n<guidance>\n")
		buf.WriteString(b.guidance)
		buf.WriteString("\n</guidance>")
	}
	return buf.String(), nil
}

// Build 返回 system + user(载荷原样) + json_schema 三条消息。
func (b *Builder) Build(ctx context.Context, req contract.RewriteRequest) (contract.Prompt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Payload) == "" {
		return nil, fmt.Errorf("prompt: %w: empty payload", contract.ErrInvalidInput)
	}
	sys, err := b.system(req.SpanCount)
	if err != nil {
		return nil, fmt.Errorf("system render: %v: %w", err, contract.ErrInvalidInput)
	}
	return contract.ChatPrompt{
		{Role: "system", Content: sys},
		{Role: "user", Content: req.Payload},
		{Role: "json_schema", Content: JSONSchema},
	}, nil
}

// EstimateOverheadTokens 估算与载荷无关的固定开销（system + schema）。
func (b *Builder) EstimateOverheadTokens(estimate contract.TokenEstimator) int {
	if estimate == nil {
		return 0
	}
	sys, _ := b.system(0)
	return estimate(sys) + estimate(JSONSchema)
}

// JSONSchema 约束响应为 {positive, negative} 两个字符串字段。
const JSONSchema = `{"type":"object","additionalProperties":false,"properties":{"positive":{"type":"string"},"negative":{"type":"string"}},"required":["positive","negative"]}`

const defaultSystemTemplate = `## Role
You rewrite short text segments taken from a word-processor document.
For every segment produce two rewrites: one in a clearly positive tone and one in a clearly negative tone.
Keep the meaning, the language and roughly the length of each segment.

## I/O Protocol (Very Important)
- The user message is a single line of segments joined by the delimiter {{.Delimiter}}.
{{- if gt .SpanCount 0}}
- There are exactly {{.SpanCount}} segments.
{{- end}}
- Line breaks inside a segment are written as the two characters {{.NewlineEscape}}. Keep them where they belong.
- A literal backslash inside a segment is written as {{.Backslash}}. Keep it doubled.
- Rewrite each segment independently. Never merge, split, reorder or drop segments.
- Join your rewritten segments with the same delimiter {{.Delimiter}}, so the segment count is unchanged.
- Return ONLY strict JSON: {"positive": "<segments>", "negative": "<segments>"}. No markdown, no code fences.

<example>
user: The meeting ran long{{.Delimiter}}Sales were flat{{.NewlineEscape}}this quarter
assistant: {"positive": "The meeting allowed thorough discussion{{.Delimiter}}Sales held steady{{.NewlineEscape}}this quarter", "negative": "The meeting dragged on far too long{{.Delimiter}}Sales stagnated{{.NewlineEscape}}this quarter"}
</example>
`
