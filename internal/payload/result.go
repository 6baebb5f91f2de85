package payload

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"llmxml/pkg/contract"
)

// ParseResult 将客户端原始文本解释为 RewriteResult。
//   - JSON 对象：收集 positive/negative 字符串字段（非字符串视为缺失）；
//   - 其它：退化为裸字符串。
//
// 形态不合规不算错误；仅空响应返回 ErrResponseInvalid。
func ParseResult(raw contract.Raw) (contract.RewriteResult, error) {
	text := stripFence(raw.Text)
	if strings.TrimSpace(text) == "" {
		return contract.RewriteResult{}, fmt.Errorf("%w: empty response", contract.ErrResponseInvalid)
	}
	if !gjson.Valid(text) {
		return contract.RewriteResult{Bare: text}, nil
	}
	v := gjson.Parse(text)
	if !v.IsObject() {
		if v.Type == gjson.String {
			return contract.RewriteResult{Bare: v.String()}, nil
		}
		return contract.RewriteResult{Bare: text}, nil
	}
	res := contract.RewriteResult{Variants: map[contract.Variant]string{}}
	for _, name := range contract.Variants() {
		f := v.Get(string(name))
		if f.Type == gjson.String {
			res.Variants[name] = f.String()
		}
	}
	return res, nil
}

// stripFence 去掉模型常见的 ```json ... ``` 包裹。
func stripFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return s
	}
	if i := strings.IndexByte(t, '\n'); i >= 0 {
		t = t[i+1:]
	} else {
		t = strings.TrimPrefix(t, "```")
	}
	t = strings.TrimSpace(t)
	t = strings.TrimSuffix(t, "```")
	return strings.TrimSpace(t)
}
