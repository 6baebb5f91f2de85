package span

import (
	"strings"

	"llmxml/internal/doctree"
	"llmxml/internal/payload"
	"llmxml/pkg/contract"
)

// Locate 按固定顺序抽取 span：先全部 StructuredText（文档序），再全部 FlatText（文档序）。
// 空白文本的节点不产生 span，以免出站后被丢弃造成位置错位。
func (e *Engine) Locate(doc *doctree.Document) []contract.Span {
	var out []contract.Span
	for _, enc := range contract.Encodings() {
		h := e.handlers[enc]
		for _, loc := range doc.Elements(h.tag()) {
			text, ok := h.read(doc.ID(), loc.El)
			if !ok || strings.TrimSpace(text) == "" {
				continue
			}
			id, has := doctree.Attr(loc.El, e.opts.IDAttr)
			out = append(out, contract.Span{
				ID:       id,
				HasID:    has,
				Text:     payload.Escape(text),
				Raw:      payload.NormalizeNewlines(text),
				Encoding: enc,
				Node:     loc.Path,
			})
		}
	}
	e.logger.DebugStart(comp, "located", string(doc.ID()), "", map[string]string{"spans": itoa(len(out))})
	return out
}
