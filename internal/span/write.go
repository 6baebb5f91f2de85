package span

import (
	"errors"
	"sort"
	"strings"

	"llmxml/internal/diag"
	"llmxml/internal/doctree"
	"llmxml/pkg/contract"
)

// Report 汇总一次写回。
type Report struct {
	Updated       int      // 写回的节点数（同一标识可命中多个节点）
	CachesRemoved int      // 删除的渲染缓存子树数
	Skipped       int      // 命中但因解析失败/形态不支持而跳过的节点数
	Dropped       int      // 无标识而无法寻址的对齐项数
	Unmatched     []string // 未命中任何节点的标识（升序）
}

// Write 将对齐结果写回 doc（就地修改）。
//   - 以标识建表，重复标识后写覆盖先写；无标识项丢弃；
//   - 同一标识命中的所有节点都会更新；
//   - 写回后删除该节点的渲染缓存；未命中的节点连同其缓存保持不动。
func (e *Engine) Write(doc *doctree.Document, spans []contract.ReconciledSpan) Report {
	var rep Report
	texts := make(map[string]string, len(spans))
	for _, s := range spans {
		if !s.HasID {
			rep.Dropped++
			continue
		}
		texts[s.ID] = s.Text
	}
	matched := make(map[string]bool, len(texts))
	fileID := string(doc.ID())

	for _, enc := range contract.Encodings() {
		h := e.handlers[enc]
		for _, loc := range doc.Elements(h.tag()) {
			id, ok := doctree.Attr(loc.El, e.opts.IDAttr)
			if !ok {
				continue
			}
			text, ok := texts[id]
			if !ok {
				continue
			}
			matched[id] = true
			if err := h.write(loc.El, text); err != nil {
				rep.Skipped++
				code := diag.CodeParse
				if errors.Is(err, contract.ErrEncodingUnsupported) {
					code = diag.CodeUnsupported
				}
				e.logger.Warn(comp, string(code), "write skipped: "+err.Error(), fileID,
					map[string]string{"id": id, "encoding": enc.String(), "node": string(loc.Path)})
				continue
			}
			rep.Updated++
			rep.CachesRemoved += doctree.RemoveChildren(loc.El, h.cacheTag())
		}
	}

	for id := range texts {
		if !matched[id] {
			rep.Unmatched = append(rep.Unmatched, id)
		}
	}
	sort.Strings(rep.Unmatched)
	if len(rep.Unmatched) > 0 {
		e.logger.Warn(comp, string(diag.CodeUnsupported), "identifiers matched no node", fileID,
			map[string]string{"ids": strings.Join(rep.Unmatched, ",")})
	}
	return rep
}
