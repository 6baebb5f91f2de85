package span

import (
	"fmt"
	"strconv"

	"github.com/beevik/etree"

	"llmxml/internal/diag"
	"llmxml/internal/doctree"
	"llmxml/internal/runtree"
	"llmxml/pkg/contract"
)

// structuredHandler: 文本位于 <TextBody> 内嵌的 run 树。
type structuredHandler struct {
	opts   Options
	trees  *runtree.Cache
	logger *diag.Logger
}

func (h *structuredHandler) tag() string      { return h.opts.StructuredTag }
func (h *structuredHandler) cacheTag() string { return h.opts.StructuredCacheTag }

func (h *structuredHandler) read(id contract.FileID, el *etree.Element) (string, bool) {
	body := doctree.FirstDescendant(el, h.opts.BodyTag)
	if body == nil || body.Text() == "" {
		return "", false
	}
	tree, err := h.trees.Parse(body.Text())
	if err != nil {
		nodeID, _ := doctree.Attr(el, h.opts.IDAttr)
		h.logger.Warn(comp, string(diag.CodeParse), "skip node: "+err.Error(), string(id), map[string]string{"id": nodeID})
		return "", false
	}
	return fuse(tree.Texts()), true
}

func (h *structuredHandler) write(el *etree.Element, text string) error {
	body := doctree.FirstDescendant(el, h.opts.BodyTag)
	if body == nil {
		return fmt.Errorf("%w: <%s> without <%s>", contract.ErrEncodingUnsupported, h.opts.StructuredTag, h.opts.BodyTag)
	}
	raw := body.Text()
	tree, err := h.trees.Parse(raw)
	if err != nil {
		return err
	}
	// 文本未变则保留原 JSON 字节，保证往返一致
	if sameText(fuse(tree.Texts()), text) {
		return nil
	}
	next, err := runtree.RewriteTree(raw, tree, text)
	if err != nil {
		return err
	}
	if isCData(body) {
		body.SetCData(next)
	} else {
		body.SetText(next)
	}
	return nil
}

func isCData(el *etree.Element) bool {
	if len(el.Child) == 0 {
		return false
	}
	cd, ok := el.Child[0].(*etree.CharData)
	return ok && cd.IsCData()
}

// flatHandler: 文本直接为元素内容，优先取内层 <Text>。
type flatHandler struct {
	opts Options
}

func (h *flatHandler) tag() string      { return h.opts.FlatTag }
func (h *flatHandler) cacheTag() string { return h.opts.FlatCacheTag }

func (h *flatHandler) read(_ contract.FileID, el *etree.Element) (string, bool) {
	return h.source(el).Text(), true
}

// source 返回文本所在节点：内层 <Text> 非空时取内层；
// 内层为空而外层有文本时取外层；两者皆空时取内层（若有）。
// 读写共用同一选择。
func (h *flatHandler) source(el *etree.Element) *etree.Element {
	inner := doctree.Child(el, h.opts.InnerTag)
	switch {
	case inner == nil:
		return el
	case inner.Text() != "" || el.Text() == "":
		return inner
	default:
		return el
	}
}

func (h *flatHandler) write(el *etree.Element, text string) error {
	target := h.source(el)
	if !sameText(target.Text(), text) {
		target.SetText(text)
	}
	return nil
}

func itoa(n int) string { return strconv.Itoa(n) }
