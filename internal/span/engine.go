// Package span 定位文档中的可改写文本单元，并将对齐后的文本写回。
//
// 两种遗留编码以标签联合 contract.Encoding 区分，
// 每个标签对应一个 handler，Locate/Write 只做一次分派。
package span

import (
	"strings"

	"github.com/beevik/etree"

	"llmxml/internal/diag"
	"llmxml/internal/runtree"
	"llmxml/pkg/contract"
)

const comp = "span"

// handler 为单一编码形态的读写实现。
type handler interface {
	// tag 为该形态的承载元素名。
	tag() string
	// cacheTag 为挂在承载元素下的渲染缓存元素名。
	cacheTag() string
	// read 返回元素当前的规范化文本；ok=false 表示跳过该元素。
	read(id contract.FileID, el *etree.Element) (text string, ok bool)
	// write 将 text 写入元素；不删除缓存。
	write(el *etree.Element, text string) error
}

// Engine 持有两种形态的 handler 与共享的只读解析缓存。
type Engine struct {
	opts     Options
	trees    *runtree.Cache
	logger   *diag.Logger
	handlers map[contract.Encoding]handler
}

// New 构造引擎；logger 可为 nil。
func New(opts Options, logger *diag.Logger) *Engine {
	opts = opts.withDefaults()
	e := &Engine{opts: opts, trees: runtree.NewCache(opts.TreeCacheSize), logger: logger}
	e.handlers = map[contract.Encoding]handler{
		contract.StructuredText: &structuredHandler{opts: opts, trees: e.trees, logger: logger},
		contract.FlatText:       &flatHandler{opts: opts},
	}
	return e
}

// Options 返回生效的选项（已填默认）。
func (e *Engine) Options() Options { return e.opts }

// fuse 合并同一节点内的 run 文本：以空格连接，并把不换行空格替换为普通空格。
func fuse(texts []string) string {
	return strings.ReplaceAll(strings.Join(texts, " "), "\u00a0", " ")
}

// sameText 判断写回文本与当前文本是否等价（忽略首尾空白）。
func sameText(current, next string) bool {
	return strings.TrimSpace(current) == strings.TrimSpace(next)
}
