// Package runtree 建模 StructuredText 节点内嵌的 run 树（JSON 串）。
//
// 支持的形态：
//   - Run：{"t":"r","c":[...]}，c 中的字符串为原子文本（Leaf）；
//   - Container：其它带数组/对象 c 的对象，或顶层数组，递归进入；
//   - Opaque：其余一切，保留原样，不参与抽取与改写。
package runtree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"llmxml/pkg/contract"
)

const (
	typeField    = "t"
	runMarker    = "r"
	contentField = "c"
)

// Node 为 run 树节点（Leaf | Run | Container | Opaque）。
type Node interface {
	// Path 为该节点在原始 JSON 中的 gjson/sjson 路径；根为空串。
	Path() string
}

type Leaf struct {
	At   string
	Text string
}

type Run struct {
	At       string
	Contents []Node // Leaf 或 Opaque
}

type Container struct {
	At       string
	Children []Node
}

type Opaque struct {
	At string
}

func (l *Leaf) Path() string      { return l.At }
func (r *Run) Path() string       { return r.At }
func (c *Container) Path() string { return c.At }
func (o *Opaque) Path() string    { return o.At }

// Tree 为解析后的只读树。
type Tree struct {
	Root Node
}

// Parse 解析内嵌 JSON；非法 JSON 返回 ErrParseFailure。
func Parse(raw string) (*Tree, error) {
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("%w: embedded run tree is not valid json", contract.ErrParseFailure)
	}
	return &Tree{Root: build(gjson.Parse(raw), "")}, nil
}

func join(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

func build(v gjson.Result, at string) Node {
	switch {
	case v.IsArray():
		c := &Container{At: at}
		for i, e := range v.Array() {
			c.Children = append(c.Children, build(e, join(at, strconv.Itoa(i))))
		}
		return c
	case v.IsObject():
		content := v.Get(contentField)
		cAt := join(at, contentField)
		if v.Get(typeField).String() == runMarker && content.IsArray() {
			r := &Run{At: at}
			for i, e := range content.Array() {
				p := join(cAt, strconv.Itoa(i))
				if e.Type == gjson.String {
					r.Contents = append(r.Contents, &Leaf{At: p, Text: e.String()})
				} else {
					r.Contents = append(r.Contents, &Opaque{At: p})
				}
			}
			return r
		}
		if content.IsArray() || content.IsObject() {
			c := &Container{At: at}
			child := build(content, cAt)
			if cc, ok := child.(*Container); ok && content.IsArray() {
				c.Children = cc.Children
			} else {
				c.Children = []Node{child}
			}
			return c
		}
		return &Opaque{At: at}
	default:
		return &Opaque{At: at}
	}
}

// walk 先序深度优先遍历。
func walk(n Node, fn func(Node)) {
	fn(n)
	switch t := n.(type) {
	case *Run:
		for _, c := range t.Contents {
			walk(c, fn)
		}
	case *Container:
		for _, c := range t.Children {
			walk(c, fn)
		}
	}
}

// Texts 返回所有 run 内的文本，按先序。
func (t *Tree) Texts() []string {
	var out []string
	walk(t.Root, func(n Node) {
		if l, ok := n.(*Leaf); ok {
			out = append(out, l.Text)
		}
	})
	return out
}

// Runs 返回所有 run，按先序；旧版多嵌套一层的布局同样覆盖。
func (t *Tree) Runs() []*Run {
	var out []*Run
	walk(t.Root, func(n Node) {
		if r, ok := n.(*Run); ok {
			out = append(out, r)
		}
	})
	return out
}

// Opaques 返回未被识别的节点数（诊断用）。
func (t *Tree) Opaques() int {
	n := 0
	walk(t.Root, func(x Node) {
		if _, ok := x.(*Opaque); ok {
			n++
		}
	})
	return n
}

// Rewrite 将首个 run 的内容替换为 [text]，其后各 run 的内容清空为 []。
// 其余字节保持原样。
func Rewrite(raw, text string) (string, error) {
	tree, err := Parse(raw)
	if err != nil {
		return "", err
	}
	return RewriteTree(raw, tree, text)
}

// RewriteTree 同 Rewrite，复用已解析的 tree（须由 raw 解析而来）。
func RewriteTree(raw string, tree *Tree, text string) (string, error) {
	runs := tree.Runs()
	if len(runs) == 0 {
		return "", fmt.Errorf("%w: no text run in embedded tree", contract.ErrEncodingUnsupported)
	}
	enc, err := marshalList(text)
	if err != nil {
		return "", err
	}
	out := raw
	for i, r := range runs {
		val := "[]"
		if i == 0 {
			val = enc
		}
		out, err = sjson.SetRaw(out, join(r.At, contentField), val)
		if err != nil {
			return "", fmt.Errorf("rewrite run %d: %w", i, err)
		}
	}
	return out, nil
}

// marshalList 编码 ["text"]，不转义 HTML 字符，保持非 ASCII 原样。
func marshalList(text string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode([]string{text}); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
