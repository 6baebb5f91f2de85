// Package doctree 提供文档的不可变快照与显式重建。
//
// 快照持有源字节；每次 Rebuild 都解析出一棵全新、独占的树。
// 两次 Rebuild 的结果之间不共享任何可变状态，变体隔离即依赖于此。
package doctree

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"llmxml/pkg/contract"
)

// Snapshot 为单个文档源字节的不可变快照。
type Snapshot struct {
	id  contract.FileID
	src []byte
}

// NewSnapshot 拷贝 b 构造快照；调用方此后可随意复用 b。
func NewSnapshot(id contract.FileID, b []byte) *Snapshot {
	return &Snapshot{id: id, src: bytes.Clone(b)}
}

// Load 从文件路径读取并构造快照。
func Load(path string) (*Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contract.ErrFileIO, err)
	}
	return &Snapshot{id: contract.NormalizeFileID(path), src: b}, nil
}

func (s *Snapshot) ID() contract.FileID { return s.id }

// Len 返回源字节长度。
func (s *Snapshot) Len() int { return len(s.src) }

// Rebuild 解析源字节为一棵新树。
func (s *Snapshot) Rebuild() (*Document, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.PreserveCData = true
	if err := doc.ReadFromBytes(s.src); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", contract.ErrParseFailure, s.id, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("%w: %s: no root element", contract.ErrParseFailure, s.id)
	}
	// 规范转义：文本只转义 & < >，属性只转义 & < " 与控制空白；
	// 未改动的文档因此可逐字节往返。
	doc.WriteSettings.CanonicalText = true
	doc.WriteSettings.CanonicalAttrVal = true
	return &Document{id: s.id, doc: doc}, nil
}

// Document 为一次 Rebuild 得到的可变树，同一时刻仅由一个步骤持有。
type Document struct {
	id  contract.FileID
	doc *etree.Document
}

func (d *Document) ID() contract.FileID { return d.id }

func (d *Document) Root() *etree.Element { return d.doc.Root() }

// Serialize 将当前树写回字符串。
func (d *Document) Serialize() (string, error) {
	s, err := d.doc.WriteToString()
	if err != nil {
		return "", fmt.Errorf("serialize %s: %w", d.id, err)
	}
	return s, nil
}

// Located 为按文档序定位到的元素及其路径。
type Located struct {
	El   *etree.Element
	Path contract.NodePath
}

// Elements 以文档序（先序深度优先）返回所有本地名为 tag 的元素，含根。
func (d *Document) Elements(tag string) []Located {
	var out []Located
	var walk func(el *etree.Element, path string)
	walk = func(el *etree.Element, path string) {
		if el.Tag == tag {
			out = append(out, Located{El: el, Path: contract.NodePath(path)})
		}
		for i, c := range el.ChildElements() {
			walk(c, path+"/"+strconv.Itoa(i))
		}
	}
	if root := d.doc.Root(); root != nil {
		walk(root, "/0")
	}
	return out
}

// FirstDescendant 返回 el 之下（不含自身）文档序第一个本地名为 tag 的元素。
func FirstDescendant(el *etree.Element, tag string) *etree.Element {
	for _, c := range el.ChildElements() {
		if c.Tag == tag {
			return c
		}
		if f := FirstDescendant(c, tag); f != nil {
			return f
		}
	}
	return nil
}

// Child 返回第一个本地名为 tag 的直接子元素。
func Child(el *etree.Element, tag string) *etree.Element {
	for _, c := range el.ChildElements() {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

// Attr 读取属性；ok=false 表示属性不存在。
func Attr(el *etree.Element, key string) (string, bool) {
	a := el.SelectAttr(key)
	if a == nil {
		return "", false
	}
	return a.Value, true
}

// RemoveChildren 删除 el 下所有本地名为 tag 的直接子元素，返回删除个数。
// 紧邻其前的纯空白文本一并删除，避免缩进留下空行。
func RemoveChildren(el *etree.Element, tag string) int {
	n := 0
	for i := 0; i < len(el.Child); {
		c, ok := el.Child[i].(*etree.Element)
		if !ok || c.Tag != tag {
			i++
			continue
		}
		el.RemoveChildAt(i)
		n++
		if i > 0 {
			if cd, ok := el.Child[i-1].(*etree.CharData); ok && strings.TrimSpace(cd.Data) == "" {
				el.RemoveChildAt(i - 1)
				i--
			}
		}
	}
	return n
}
