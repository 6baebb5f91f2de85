package runtree

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize 为解析缓存的默认容量。
const DefaultCacheSize = 256

// Cache 以原始 JSON 串为键缓存解析结果。
// Tree 解析后只读，可在变体之间共享。
type Cache struct {
	trees *lru.Cache[string, *Tree]
}

// NewCache 构造容量为 size 的缓存；size<=0 时使用默认容量。
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[string, *Tree](size)
	if err != nil {
		// 仅在 size<=0 时出错，上面已排除
		panic(err)
	}
	return &Cache{trees: c}
}

// Parse 命中缓存则直接返回；解析失败不入缓存。nil 接收者退化为直接解析。
func (c *Cache) Parse(raw string) (*Tree, error) {
	if c == nil {
		return Parse(raw)
	}
	if t, ok := c.trees.Get(raw); ok {
		return t, nil
	}
	t, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	c.trees.Add(raw, t)
	return t, nil
}

// Len 返回当前缓存条目数。
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.trees.Len()
}
