// Package manifest 描述批清单 batch_<n>.json 与总清单 manifest.json。
//
// 下游消费方按 page_idx 分目录，并直接从 positive_xml/negative_xml 读取文档内容。
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"llmxml/pkg/contract"
)

// ManifestPath 为总清单的固定工件名。
const ManifestPath = "manifest.json"

// FileEntry 为单个输入文件的处理记录。失败时两个 XML 均为空串。
type FileEntry struct {
	File        string `json:"file"`
	PageIdx     string `json:"page_idx"`
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
	Spans       int    `json:"spans"`
	PositiveXML string `json:"positive_xml"`
	NegativeXML string `json:"negative_xml"`
}

// Batch 对应一个 batch_<n>.json。
type Batch struct {
	BatchIdx       int         `json:"batch_idx"`
	ProcessedFiles []FileEntry `json:"processed_files"`
}

// BatchRef 为总清单中对单个批清单的引用。
type BatchRef struct {
	BatchIdx     int    `json:"batch_idx"`
	Path         string `json:"path"`
	FileCount    int    `json:"file_count"`
	SuccessCount int    `json:"success_count"`
}

// Manifest 为 manifest.json。
type Manifest struct {
	TotalBatches int        `json:"total_batches"`
	TotalFiles   int        `json:"total_files"`
	Succeeded    int        `json:"succeeded"`
	Failed       int        `json:"failed"`
	Batches      []BatchRef `json:"batches"`
}

// PageIndex 取文件名主干中第一个 '_' 之前的部分；没有 '_' 时取整个主干。
func PageIndex(id contract.FileID) string {
	stem := id.Stem()
	if i := strings.IndexByte(stem, '_'); i >= 0 {
		stem = stem[:i]
	}
	if stem == "" {
		return "misc"
	}
	return stem
}

// BatchPath 返回第 n 个批清单（从 1 开始）的工件名。
func BatchPath(n int) string { return fmt.Sprintf("batch_%d.json", n) }

// DocumentPath 返回变体文档的工件名：<page_idx>/<stem>_<variant>.xml。
func DocumentPath(id contract.FileID, v contract.Variant) contract.ArtifactID {
	return contract.ArtifactID(PageIndex(id) + "/" + id.Stem() + "_" + string(v) + ".xml")
}

// SuccessCount 统计批内成功条目数。
func (b *Batch) SuccessCount() int {
	n := 0
	for _, f := range b.ProcessedFiles {
		if f.Success {
			n++
		}
	}
	return n
}

// Collector 按 size 个文件一批累积记录，并编号批次。非并发安全。
type Collector struct {
	size int
	cur  *Batch
	man  Manifest
}

// NewCollector 创建收集器；size<=0 视为 1。
func NewCollector(size int) *Collector {
	if size <= 0 {
		size = 1
	}
	return &Collector{size: size, man: Manifest{Batches: []BatchRef{}}}
}

// Add 追加一条记录；凑满一批时返回该批（已登记到总清单），否则返回 nil。
func (c *Collector) Add(e FileEntry) *Batch {
	if c.cur == nil {
		c.cur = &Batch{BatchIdx: len(c.man.Batches) + 1}
	}
	c.cur.ProcessedFiles = append(c.cur.ProcessedFiles, e)
	if len(c.cur.ProcessedFiles) < c.size {
		return nil
	}
	return c.commit()
}

// Flush 返回未满的最后一批；没有待提交记录时返回 nil。
func (c *Collector) Flush() *Batch {
	if c.cur == nil || len(c.cur.ProcessedFiles) == 0 {
		return nil
	}
	return c.commit()
}

func (c *Collector) commit() *Batch {
	b := c.cur
	c.cur = nil
	ok := b.SuccessCount()
	c.man.Batches = append(c.man.Batches, BatchRef{
		BatchIdx:     b.BatchIdx,
		Path:         BatchPath(b.BatchIdx),
		FileCount:    len(b.ProcessedFiles),
		SuccessCount: ok,
	})
	c.man.TotalBatches = len(c.man.Batches)
	c.man.TotalFiles += len(b.ProcessedFiles)
	c.man.Succeeded += ok
	c.man.Failed += len(b.ProcessedFiles) - ok
	return b
}

// Manifest 返回已提交批次的总清单快照。
func (c *Collector) Manifest() Manifest {
	m := c.man
	m.Batches = append([]BatchRef{}, c.man.Batches...)
	return m
}

// Encode 以两空格缩进编码，不转义 HTML 字符（XML 原样保留）。
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
