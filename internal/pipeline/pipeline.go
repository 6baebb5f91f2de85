// Package pipeline 逐个文件驱动 读取 → 变体编排 → 写出文档 → 批清单 的完整流程。
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"llmxml/internal/diag"
	"llmxml/internal/doctree"
	"llmxml/internal/manifest"
	"llmxml/internal/rate"
	"llmxml/internal/span"
	"llmxml/internal/variant"
	"llmxml/pkg/contract"
)

// - 顺序处理：文件之间、变体之间都不并发。
// - 单文件失败只记录到清单，不中断整体；清单写出失败与 ctx 取消才会中止。
// - 每篇文档至多一次外部调用，无重试。

// Components 聚合运行所需的外部组件。
type Components struct {
	Reader        contract.Reader
	PromptBuilder contract.PromptBuilder
	LLM           contract.LLMClient
	Writer        contract.Writer
}

// Settings 运行期配置。
type Settings struct {
	Inputs []string
	// MaxTokens<=0 关闭单次调用预算检查。
	MaxTokens     int
	BytesPerToken int
	// BatchSize 每个 batch_<n>.json 的文件数（<=0 取 10）。
	BatchSize int
	// WriteDocuments 为 true 时另行写出 <page_idx>/<stem>_<variant>.xml。
	WriteDocuments bool
	Engine         span.Options
	// Gate 可选；非空时每次外部调用前等待放行。
	Gate    rate.Gate
	GateKey rate.LimitKey
	// RunID 为空时自动生成。
	RunID string
}

// Summary 为一次运行的结果。
type Summary struct {
	RunID    string
	Manifest manifest.Manifest
}

// Failed 报告是否有文件失败。
func (s Summary) Failed() bool { return s.Manifest.Failed > 0 }

const defaultBatchSize = 10

// Run 执行完整流程。返回错误仅表示运行级失败（组件缺失、读取器失败、清单写出失败、取消）。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (Summary, error) {
	if err := sanity(comp, set); err != nil {
		return Summary{}, fmt.Errorf("sanity: %w", err)
	}
	if set.BatchSize <= 0 {
		set.BatchSize = defaultBatchSize
	}
	sum := Summary{RunID: set.RunID}
	if sum.RunID == "" {
		sum.RunID = uuid.NewString()
	}

	engine := span.New(set.Engine, logger)
	orch := &variant.Orchestrator{
		Engine:   engine,
		Rewriter: &runner{comp: comp, set: set, logger: logger},
		Logger:   logger,
	}
	col := manifest.NewCollector(set.BatchSize)

	rtimer := logger.StartWithKV("reader", "iterate", "", "", map[string]string{
		"run_id": sum.RunID,
		"inputs": strconv.Itoa(len(set.Inputs)),
	})
	files := 0
	err := comp.Reader.Iterate(ctx, set.Inputs, func(fid contract.FileID, rc io.ReadCloser) error {
		if err := ctx.Err(); err != nil {
			_ = rc.Close()
			return err
		}
		files++
		entry := processFile(ctx, comp, set, orch, fid, rc, logger)
		if b := col.Add(entry); b != nil {
			if err := writeJSON(ctx, comp.Writer, manifest.BatchPath(b.BatchIdx), b, logger); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		code := diag.Classify(err)
		logger.Error("reader", string(code), "iterate failed: "+err.Error(), nil)
		diag.IncOp("reader", "error", "error")
		diag.IncError("reader", string(code))
		sum.Manifest = col.Manifest()
		return sum, fmt.Errorf("reader iterate: %w", err)
	}
	rtimer.Finish("iterate", int64(files))
	diag.IncOp("reader", "finish", "success")

	if b := col.Flush(); b != nil {
		if err := writeJSON(ctx, comp.Writer, manifest.BatchPath(b.BatchIdx), b, logger); err != nil {
			sum.Manifest = col.Manifest()
			return sum, err
		}
	}
	sum.Manifest = col.Manifest()
	if err := writeJSON(ctx, comp.Writer, manifest.ManifestPath, sum.Manifest, logger); err != nil {
		return sum, err
	}
	return sum, nil
}

// processFile 处理单个文件；任何失败都折叠进返回的清单条目。
func processFile(ctx context.Context, comp Components, set Settings, orch *variant.Orchestrator, fid contract.FileID, rc io.ReadCloser, logger *diag.Logger) manifest.FileEntry {
	entry := manifest.FileEntry{File: string(fid), PageIdx: manifest.PageIndex(fid)}
	t0 := time.Now()
	diag.GetTerminal().FileStart(string(fid))
	ftimer := logger.StartWith("pipeline", "file", string(fid), "")
	defer func() {
		dur := time.Since(t0)
		diag.GetTerminal().FileFinish(entry.Success, entry.Spans, dur)
		diag.ObserveDuration("pipeline", "file", dur.Milliseconds())
		result := "success"
		if !entry.Success {
			result = "error"
		}
		diag.IncOp("pipeline", "file", result)
		ftimer.Finish("file", int64(entry.Spans))
	}()

	src, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return failEntry(entry, fmt.Errorf("%w: read %s: %v", contract.ErrFileIO, fid, err), logger, true)
	}

	out := orch.Process(ctx, doctree.NewSnapshot(fid, src))
	entry.Spans = out.Spans
	if out.Err != nil {
		// 编排器已记录该错误
		return failEntry(entry, out.Err, logger, false)
	}
	entry.PositiveXML = out.Output(contract.Positive)
	entry.NegativeXML = out.Output(contract.Negative)

	if set.WriteDocuments {
		for _, v := range contract.Variants() {
			id := manifest.DocumentPath(fid, v)
			wtimer := logger.StartWith("writer", "write", string(id), "")
			if err := comp.Writer.Write(ctx, id, strings.NewReader(out.Output(v))); err != nil {
				entry.PositiveXML, entry.NegativeXML = "", ""
				return failEntry(entry, fmt.Errorf("%w: write %s: %w", contract.ErrFileIO, id, err), logger, true)
			}
			wtimer.Finish("write", 1)
			diag.IncOp("writer", "finish", "success")
		}
	}
	entry.Success = true
	return entry
}

func failEntry(e manifest.FileEntry, err error, logger *diag.Logger, log bool) manifest.FileEntry {
	e.Success = false
	e.Error = err.Error()
	if log {
		code := diag.Classify(err)
		logger.ErrorWith("pipeline", string(code), e.Error, nil, e.File, "")
		diag.IncError("pipeline", string(code))
	}
	return e
}

func writeJSON(ctx context.Context, w contract.Writer, id string, v any, logger *diag.Logger) error {
	b, err := manifest.Encode(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", id, err)
	}
	wtimer := logger.StartWith("writer", "write", id, "")
	if err := w.Write(ctx, contract.ArtifactID(id), bytes.NewReader(b)); err != nil {
		code := diag.Classify(err)
		logger.ErrorWith("writer", string(code), "write failed: "+err.Error(), nil, id, "")
		diag.IncOp("writer", "error", "error")
		diag.IncError("writer", string(code))
		return fmt.Errorf("writer write %s: %w", id, err)
	}
	wtimer.Finish("write", int64(len(b)))
	diag.IncOp("writer", "finish", "success")
	return nil
}

func sanity(c Components, s Settings) error {
	if c.Reader == nil || c.PromptBuilder == nil || c.LLM == nil || c.Writer == nil {
		return errors.New("pipeline: missing components")
	}
	if len(s.Inputs) == 0 {
		return errors.New("pipeline: empty inputs")
	}
	return nil
}
