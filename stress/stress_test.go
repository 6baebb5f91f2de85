package stress

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	cfgpkg "llmxml/internal/config"
	"llmxml/internal/pipeline"
)

// baseConfig 构造可运行的最小配置（mock provider，不限流）。
func baseConfig(input, outDir string) cfgpkg.Config {
	cfg := cfgpkg.DefaultTemplateConfig()
	cfg.Inputs = []string{input}
	cfg.Logging.Level = "error"
	cfg.MaxTokens = 0
	cfg.LLM = "mock"
	cfg.Provider = map[string]cfgpkg.Provider{
		"mock": {Client: "mock", Options: json.RawMessage(`{"response_mode":"prefix"}`)},
	}
	cfg.Options.Writer = json.RawMessage(fmt.Sprintf(`{"output_dir":%q,"atomic":false}`, outDir))
	return cfg
}

// runPipeline 执行完整流水线。
func runPipeline(cfg cfgpkg.Config) (pipeline.Summary, error) {
	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		return pipeline.Summary{}, err
	}
	return pipeline.Run(context.Background(), comp, set, nil)
}

// page 生成一页含 spans 个文本节点的文档，两种编码形态交替出现。
func page(spans int) string {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<Page>\n")
	for i := 0; i < spans; i++ {
		if i%2 == 0 {
			fmt.Fprintf(&b, `  <SIMPLE_TEXT TbpeId="s%d"><TextBody>{"c":[{"t":"p","c":[{"t":"r","c":["run %d","tail"]}]}]}</TextBody><RenderPos x="%d"/></SIMPLE_TEXT>`+"\n", i, i, i)
		} else {
			fmt.Fprintf(&b, `  <TEXT TbpeId="f%d"><Text>line %d
continued</Text><TextData w="%d"/></TEXT>`+"\n", i, i, i)
		}
	}
	b.WriteString("</Page>\n")
	return b.String()
}

// TestStress 以不同文档数运行流水线并记录延迟统计。
func TestStress(t *testing.T) {
	if testing.Short() {
		t.Skip("stress")
	}
	levels := []int{1, 16, 64}
	for _, docs := range levels {
		t.Run(fmt.Sprintf("documents_%d", docs), func(t *testing.T) {
			const runs = 3
			in := t.TempDir()
			for i := 0; i < docs; i++ {
				name := filepath.Join(in, fmt.Sprintf("p%d_page.xml", i))
				if err := os.WriteFile(name, []byte(page(200)), 0o644); err != nil {
					t.Fatalf("write page: %v", err)
				}
			}
			latencies := make([]time.Duration, 0, runs)
			for i := 0; i < runs; i++ {
				cfg := baseConfig(in, t.TempDir())
				start := time.Now()
				sum, err := runPipeline(cfg)
				dur := time.Since(start)
				if err != nil {
					t.Fatalf("run %d: %v", i, err)
				}
				if sum.Manifest.Succeeded != docs {
					t.Fatalf("run %d: %d/%d succeeded", i, sum.Manifest.Succeeded, docs)
				}
				latencies = append(latencies, dur)
			}
			sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
			var total time.Duration
			for _, d := range latencies {
				total += d
			}
			avg := total / time.Duration(len(latencies))
			idx := int(math.Ceil(float64(len(latencies))*0.95)) - 1
			if idx < 0 {
				idx = 0
			}
			t.Logf("文档%d 平均%v 95%%延迟%v", docs, avg, latencies[idx])
		})
	}
}
