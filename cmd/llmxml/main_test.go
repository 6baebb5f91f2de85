package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	cfgpkg "llmxml/internal/config"
	"llmxml/internal/diag"
	"llmxml/internal/pipeline"
)

// writeCfg 在当前目录写出 config.json（默认模板 + 修改）。
func writeCfg(t *testing.T, mut func(*cfgpkg.Config)) string {
	t.Helper()
	cfg := cfgpkg.DefaultTemplateConfig()
	cfg.Options.Writer = json.RawMessage(`{"output_dir":"out"}`)
	if mut != nil {
		mut(&cfg)
	}
	b, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile("config.json", b, 0o644))
	return "config.json"
}

func stubRun(t *testing.T, fn func(pipeline.Settings) (pipeline.Summary, error)) *int {
	t.Helper()
	calls := 0
	orig := pipelineRun
	pipelineRun = func(ctx context.Context, comp pipeline.Components, set pipeline.Settings, logger *diag.Logger) (pipeline.Summary, error) {
		calls++
		return fn(set)
	}
	t.Cleanup(func() { pipelineRun = orig })
	return &calls
}

func TestInitConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	require.Equal(t, exitOK, run([]string{"init-config", "tmpl"}))

	b, err := os.ReadFile(filepath.Join("tmpl", "config.json"))
	require.NoError(t, err)
	assert.Equal(t, "mock", gjson.GetBytes(b, "llm").String())
	env, err := os.ReadFile(filepath.Join("tmpl", ".env"))
	require.NoError(t, err)
	assert.Contains(t, string(env), "LLMXML_PROVIDER__anthropic__OPTIONS_JSON=")

	// 已存在时不覆盖
	require.NoError(t, os.WriteFile(filepath.Join("tmpl", "config.json"), []byte("{}"), 0o644))
	require.Equal(t, exitOK, run([]string{"init-config", "tmpl"}))
	b, _ = os.ReadFile(filepath.Join("tmpl", "config.json"))
	assert.Equal(t, "{}", string(b))
}

func TestRunLoadsDefaultConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	writeCfg(t, nil)
	var got pipeline.Settings
	calls := stubRun(t, func(set pipeline.Settings) (pipeline.Summary, error) {
		got = set
		return pipeline.Summary{}, nil
	})
	require.Equal(t, exitOK, run([]string{"--status=false", "--batch-size", "3", "--write-documents=false", "a.xml"}))
	assert.Equal(t, 1, *calls)
	assert.Equal(t, []string{"a.xml"}, got.Inputs)
	assert.Equal(t, 3, got.BatchSize)
	assert.False(t, got.WriteDocuments)
	assert.NotEmpty(t, got.RunID)
}

func TestRunEnvOverridesFileAndFlagsOverrideEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeCfg(t, func(c *cfgpkg.Config) { c.BatchSize = 4 })
	t.Setenv("LLMXML_BATCH_SIZE", "6")
	t.Setenv("LLMXML_MAX_TOKENS", "1000")
	var got pipeline.Settings
	stubRun(t, func(set pipeline.Settings) (pipeline.Summary, error) {
		got = set
		return pipeline.Summary{}, nil
	})
	require.Equal(t, exitOK, run([]string{"--status=false", "--config", path, "--max-tokens", "2000", "-"}))
	assert.Equal(t, 6, got.BatchSize)
	assert.Equal(t, 2000, got.MaxTokens)
}

func TestRunExitCodes(t *testing.T) {
	t.Chdir(t.TempDir())
	writeCfg(t, nil)

	stubRun(t, func(pipeline.Settings) (pipeline.Summary, error) {
		return pipeline.Summary{}, context.DeadlineExceeded
	})
	assert.Equal(t, exitRun, run([]string{"--status=false"}))

	stubRun(t, func(pipeline.Settings) (pipeline.Summary, error) {
		var s pipeline.Summary
		s.Manifest.TotalFiles, s.Manifest.Failed = 2, 1
		return s, nil
	})
	assert.Equal(t, exitPartial, run([]string{"--status=false"}))
}

func TestRunConfigErrors(t *testing.T) {
	t.Chdir(t.TempDir())
	calls := stubRun(t, func(pipeline.Settings) (pipeline.Summary, error) { return pipeline.Summary{}, nil })

	assert.Equal(t, exitConfig, run([]string{"--config", "missing.json"}))

	writeCfg(t, func(c *cfgpkg.Config) { c.LLM = "" })
	assert.Equal(t, exitConfig, run(nil))

	writeCfg(t, func(c *cfgpkg.Config) { c.Options.Reader = json.RawMessage(`{"unknown":1}`) })
	assert.Equal(t, exitConfig, run(nil))

	assert.Equal(t, exitConfig, run([]string{"--no-such-flag"}))
	assert.Equal(t, 0, *calls)
}

func TestRunPreflightRejectsFileAsOutput(t *testing.T) {
	t.Chdir(t.TempDir())
	writeCfg(t, nil)
	require.NoError(t, os.WriteFile("blocker", []byte("x"), 0o644))
	calls := stubRun(t, func(pipeline.Settings) (pipeline.Summary, error) { return pipeline.Summary{}, nil })
	assert.Equal(t, exitConfig, run([]string{"--output", "blocker"}))
	assert.Equal(t, 0, *calls)
}

func TestWithOutput(t *testing.T) {
	b, err := withOutput("fs", json.RawMessage(`{"atomic":true}`), "dist")
	require.NoError(t, err)
	assert.JSONEq(t, `{"atomic":true,"output_dir":"dist"}`, string(b))

	b, err = withOutput("s3", nil, "run-1/")
	require.NoError(t, err)
	assert.JSONEq(t, `{"prefix":"run-1/"}`, string(b))
}

// 真实流水线：mock provider + 文件系统读写 + 指标文件
func TestRunEndToEndWithMock(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeCfg(t, nil)
	require.NoError(t, os.MkdirAll("pages", 0o755))
	require.NoError(t, os.WriteFile(filepath.Join("pages", "p3_main.xml"),
		[]byte(`<P><TEXT TbpeId="1">Nice day</TEXT></P>`), 0o644))

	code := run([]string{"--status=false", "--write-documents", "--metrics-file", "metrics.prom", "pages"})
	require.Equal(t, exitOK, code)

	m, err := os.ReadFile(filepath.Join("out", "manifest.json"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), gjson.GetBytes(m, "succeeded").Int())
	b, err := os.ReadFile(filepath.Join("out", "batch_1.json"))
	require.NoError(t, err)
	assert.Equal(t, "p3", gjson.GetBytes(b, "processed_files.0.page_idx").String())

	pos, err := os.ReadFile(filepath.Join("out", "p3", "p3_main_positive.xml"))
	require.NoError(t, err)
	assert.Equal(t, `<P><TEXT TbpeId="1">POS: Nice day</TEXT></P>`, string(pos))

	prom, err := os.ReadFile("metrics.prom")
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(prom), "llmxml_ops_total"))
}
