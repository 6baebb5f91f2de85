package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	cfgpkg "llmxml/internal/config"
	"llmxml/internal/diag"
	"llmxml/internal/pipeline"
)

var pipelineRun = pipeline.Run

// shutdownSignals 触发取消：当前文件之后停止，已落盘的清单保留。
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

type rootFlags struct {
	config         string
	llm            string
	output         string
	writeDocuments bool
	batchSize      int
	maxTokens      int
	logLevel       string
	status         bool
	metricsFile    string
}

// newRootCmd 构造根命令；退出码经 code 回传。
// 位置参数为 roots（文件/目录 或 "-" 表示 STDIN，不能与其他根混用）。
func newRootCmd(code *int) *cobra.Command {
	var f rootFlags
	cmd := &cobra.Command{
		Use:           "llmxml [inputs...]",
		Short:         "Rewrite the visible text of XML page documents into positive and negative variants",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			*code = runPipeline(cmd, f, args)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.config, "config", "", "配置文件路径（JSON/YAML）；缺省读取 ./config.json（若存在）")
	fl.StringVar(&f.llm, "llm", "", "provider 名称（覆盖配置）")
	fl.StringVar(&f.output, "output", "", "输出位置（fs: output_dir；s3: prefix）")
	fl.BoolVar(&f.writeDocuments, "write-documents", false, "除清单外另行写出每个变体的 XML 文件")
	fl.IntVar(&f.batchSize, "batch-size", 0, "每个批清单的文件数（覆盖配置）")
	fl.IntVar(&f.maxTokens, "max-tokens", 0, "单次调用 token 预算（覆盖配置）")
	fl.StringVar(&f.logLevel, "log-level", "", "日志级别 debug|info|warn|error（覆盖配置）")
	fl.BoolVar(&f.status, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")
	fl.StringVar(&f.metricsFile, "metrics-file", "", "运行结束后以 textfile 格式写出指标")

	cmd.AddCommand(newInitConfigCmd(code))
	return cmd
}

func newInitConfigCmd(code *int) *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [dir]",
		Short: "Write a template config.json and .env (existing files are kept)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				dir = strings.TrimSpace(args[0])
			}
			*code = initConfig(cmd.ErrOrStderr(), dir)
			return nil
		},
	}
}

func initConfig(stderr io.Writer, dir string) int {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(stderr, "生成默认配置失败: %v\n", err)
		return exitConfig
	}
	if err := writeConfig(filepath.Join(dir, "config.json"), cfgpkg.DefaultTemplateConfig()); err != nil && !errors.Is(err, os.ErrExist) {
		fmt.Fprintf(stderr, "生成默认配置失败: %v\n", err)
		return exitConfig
	}
	if err := writeDotEnv(filepath.Join(dir, ".env")); err != nil {
		fmt.Fprintf(stderr, "提示：.env 生成失败（已跳过）：%v\n", err)
	}
	return exitOK
}

func runPipeline(cmd *cobra.Command, f rootFlags, roots []string) int {
	start := time.Now()
	stderr := cmd.ErrOrStderr()
	corrID := uuid.NewString()
	// 不覆盖已有 ENV
	_ = godotenv.Load()

	cfg, err := resolveConfig(cmd, f, roots)
	if err != nil {
		fmt.Fprintf(stderr, "配置解析失败: %v\n", err)
		return exitConfig
	}
	if err := cfgpkg.Validate(cfg); err != nil {
		fmt.Fprintf(stderr, "配置校验失败: %v\n", err)
		_ = dumpConfig(stderr, cfg)
		return exitConfig
	}

	level := strings.TrimSpace(cfg.Logging.Level)
	if level == "" {
		level = "info"
	}
	logger := diag.NewLogger(corrID, level)
	defer logger.Close()

	if err := preflightCheckOutputDir(cfg); err != nil {
		fmt.Fprintf(stderr, "输出目录不可写或无法创建: %v\n", err)
		logger.Error("pipeline", string(diag.Classify(err)), "preflight failed: "+err.Error(), &start)
		return exitConfig
	}
	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "装配失败: %v\n", err)
		logger.Error("pipeline", string(diag.Classify(err)), "assemble failed: "+err.Error(), &start)
		return exitConfig
	}
	set.RunID = corrID

	term := diag.NewTerminal(stderr, f.status)
	diag.SetTerminal(term)
	defer diag.SetTerminal(nil)
	term.RunStart(len(cfg.Inputs), cfg.LLM)
	logger.DebugStart("config", "effective", "", "", effectiveKV(cfg))

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals...)
	defer stop()

	t := logger.Start("pipeline", "run")
	sum, err := pipelineRun(ctx, comp, set, logger)
	defer writeMetrics(stderr, f.metricsFile)
	if err != nil {
		code := string(diag.Classify(err))
		logger.Error("pipeline", code, "run failed: "+err.Error(), &start)
		diag.IncOp("pipeline", "error", "error")
		diag.IncError("pipeline", code)
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(stderr, "运行失败: %v\n", err)
		}
		term.RunFinish(false, time.Since(start))
		return exitRun
	}
	t.Finish("run", int64(sum.Manifest.TotalFiles))
	diag.ObserveDuration("pipeline", "run", time.Since(start).Milliseconds())
	term.RunFinish(!sum.Failed(), time.Since(start))
	if sum.Failed() {
		diag.IncOp("pipeline", "finish", "partial")
		fmt.Fprintf(stderr, "%d/%d 个文件失败，详见 manifest.json\n", sum.Manifest.Failed, sum.Manifest.TotalFiles)
		return exitPartial
	}
	diag.IncOp("pipeline", "finish", "success")
	return exitOK
}

// resolveConfig 依优先级合并：默认 < 配置文件 < ENV < CLI。
func resolveConfig(cmd *cobra.Command, f rootFlags, roots []string) (cfgpkg.Config, error) {
	path := f.config
	if path == "" {
		path = os.Getenv(cfgpkg.EnvPrefix + "CONFIG_FILE")
	}
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	cfg := cfgpkg.Defaults()
	if path != "" {
		base, err := cfgpkg.LoadFile(path)
		if err != nil {
			return cfg, err
		}
		cfg = cfgpkg.Merge(cfg, base)
	}
	overEnv, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfg, err
	}
	cfg = cfgpkg.Merge(cfg, overEnv)

	var over cfgpkg.Config
	over.LLM = f.llm
	over.BatchSize = f.batchSize
	over.MaxTokens = f.maxTokens
	over.Logging.Level = f.logLevel
	if len(roots) > 0 {
		over.Inputs = roots
	}
	if cmd.Flags().Changed("write-documents") {
		v := f.writeDocuments
		over.WriteDocuments = &v
	}
	cfg = cfgpkg.Merge(cfg, over)

	if strings.TrimSpace(f.output) != "" {
		raw, err := withOutput(writerName(cfg), cfg.Options.Writer, strings.TrimSpace(f.output))
		if err != nil {
			return cfg, err
		}
		cfg.Options.Writer = raw
	}
	return cfg, nil
}

// withOutput 把 --output 写入 writer 选项中对应的键。
func withOutput(writer string, raw json.RawMessage, out string) (json.RawMessage, error) {
	key := "output_dir"
	if writer == "s3" {
		key = "prefix"
	}
	base := []byte(raw)
	if len(strings.TrimSpace(string(base))) == 0 {
		base = []byte(`{}`)
	}
	b, err := sjson.SetBytes(base, key, out)
	if err != nil {
		return nil, fmt.Errorf("writer options: %w", err)
	}
	return b, nil
}

func writerName(cfg cfgpkg.Config) string {
	if w := strings.TrimSpace(cfg.Components.Writer); w != "" {
		return w
	}
	return cfgpkg.Defaults().Components.Writer
}

// effectiveKV 汇总运行时关键配置（不含密钥）。
func effectiveKV(cfg cfgpkg.Config) map[string]string {
	kv := map[string]string{
		"inputs_count":    strconv.Itoa(len(cfg.Inputs)),
		"max_tokens":      strconv.Itoa(cfg.MaxTokens),
		"batch_size":      strconv.Itoa(cfg.BatchSize),
		"write_documents": strconv.FormatBool(cfg.WriteDocumentsEnabled()),
		"llm":             cfg.LLM,
		"reader":          cfg.Components.Reader,
		"prompt_builder":  cfg.Components.PromptBuilder,
		"writer":          writerName(cfg),
	}
	if p, ok := cfg.Provider[cfg.LLM]; ok {
		kv["provider_client"] = p.Client
		for _, k := range []string{"base_url", "model"} {
			if v := gjson.GetBytes(p.Options, k).String(); v != "" {
				kv[k] = v
			}
		}
	}
	return kv
}

func writeMetrics(stderr io.Writer, path string) {
	if strings.TrimSpace(path) == "" {
		return
	}
	if err := diag.WriteMetrics(path); err != nil {
		fmt.Fprintf(stderr, "指标写出失败: %v\n", err)
	}
}

func dumpConfig(w io.Writer, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "有效配置:\n%s\n", b)
	return err
}

// writeConfig 写出配置模板；已存在时返回 os.ErrExist 且不覆盖。
func writeConfig(path string, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if path == "-" {
		_, err = os.Stdout.Write(append(b, '\n'))
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(b, '\n'))
	return err
}

// writeDotEnv 生成 .env 模板（若文件已存在则跳过）。
func writeDotEnv(path string) error {
	var b strings.Builder
	p := cfgpkg.EnvPrefix
	b.WriteString("# llmxml .env 模板（由 init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > 配置文件\n\n")

	b.WriteString("# 配置来源\n")
	b.WriteString(p + "CONFIG_FILE=\n\n")

	b.WriteString("# 运行参数覆盖\n")
	for _, k := range []string{"INPUTS", "MAX_TOKENS", "BYTES_PER_TOKEN", "BATCH_SIZE", "WRITE_DOCUMENTS", "LLM", "LOG_LEVEL"} {
		b.WriteString(p + k + "=\n")
	}
	b.WriteString("\n# 组件选择与选项\n")
	for _, k := range []string{"COMPONENTS_READER", "COMPONENTS_PROMPT_BUILDER", "COMPONENTS_WRITER", "OPTIONS_WRITER_JSON", "OPTIONS_ENGINE_JSON"} {
		b.WriteString(p + k + "=\n")
	}
	for _, name := range []string{"openai", "gemini", "anthropic"} {
		b.WriteString("\n# Provider 覆盖（" + name + "）\n")
		for _, k := range []string{"CLIENT", "LIMITS_RPM", "LIMITS_TPM", "LIMITS_MAX_TOKENS_PER_REQ", "OPTIONS_JSON"} {
			b.WriteString(p + "PROVIDER__" + name + "__" + k + "=\n")
		}
	}
	b.WriteString("\n# 供应商凭据\n")
	b.WriteString("OPENAI_API_KEY=\nGOOGLE_API_KEY=\nANTHROPIC_API_KEY=\n")
	b.WriteString(p + "S3_ACCESS_KEY=\n" + p + "S3_SECRET_KEY=\n")

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	_, err = f.WriteString(b.String())
	return err
}

// preflightCheckOutputDir: 文件系统 Writer 启动前检查输出目录可写性。
// 目录存在时尝试创建并删除临时文件；不存在时改为检查父目录。
func preflightCheckOutputDir(cfg cfgpkg.Config) error {
	if writerName(cfg) != "fs" {
		return nil
	}
	dir := strings.TrimSpace(gjson.GetBytes(cfg.Options.Writer, "output_dir").String())
	if dir == "" {
		// 交给装配阶段按实现自行报错
		return nil
	}
	st, err := os.Stat(dir)
	switch {
	case err == nil && st.IsDir():
		f, err := os.CreateTemp(dir, ".wcheck-*")
		if err != nil {
			return err
		}
		name := f.Name()
		_ = f.Close()
		_ = os.Remove(name)
		return nil
	case err == nil:
		return fmt.Errorf("路径存在但不是目录: %s", dir)
	case !os.IsNotExist(err):
		return err
	}
	parent := filepath.Dir(dir)
	if parent == "" || parent == dir {
		return fmt.Errorf("无法确定父目录: %s", dir)
	}
	pst, err := os.Stat(parent)
	if err != nil {
		return err
	}
	if !pst.IsDir() {
		return fmt.Errorf("父路径不是目录: %s", parent)
	}
	tmpd, err := os.MkdirTemp(parent, ".wcheck-*")
	if err != nil {
		return err
	}
	return os.RemoveAll(tmpd)
}
