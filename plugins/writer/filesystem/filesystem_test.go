package filesystem

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"llmxml/pkg/contract"
)

func noTemp(t *testing.T, dir string) {
	t.Helper()
	filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err == nil && strings.HasPrefix(d.Name(), ".tmp-") {
			t.Fatalf("tmp file not cleaned: %s", p)
		}
		return nil
	})
}

// 原子写入并替换已有内容
func TestWriteAtomicReplaceExisting(t *testing.T) {
	dir := t.TempDir()
	w, err := New(&Options{OutputDir: dir})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for _, v := range []string{"<P>v1</P>", "<P>v2</P>"} {
		if err := w.Write(context.Background(), "12/12_page_positive.xml", bytes.NewBufferString(v)); err != nil {
			t.Fatalf("write %s: %v", v, err)
		}
	}
	b, err := os.ReadFile(filepath.Join(dir, "12", "12_page_positive.xml"))
	if err != nil || string(b) != "<P>v2</P>" {
		t.Fatalf("unexpected file %v %q", err, string(b))
	}
	noTemp(t, dir)
}

// 非原子写入会创建子目录
func TestWriteNonAtomic(t *testing.T) {
	dir := t.TempDir()
	off := false
	w, _ := New(&Options{OutputDir: dir, Atomic: &off})
	if err := w.Write(context.Background(), "sub/manifest.json", bytes.NewBufferString("{}")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "sub", "manifest.json")); err != nil {
		t.Fatalf("file not created")
	}
}

func TestMapPathInvalid(t *testing.T) {
	w, _ := New(&Options{OutputDir: t.TempDir()})
	for _, id := range []string{"../bad", "..", ".", "", "a/../../b"} {
		if _, err := w.mapPath(contract.ArtifactID(id)); !errors.Is(err, contract.ErrPathInvalid) {
			t.Fatalf("id %q expect invalid, got %v", id, err)
		}
	}
	if p, err := w.mapPath("a/./b.xml"); err != nil || !strings.HasSuffix(p, filepath.Join("a", "b.xml")) {
		t.Fatalf("clean path: %q %v", p, err)
	}
}

// TestWriteCtxCancel 上下文取消
func TestWriteCtxCancel(t *testing.T) {
	w, _ := New(&Options{OutputDir: t.TempDir()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Write(ctx, "a.xml", strings.NewReader("data")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expect ctx error, got %v", err)
	}
}

// TestNewInvalid 参数缺失
func TestNewInvalid(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatalf("expect error for nil opts")
	}
	if _, err := New(&Options{OutputDir: "  "}); err == nil {
		t.Fatalf("expect error for empty output dir")
	}
}

type errReader struct{}

func (errReader) Read(p []byte) (int, error) { return 0, errors.New("boom") }

// 拷贝失败时不残留临时文件
func TestWriteAtomicCopyError(t *testing.T) {
	dir := t.TempDir()
	w, _ := New(&Options{OutputDir: dir})
	if err := w.Write(context.Background(), "a.xml", errReader{}); err == nil {
		t.Fatalf("expect copy error")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("temp files left %v", entries)
	}
}

func TestReaderWithCtxCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := readerWithCtx(ctx, strings.NewReader("data"))
	cancel()
	if _, err := r.Read(make([]byte, 1)); err == nil {
		t.Fatalf("expect ctx error")
	}
}
