package diag

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	logPrefix   = "llmxml-"
	currentName = logPrefix + "current.txt"
	// 默认保留的历史文件数
	defaultBackups = 5
)

// RotatingFile 是按大小轮转的日志文件，实现 zapcore.WriteSyncer。
// 当前文件固定为 llmxml-current.txt；超过 maxBytes 时改名为 llmxml-<ts>.txt，
// 并只保留最近 backups 个历史文件。
type RotatingFile struct {
	dir      string
	maxBytes int64
	backups  int

	mu      sync.Mutex
	f       *os.File
	curSize int64
}

func NewRotatingFile(dir string, maxBytes int64) *RotatingFile {
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}
	return &RotatingFile{dir: dir, maxBytes: maxBytes, backups: defaultBackups}
}

// WithBackups 设置保留的历史文件数；n<=0 表示不清理。
func (w *RotatingFile) WithBackups(n int) *RotatingFile {
	w.mu.Lock()
	w.backups = n
	w.mu.Unlock()
	return w
}

// Write 整块写入；zap 每次交付一条完整事件。
func (w *RotatingFile) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.open(); err != nil {
		return 0, err
	}
	if w.curSize > 0 && w.curSize+int64(len(p)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.f.Write(p)
	w.curSize += int64(n)
	return n, err
}

// WriteLine 写入一行（自动补换行）。
func (w *RotatingFile) WriteLine(b []byte) error {
	_, err := w.Write(append(b, '\n'))
	return err
}

func (w *RotatingFile) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	return w.f.Sync()
}

func (w *RotatingFile) open() error {
	if w.f != nil {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(w.dir, currentName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w.f = f
	w.curSize = 0
	if st, err := f.Stat(); err == nil {
		w.curSize = st.Size()
	}
	return nil
}

func (w *RotatingFile) rotate() error {
	if w.f == nil {
		return w.open()
	}
	cur := w.f.Name()
	_ = w.f.Close()
	w.f = nil
	// 纳秒时间戳，同秒多次轮转不互相覆盖
	ts := time.Now().UTC().Format("20060102-150405.000000000")
	if err := os.Rename(cur, filepath.Join(w.dir, fmt.Sprintf("%s%s.txt", logPrefix, ts))); err != nil {
		return fmt.Errorf("rename rotated file: %w", err)
	}
	w.prune()
	return w.open()
}

// prune 删除超出保留数的最旧历史文件；失败忽略。
func (w *RotatingFile) prune() {
	if w.backups <= 0 {
		return
	}
	ents, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	var old []string
	for _, e := range ents {
		n := e.Name()
		if e.IsDir() || n == currentName || !strings.HasPrefix(n, logPrefix) || !strings.HasSuffix(n, ".txt") {
			continue
		}
		old = append(old, n)
	}
	if len(old) <= w.backups {
		return
	}
	// 时间戳定宽，字典序即时间序
	sort.Strings(old)
	for _, n := range old[:len(old)-w.backups] {
		_ = os.Remove(filepath.Join(w.dir, n))
	}
}

func (w *RotatingFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}
