// Package rate 提供按凭据分组的 RPM/TPM 令牌桶闸门，外部改写调用前等待放行。
package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"llmxml/pkg/contract"
)

// LimitKey: 限流分组键（client + 凭据摘要）。
type LimitKey string

// Limits: 每分组的限额配置。0 表示该维度不启用。
type Limits struct {
	RPM             int // requests per minute
	TPM             int // tokens per minute
	MaxTokensPerReq int // 单次请求 token 上限，0 表示不限制
}

// Ask: 一次放行申请。
type Ask struct {
	Key      LimitKey
	Requests int // 必须 >=1
	Tokens   int // 预计 token（>=0）
}

// Gate: 限流闸门（并发安全）。
type Gate interface {
	// Wait: 阻塞直到额度可用或 ctx 取消；超过单请求上限时快速失败。
	Wait(ctx context.Context, a Ask) error
	// Try: 非阻塞尝试；不足时返回 false。
	Try(a Ask) bool
	// Available: 当前可用请求/令牌数（向下取整，仅诊断）。
	Available(key LimitKey) (requests, tokens int)
}

// NewGate: 从静态配置构造闸门；clk 为空则使用 time.Now。
func NewGate(m map[LimitKey]Limits, clk func() time.Time) Gate {
	if clk == nil {
		clk = time.Now
	}
	g := &gate{clk: clk, m: make(map[LimitKey]*entry, len(m))}
	now := clk()
	for k, lim := range m {
		g.m[k] = newEntry(lim, now)
	}
	return g
}

type gate struct {
	clk func() time.Time
	mu  sync.Mutex
	m   map[LimitKey]*entry
}

type entry struct {
	mu  sync.Mutex
	lim Limits
	req bucket
	tok bucket
}

// bucket 为按分钟回填的令牌桶；cap==0 表示关闭。
type bucket struct {
	cap   float64
	level float64
	last  time.Time
}

func newEntry(lim Limits, now time.Time) *entry {
	return &entry{
		lim: lim,
		req: bucket{cap: float64(max(lim.RPM, 0)), level: float64(max(lim.RPM, 0)), last: now},
		tok: bucket{cap: float64(max(lim.TPM, 0)), level: float64(max(lim.TPM, 0)), last: now},
	}
}

func (b *bucket) refill(now time.Time) {
	// 时钟回拨视为无时间流逝
	if b.cap == 0 || !now.After(b.last) {
		return
	}
	b.level = min(b.cap, b.level+now.Sub(b.last).Seconds()*b.cap/60)
	b.last = now
}

func (b *bucket) ok(n int) bool { return b.cap == 0 || n <= 0 || b.level >= float64(n) }

func (b *bucket) take(n int) {
	if b.cap > 0 && n > 0 {
		b.level = max(0, b.level-float64(n))
	}
}

// wait 返回攒够 n 还需的时长。
func (b *bucket) wait(n int) time.Duration {
	if b.ok(n) {
		return 0
	}
	return time.Duration((float64(n) - b.level) / (b.cap / 60) * float64(time.Second))
}

func (b *bucket) avail() int {
	if b.cap == 0 {
		return 0
	}
	return int(min(max(b.level, 0), b.cap))
}

func (g *gate) get(key LimitKey) *entry {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.m[key]
	if e == nil {
		// 未配置的 key 视为不限额
		e = newEntry(Limits{}, g.clk())
		g.m[key] = e
	}
	return e
}

func (g *gate) check(a Ask) (*entry, error) {
	if a.Requests <= 0 || a.Tokens < 0 {
		return nil, contract.ErrInvalidInput
	}
	e := g.get(a.Key)
	if e.lim.MaxTokensPerReq > 0 && a.Tokens > e.lim.MaxTokensPerReq {
		return nil, fmt.Errorf("%w: %d tokens over per-request limit %d", contract.ErrBudgetExceeded, a.Tokens, e.lim.MaxTokensPerReq)
	}
	return e, nil
}

// acquire 尝试扣减；失败时返回需等待的时长。
func (g *gate) acquire(e *entry, a Ask) (bool, time.Duration) {
	now := g.clk()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.req.refill(now)
	e.tok.refill(now)
	if e.req.ok(a.Requests) && e.tok.ok(a.Tokens) {
		e.req.take(a.Requests)
		e.tok.take(a.Tokens)
		return true, 0
	}
	return false, max(e.req.wait(a.Requests), e.tok.wait(a.Tokens))
}

func (g *gate) Try(a Ask) bool {
	e, err := g.check(a)
	if err != nil {
		return false
	}
	ok, _ := g.acquire(e, a)
	return ok
}

func (g *gate) Wait(ctx context.Context, a Ask) error {
	e, err := g.check(a)
	if err != nil {
		return err
	}
	// 最小睡眠粒度，避免忙等
	const minSleep = 10 * time.Millisecond
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, d := g.acquire(e, a)
		if ok {
			return nil
		}
		if err := sleepCtx(ctx, max(d+minSleep, minSleep)); err != nil {
			return err
		}
	}
}

// sleepCtx 以最多 200ms 的步长睡眠，及时响应取消。
func sleepCtx(ctx context.Context, d time.Duration) error {
	const step = 200 * time.Millisecond
	for d > 0 {
		s := min(d, step)
		t := time.NewTimer(s)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		d -= s
	}
	return nil
}

func (g *gate) Available(key LimitKey) (requests, tokens int) {
	e := g.get(key)
	now := g.clk()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.req.refill(now)
	e.tok.refill(now)
	return e.req.avail(), e.tok.avail()
}
