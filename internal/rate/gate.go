package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"llmseg/internal/prompt"
	"llmseg/pkg/contract"
)

// LimitKey: 限流分组键（见 KeyFor）。
type LimitKey string

// Limits: 每分组限额；0 表示该维度不启用。
type Limits struct {
	RPM             int
	TPM             int
	MaxTokensPerReq int
}

// Ask: 一次放行申请。
type Ask struct {
	Key      LimitKey
	Requests int
	Tokens   int
}

// Gate: RPM/TPM 双令牌桶闸门（并发安全）。
// 未配置的 key 不限额。
type Gate struct {
	clk func() time.Time
	mu  sync.Mutex
	m   map[LimitKey]*entry
}

// NewGate 从静态配置构造；clk 为空则使用 time.Now。
func NewGate(m map[LimitKey]Limits, clk func() time.Time) *Gate {
	if clk == nil {
		clk = time.Now
	}
	g := &Gate{clk: clk, m: make(map[LimitKey]*entry, len(m))}
	now := clk()
	for k, lim := range m {
		g.m[k] = newEntry(lim, now)
	}
	return g
}

type entry struct {
	mu  sync.Mutex
	lim Limits
	req bucket
	tok bucket
}

// bucket: 每分钟 cap 个单位匀速回填；cap=0 表示关闭。
type bucket struct {
	cap   float64
	level float64
	last  time.Time
}

func newEntry(lim Limits, now time.Time) *entry {
	return &entry{
		lim: lim,
		req: bucket{cap: float64(lim.RPM), level: float64(lim.RPM), last: now},
		tok: bucket{cap: float64(lim.TPM), level: float64(lim.TPM), last: now},
	}
}

func (b *bucket) refill(now time.Time) {
	// 时钟回拨视为无时间流逝
	if b.cap <= 0 || !now.After(b.last) {
		return
	}
	b.level += now.Sub(b.last).Minutes() * b.cap
	if b.level > b.cap {
		b.level = b.cap
	}
	b.last = now
}

// deficit 返回还需等待的时长；0 表示可立即取用。
func (b *bucket) deficit(n int) time.Duration {
	if b.cap <= 0 || n <= 0 {
		return 0
	}
	short := float64(n) - b.level
	if short <= 0 {
		return 0
	}
	return time.Duration(short / b.cap * float64(time.Minute))
}

func (b *bucket) take(n int) {
	if b.cap <= 0 {
		return
	}
	b.level -= float64(n)
}

func (g *Gate) get(key LimitKey) *entry {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.m[key]
	if e == nil {
		e = newEntry(Limits{}, g.clk())
		g.m[key] = e
	}
	return e
}

func (g *Gate) check(a Ask) (*entry, error) {
	if a.Requests <= 0 || a.Tokens < 0 {
		return nil, fmt.Errorf("%w: bad rate ask %+v", contract.ErrInvalidConfiguration, a)
	}
	e := g.get(a.Key)
	if e.lim.MaxTokensPerReq > 0 && a.Tokens > e.lim.MaxTokensPerReq {
		return nil, fmt.Errorf("%w: request needs ~%d tokens, limit %d", contract.ErrOverBudget, a.Tokens, e.lim.MaxTokensPerReq)
	}
	if e.lim.TPM > 0 && a.Tokens > e.lim.TPM {
		return nil, fmt.Errorf("%w: request needs ~%d tokens, tpm %d", contract.ErrOverBudget, a.Tokens, e.lim.TPM)
	}
	return e, nil
}

// acquire 尝试取用；失败时返回需等待的时长。
func (e *entry) acquire(a Ask, now time.Time) (bool, time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.req.refill(now)
	e.tok.refill(now)
	wait := e.req.deficit(a.Requests)
	if w := e.tok.deficit(a.Tokens); w > wait {
		wait = w
	}
	if wait > 0 {
		return false, wait
	}
	e.req.take(a.Requests)
	e.tok.take(a.Tokens)
	return true, 0
}

// Try 非阻塞尝试；额度不足或申请非法时返回 false。
func (g *Gate) Try(a Ask) bool {
	e, err := g.check(a)
	if err != nil {
		return false
	}
	ok, _ := e.acquire(a, g.clk())
	return ok
}

// Wait 阻塞直到额度可用或 ctx 取消；超出单请求上限时快速失败。
func (g *Gate) Wait(ctx context.Context, a Ask) error {
	e, err := g.check(a)
	if err != nil {
		return err
	}
	const minSleep = 10 * time.Millisecond
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, wait := e.acquire(a, g.clk())
		if ok {
			return nil
		}
		if wait < minSleep {
			wait = minSleep
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Snapshot 返回当前可用请求/令牌（向下取整，仅诊断）。
func (g *Gate) Snapshot(key LimitKey) (rpmAvail, tpmAvail int) {
	e := g.get(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	now := g.clk()
	e.req.refill(now)
	e.tok.refill(now)
	return int(e.req.level), int(e.tok.level)
}

// Gated: 在每次补全调用前经过闸门的能力装饰器。
// 超出单请求或 TPM 上限的会话以 ErrOverBudget 拒绝，不到达 Next。
type Gated struct {
	Next          contract.Capability
	Gate          *Gate
	Key           LimitKey
	BytesPerToken int
}

// Complete 实现 contract.Capability。
func (g *Gated) Complete(ctx context.Context, conv contract.Conversation, model string) (string, error) {
	if g.Gate != nil {
		tokens := prompt.Conversation(conv, prompt.MakeEstimator(g.BytesPerToken))
		if err := g.Gate.Wait(ctx, Ask{Key: g.Key, Requests: 1, Tokens: tokens}); err != nil {
			return "", err
		}
	}
	return g.Next.Complete(ctx, conv, model)
}

var _ contract.Capability = (*Gated)(nil)
