package session

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrTerminated: 会话已结束后仍提交输入。
var ErrTerminated = errors.New("session terminated")

// Mode: 输入收集方式。
type Mode int

const (
	// Line: 每个非空行为一次请求；空行结束会话。
	Line Mode = iota
	// Buffer: 非空行累积；空行将缓冲整体提交；空缓冲的空行忽略。
	Buffer
)

// Handler 处理一次完整输入，返回要回显的输出。
type Handler func(ctx context.Context, text string) (string, error)

// Session: 交互式会话状态机（Active → Terminated）。
// 任一时刻至多一个请求在途；"exit"（忽略大小写与首尾空白）结束会话。
type Session struct {
	mode   Mode
	handle Handler
	mu     sync.Mutex
	buf    []string
	done   bool
}

// New 构造会话。
func New(mode Mode, h Handler) *Session {
	return &Session{mode: mode, handle: h}
}

// Submit 提交一行输入。
// 返回值 ok 表示本行触发了一次请求（out 有效）；结束会话的输入返回 ok=false 且 err=nil。
// 请求失败不结束会话。
func (s *Session) Submit(ctx context.Context, line string) (out string, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return "", false, ErrTerminated
	}
	trimmed := strings.TrimSpace(line)
	if strings.EqualFold(trimmed, "exit") {
		s.done = true
		s.buf = nil
		return "", false, nil
	}
	switch s.mode {
	case Buffer:
		if trimmed != "" {
			s.buf = append(s.buf, line)
			return "", false, nil
		}
		if len(s.buf) == 0 {
			return "", false, nil
		}
		text := strings.Join(s.buf, "\n")
		s.buf = nil
		out, err = s.handle(ctx, text)
		return out, err == nil, err
	default:
		if trimmed == "" {
			s.done = true
			return "", false, nil
		}
		out, err = s.handle(ctx, trimmed)
		return out, err == nil, err
	}
}

// Pending 返回缓冲中尚未提交的行数（Buffer 模式）。
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// Terminated 报告会话是否已结束。
func (s *Session) Terminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Close 在输入流结束（EOF）时调用：丢弃未提交的缓冲并结束会话。
func (s *Session) Close() {
	s.mu.Lock()
	s.done = true
	s.buf = nil
	s.mu.Unlock()
}
