package processor

import (
	"context"
	"errors"
	"fmt"

	"llmseg/pkg/contract"
)

// Processor: 将一条指令与一个 Chunk 交给补全能力，产出 PartialResult。
// 每个 Chunk 恰好调用一次 Complete；本层不重试，错误原样上抛。
type Processor struct {
	Capability contract.Capability
	Model      string
}

// New 构造 Processor。
func New(c contract.Capability, model string) *Processor {
	return &Processor{Capability: c, Model: model}
}

// Conversation 构造两轮会话：system 承载 instruction，user 承载 directive+chunk 文本。
func Conversation(instruction, directive, text string) contract.Conversation {
	return contract.Conversation{
		contract.System(instruction),
		contract.User(directive + text),
	}
}

// Process 处理单个 Chunk。
func (p *Processor) Process(ctx context.Context, chunk contract.Chunk, instruction, directive string) (contract.PartialResult, error) {
	if p.Capability == nil {
		return contract.PartialResult{}, errors.New("processor: nil capability")
	}
	out, err := p.Capability.Complete(ctx, Conversation(instruction, directive, chunk.Text), p.Model)
	if err != nil {
		return contract.PartialResult{}, fmt.Errorf("chunk %d: %w", chunk.Index, err)
	}
	return contract.PartialResult{ChunkIndex: chunk.Index, Text: out}, nil
}
