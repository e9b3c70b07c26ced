package merge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"llmseg/internal/processor"
	"llmseg/pkg/contract"
)

// Separator: 合并阶段拼接部分结果使用的空行分隔。
const Separator = "\n\n"

// Ordered 返回按 ChunkIndex 升序排列的副本；发现负序号或重复序号返回 ErrSeqInvalid。
// 不要求从 0 开始，以便分段合并 [0..k) 与 [k..n)。
func Ordered(partials []contract.PartialResult) ([]contract.PartialResult, error) {
	out := make([]contract.PartialResult, len(partials))
	copy(out, partials)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	for i, p := range out {
		if p.ChunkIndex < 0 {
			return nil, fmt.Errorf("merge: chunk %d: %w", p.ChunkIndex, contract.ErrSeqInvalid)
		}
		if i > 0 && out[i-1].ChunkIndex == p.ChunkIndex {
			return nil, fmt.Errorf("merge: duplicate chunk %d: %w", p.ChunkIndex, contract.ErrSeqInvalid)
		}
	}
	return out, nil
}

// Concat 按序号顺序拼接部分结果，不插入分隔符（翻译类任务）。
func Concat(partials []contract.PartialResult) (string, error) {
	return join(partials, "")
}

func join(partials []contract.PartialResult, sep string) (string, error) {
	ordered, err := Ordered(partials)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for i, p := range ordered {
		if i > 0 {
			sb.WriteString(sep)
		}
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

// Reducer: 摘要类任务的二阶段合并。
type Reducer struct {
	Capability contract.Capability
	Model      string
	// Budget: 可选；在发起合并调用前检查会话，失败则不调用。
	Budget func(contract.Conversation) error
}

// Reduce 合并部分结果：
//   - 0 个：返回空串，不调用；
//   - 1 个：原样返回，不调用；
//   - 多个：以空行拼接后再调用一次补全能力，返回其结果。
//
// 第二个返回值为实际发出的补全调用次数（0 或 1）；预算拒绝不计入。
func (r *Reducer) Reduce(ctx context.Context, partials []contract.PartialResult, instruction, directive string) (string, int, error) {
	switch len(partials) {
	case 0:
		return "", 0, nil
	case 1:
		if partials[0].ChunkIndex < 0 {
			return "", 0, fmt.Errorf("merge: chunk %d: %w", partials[0].ChunkIndex, contract.ErrSeqInvalid)
		}
		return partials[0].Text, 0, nil
	}
	if r.Capability == nil {
		return "", 0, errors.New("merge: nil capability")
	}
	combined, err := join(partials, Separator)
	if err != nil {
		return "", 0, err
	}
	conv := processor.Conversation(instruction, directive, combined)
	if r.Budget != nil {
		if err := r.Budget(conv); err != nil {
			return "", 0, fmt.Errorf("reduce: %w", err)
		}
	}
	out, err := r.Capability.Complete(ctx, conv, r.Model)
	if err != nil {
		if errors.Is(err, contract.ErrOverBudget) {
			return "", 0, fmt.Errorf("reduce: %w", err)
		}
		return "", 1, fmt.Errorf("reduce: %w", err)
	}
	return out, 1, nil
}
