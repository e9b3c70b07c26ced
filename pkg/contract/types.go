package contract

// Document: 原始输入文本；接收后不可变。
type Document string

// Chunk: 文档的连续、不重叠片段。
// 约束：
// - Index 自 0 严格递增；
// - 按 Index 顺序拼接所有 Text 恰好还原 Document。
type Chunk struct {
	Index int
	Text  string
}

// PartialResult: 单个 Chunk 的变换结果；每个 Chunk 产出一次，创建后不再修改。
type PartialResult struct {
	ChunkIndex int
	Text       string
}

// Role: 会话轮次角色（封闭集合）。
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid 报告角色是否属于封闭集合。
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// Turn: 单条会话轮次。
type Turn struct {
	Role Role
	Text string
}

// Conversation: 有序会话。
type Conversation []Turn

// System/User/Assistant 为构造轮次的便捷函数。
func System(text string) Turn    { return Turn{Role: RoleSystem, Text: text} }
func User(text string) Turn      { return Turn{Role: RoleUser, Text: text} }
func Assistant(text string) Turn { return Turn{Role: RoleAssistant, Text: text} }

// Clone 返回独立副本；追加轮次时避免与调用方共享底层数组。
func (c Conversation) Clone() Conversation {
	if c == nil {
		return nil
	}
	out := make(Conversation, len(c))
	copy(out, c)
	return out
}

// Operation: 编排层支持的逻辑请求类型。
type Operation string

const (
	OpTranslate Operation = "translate"
	OpSummarize Operation = "summarize"
	OpExtract   Operation = "extract"
)

// Valid 报告操作是否受支持。
func (o Operation) Valid() bool {
	switch o {
	case OpTranslate, OpSummarize, OpExtract:
		return true
	default:
		return false
	}
}
