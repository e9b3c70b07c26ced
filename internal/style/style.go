package style

import (
	"fmt"
	"sort"
	"strings"

	"llmseg/pkg/contract"
)

// Table: 封闭的“风格标识 → 指令”表，附带一个默认项。
// Resolve 永不失败：未知标识（含空串）回退到默认项。
type Table struct {
	name    string
	def     string
	entries map[string]string
}

// NewTable 构造表；def 必须是 entries 中的键且对应指令非空。
func NewTable(name, def string, entries map[string]string) (*Table, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("style %s: %w: empty table", name, contract.ErrInvalidConfiguration)
	}
	m := make(map[string]string, len(entries))
	for k, v := range entries {
		key := normalize(k)
		if key == "" || strings.TrimSpace(v) == "" {
			return nil, fmt.Errorf("style %s: %w: empty key or instruction", name, contract.ErrInvalidConfiguration)
		}
		m[key] = v
	}
	d := normalize(def)
	if _, ok := m[d]; !ok {
		return nil, fmt.Errorf("style %s: %w: default %q not in table", name, contract.ErrInvalidConfiguration, def)
	}
	return &Table{name: name, def: d, entries: m}, nil
}

// MustTable 同 NewTable，失败时 panic；仅用于包级内置表。
func MustTable(name, def string, entries map[string]string) *Table {
	t, err := NewTable(name, def, entries)
	if err != nil {
		panic(err)
	}
	return t
}

// Resolve 返回标识对应的指令；未知标识返回默认指令。
func (t *Table) Resolve(id string) string {
	if v, ok := t.entries[normalize(id)]; ok {
		return v
	}
	return t.entries[t.def]
}

// Lookup 返回标识是否属于表内（不回退）。
func (t *Table) Lookup(id string) (string, bool) {
	v, ok := t.entries[normalize(id)]
	return v, ok
}

// Default 返回默认标识。
func (t *Table) Default() string { return t.def }

// Name 返回表名（日志用）。
func (t *Table) Name() string { return t.name }

// Keys 返回排序后的全部标识。
func (t *Table) Keys() []string {
	keys := make([]string, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func normalize(id string) string { return strings.ToLower(strings.TrimSpace(id)) }
