package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"llmseg/pkg/contract"
)

const schemaURL = "extraction.json"

// Schema: 固定键集合的抽取 schema。
// Strict=false（默认）时仅校验“值为 string 或 null”，缺键/多键照常接受；
// Strict=true 时额外要求键集合完全一致。
type Schema struct {
	Keys     []string
	Strict   bool
	compiled *jsonschema.Schema
}

// NewSchema 以 contract.ExtractionKeys 构造并编译 schema。
func NewSchema(strict bool) (*Schema, error) {
	keys := append([]string(nil), contract.ExtractionKeys...)
	doc := jsonSchemaDoc(keys, strict)
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, strings.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("extract schema: %w", err)
	}
	compiled, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("extract schema: %w", err)
	}
	return &Schema{Keys: keys, Strict: strict, compiled: compiled}, nil
}

func jsonSchemaDoc(keys []string, strict bool) string {
	props := make(map[string]any, len(keys))
	for _, k := range keys {
		props[k] = map[string]any{"type": []string{"string", "null"}}
	}
	doc := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if strict {
		doc["required"] = keys
		doc["additionalProperties"] = false
	}
	b, _ := json.Marshal(doc)
	return string(b)
}

// Instruction 返回 system 轮次：列举必需键并要求只输出紧凑 JSON。
func (s *Schema) Instruction() string {
	parts := make([]string, len(s.Keys))
	for i, k := range s.Keys {
		parts[i] = k + " (string or null)"
	}
	return "You are an information extraction assistant. Extract fields into JSON strictly. " +
		"Required keys: " + strings.Join(parts, ", ") + ". " +
		"Return ONLY valid compact JSON without extra text."
}

// Report: 解码时观察到的宽松项（不影响成功与否）。
type Report struct {
	Missing []string
	Ignored []string
}

// Decode 将回复解码为类型化结果；失败统一返回 *contract.SchemaParseError。
// 回复须整体是一个 JSON 对象，前后不得有其他文本。
// 值类型不符（非 string/null，如 {"person": 5}）同样视为 schema 失败。
func (s *Schema) Decode(reply string) (contract.ExtractionResult, Report, error) {
	var rep Report
	var v any
	if err := json.Unmarshal([]byte(reply), &v); err != nil {
		return contract.ExtractionResult{}, rep, &contract.SchemaParseError{Reply: reply, Err: err}
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return contract.ExtractionResult{}, rep, &contract.SchemaParseError{Reply: reply, Err: errors.New("reply is not a JSON object")}
	}
	if err := s.compiled.Validate(obj); err != nil {
		return contract.ExtractionResult{}, rep, &contract.SchemaParseError{Reply: reply, Err: err}
	}

	var res contract.ExtractionResult
	known := make(map[string]struct{}, len(s.Keys))
	for _, k := range s.Keys {
		known[k] = struct{}{}
		raw, present := obj[k]
		if !present {
			rep.Missing = append(rep.Missing, k)
			continue
		}
		str, isStr := raw.(string)
		if !isStr {
			continue
		}
		if err := assign(&res, k, str); err != nil {
			return contract.ExtractionResult{}, rep, &contract.SchemaParseError{Reply: reply, Err: err}
		}
	}
	for k := range obj {
		if _, ok := known[k]; !ok {
			rep.Ignored = append(rep.Ignored, k)
		}
	}
	sort.Strings(rep.Ignored)
	return res, rep, nil
}

func assign(r *contract.ExtractionResult, key, val string) error {
	v := val
	switch key {
	case "person":
		r.Person = &v
	case "company":
		r.Company = &v
	case "date":
		r.Date = &v
	case "location":
		r.Location = &v
	default:
		return fmt.Errorf("key %q has no typed field", key)
	}
	return nil
}
