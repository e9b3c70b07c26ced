package contract

// ExtractionKeys: 抽取 schema 的固定键集合（顺序即提示词中的列举顺序）。
var ExtractionKeys = []string{"person", "company", "date", "location"}

// ExtractionResult: 严格对应 ExtractionKeys 的类型化结果；nil 表示 JSON null。
// 序列化时四个键总是存在，不多不少。
type ExtractionResult struct {
	Person   *string `json:"person"`
	Company  *string `json:"company"`
	Date     *string `json:"date"`
	Location *string `json:"location"`
}

// Field 按键名读取字段；未知键返回 (nil,false)。
func (r ExtractionResult) Field(key string) (*string, bool) {
	switch key {
	case "person":
		return r.Person, true
	case "company":
		return r.Company, true
	case "date":
		return r.Date, true
	case "location":
		return r.Location, true
	default:
		return nil, false
	}
}

// StringPtr 返回 s 的指针，便于构造结果。
func StringPtr(s string) *string { return &s }
