package rate

import (
	"crypto/sha256"
	"fmt"
)

// KeyFor 按 client+sha256(apiKey) 构造限流分组键；共享同一 key 的 provider 共享额度。
// apiKey 为空时退化为 client 名。
func KeyFor(client, apiKey string) LimitKey {
	if apiKey == "" {
		return LimitKey(client)
	}
	sum := sha256.Sum256([]byte(apiKey))
	return LimitKey(fmt.Sprintf("%s:%x", client, sum[:8]))
}
