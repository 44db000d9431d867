// Package store 提供 core.Store 与 core.RatingStore 的实现。
//
// 接口定义在 core 包：
//
//	var kv core.Store = NewMemoryStore()
//	var ratings core.RatingStore = NewKVRatingStore(kv, "cf")
//	var ratings core.RatingStore = NewMemoryRatingStore()
//	ratings, err := OpenSQLRatingStore(ctx, DialectSQLite, ":memory:")
package store

import "sort"

// sortedKeys 返回 map 的 key 升序列表，保证查询结果顺序一致。
func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
