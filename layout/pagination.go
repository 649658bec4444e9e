package layout

// CapacityFunc 将从 0 开始的页码映射为该页可容纳的块数量。
type CapacityFunc func(pageIndex int) int

// ConstantCapacity 返回每页固定容量的 CapacityFunc。
func ConstantCapacity(k int) CapacityFunc {
	return func(int) int { return k }
}

// FirstPageCapacity 为首页（通常带封面页眉）设置不同容量。
func FirstPageCapacity(first, rest int) CapacityFunc {
	return func(i int) int {
		if i == 0 {
			return first
		}
		return rest
	}
}

// maxEmptyProbe 限制连续容量 < 1 的页码探测次数，避免容量函数永不返回正数时死循环。
const maxEmptyProbe = 64

// PageSpec 为一页分得的连续块切片。
type PageSpec[T any] struct {
	Index int `json:"index"`
	Items []T `json:"items"`
}

// Partition 从左到右消费 items，第 i 页分得 capacity(i) 个元素。
// 容量 < 1 的页码不产生页面；若连续 maxEmptyProbe 个页码都没有正容量，
// 视为容量函数永不返回正数，返回 nil（整个导出成为 no-op）。
// 返回的各页 Items 依次拼接恰好等于输入。
func Partition[T any](items []T, capacity CapacityFunc) []PageSpec[T] {
	if len(items) == 0 || capacity == nil {
		return nil
	}
	var pages []PageSpec[T]
	start, empty := 0, 0
	for index := 0; start < len(items); index++ {
		n := capacity(index)
		if n < 1 {
			empty++
			if empty >= maxEmptyProbe {
				return nil
			}
			continue
		}
		empty = 0
		end := start + n
		if end > len(items) || end < start {
			end = len(items)
		}
		pages = append(pages, PageSpec[T]{Index: index, Items: items[start:end:end]})
		start = end
	}
	return pages
}
