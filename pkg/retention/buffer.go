// Package retention 提供固定容量的先进先出环形缓冲区
// 会话账本和界面日志共用同一套保留策略
package retention

// DefaultCapacity 默认保留条数
const DefaultCapacity = 1000

// Buffer 固定容量的环形缓冲区，满时淘汰最旧的元素
// Buffer 本身不加锁，由持有者负责同步
type Buffer[T any] struct {
	items []T
	head  int // 最旧元素的位置
	size  int
}

// New 创建容量为 capacity 的缓冲区，capacity<=0 时使用 DefaultCapacity
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Push 追加元素，返回是否因此淘汰了最旧的元素
func (b *Buffer[T]) Push(v T) (evicted bool) {
	c := len(b.items)
	if b.size < c {
		b.items[(b.head+b.size)%c] = v
		b.size++
		return false
	}
	b.items[b.head] = v
	b.head = (b.head + 1) % c
	return true
}

// Len 当前元素数
func (b *Buffer[T]) Len() int { return b.size }

// Cap 容量
func (b *Buffer[T]) Cap() int { return len(b.items) }

// Items 按从旧到新的顺序返回元素副本
func (b *Buffer[T]) Items() []T {
	out := make([]T, b.size)
	c := len(b.items)
	for i := 0; i < b.size; i++ {
		out[i] = b.items[(b.head+i)%c]
	}
	return out
}

// Oldest 返回最旧的元素
func (b *Buffer[T]) Oldest() (T, bool) {
	var zero T
	if b.size == 0 {
		return zero, false
	}
	return b.items[b.head], true
}

// Newest 返回最新的元素
func (b *Buffer[T]) Newest() (T, bool) {
	var zero T
	if b.size == 0 {
		return zero, false
	}
	return b.items[(b.head+b.size-1)%len(b.items)], true
}

// Reset 清空缓冲区
func (b *Buffer[T]) Reset() {
	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	b.head = 0
	b.size = 0
}
