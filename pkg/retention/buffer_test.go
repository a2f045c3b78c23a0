package retention

import "testing"

// TestBufferPushWithinCapacity 测试未满时的追加
func TestBufferPushWithinCapacity(t *testing.T) {
	b := New[int](3)

	for i := 1; i <= 3; i++ {
		if b.Push(i) {
			t.Errorf("Expected no eviction while filling, pushed %d", i)
		}
	}

	if b.Len() != 3 {
		t.Errorf("Expected length 3, got %d", b.Len())
	}

	items := b.Items()
	for i, v := range []int{1, 2, 3} {
		if items[i] != v {
			t.Errorf("Expected items[%d]=%d, got %d", i, v, items[i])
		}
	}
}

// TestBufferEvictsOldest 测试满后淘汰最旧元素
func TestBufferEvictsOldest(t *testing.T) {
	b := New[int](3)
	for i := 1; i <= 5; i++ {
		b.Push(i)
	}

	if b.Len() != 3 {
		t.Errorf("Expected length to stay at capacity 3, got %d", b.Len())
	}

	items := b.Items()
	expected := []int{3, 4, 5}
	for i := range expected {
		if items[i] != expected[i] {
			t.Errorf("Expected items[%d]=%d, got %d", i, expected[i], items[i])
		}
	}

	oldest, _ := b.Oldest()
	newest, _ := b.Newest()
	if oldest != 3 || newest != 5 {
		t.Errorf("Expected oldest=3 newest=5, got %d/%d", oldest, newest)
	}
}

// TestBufferDefaultCapacity 测试默认容量与大量写入
func TestBufferDefaultCapacity(t *testing.T) {
	b := New[int](0)
	if b.Cap() != DefaultCapacity {
		t.Fatalf("Expected capacity %d, got %d", DefaultCapacity, b.Cap())
	}

	for i := 1; i <= 1005; i++ {
		b.Push(i)
	}

	if b.Len() != DefaultCapacity {
		t.Errorf("Expected %d items, got %d", DefaultCapacity, b.Len())
	}
	oldest, _ := b.Oldest()
	if oldest != 6 {
		t.Errorf("Expected oldest retained value 6, got %d", oldest)
	}
}

// TestBufferItemsIsCopy 测试快照与缓冲区相互独立
func TestBufferItemsIsCopy(t *testing.T) {
	b := New[string](2)
	b.Push("a")
	snap := b.Items()
	snap[0] = "changed"

	items := b.Items()
	if items[0] != "a" {
		t.Errorf("Expected buffer to be unaffected by snapshot mutation, got %q", items[0])
	}
}

// TestBufferReset 测试清空
func TestBufferReset(t *testing.T) {
	b := New[int](2)
	b.Push(1)
	b.Push(2)
	b.Push(3)
	b.Reset()

	if b.Len() != 0 {
		t.Errorf("Expected empty buffer after reset, got %d", b.Len())
	}
	if _, ok := b.Oldest(); ok {
		t.Error("Expected no oldest element after reset")
	}

	b.Push(9)
	items := b.Items()
	if len(items) != 1 || items[0] != 9 {
		t.Errorf("Expected [9] after reset and push, got %v", items)
	}
}

// BenchmarkBufferPush 测试满缓冲区的追加性能
func BenchmarkBufferPush(b *testing.B) {
	buf := New[int](DefaultCapacity)
	for i := 0; i < b.N; i++ {
		buf.Push(i)
	}
}
