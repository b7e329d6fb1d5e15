// Package util
//
// This file provides a priority queue for garbage collection purposes that
// combines a binary heap with a hash map, so items can be popped by priority
// and looked up or removed by key:
//   - O(log n) for Push, Pop and updates
//   - O(1) for key-based lookups
//   - O(log n) for key-based removal
//
// The heap is not thread-safe. Engines keep one heap per shard that is only
// touched by the shard's GC goroutine.
//
// Example usage:
//
//	gcQueue := NewMapHeap[string]()
//	gcQueue.AddItem("session:1", 1200)
//	gcQueue.AddItem("session:2", 900)
//
//	oldest, _ := gcQueue.Peek() // session:2
//	gcQueue.RemoveByKey("session:1")
package util

import (
	"container/heap"
	"fmt"
)

// Item is an entry of the MapHeap
type Item[K comparable] struct {
	Key      K      // Unique identifier for the item
	Priority uint64 // Lower values are popped first
	index    int    // Index in the heap, maintained by heap package
}

func (i *Item[K]) String() string {
	return fmt.Sprintf("{Key: %v, Priority: %d}", i.Key, i.Priority)
}

// MapHeap is a min-heap keyed by K
type MapHeap[K comparable] struct {
	items    []*Item[K]
	itemsMap map[K]*Item[K]
}

// NewMapHeap creates an empty heap
func NewMapHeap[K comparable]() *MapHeap[K] {
	return &MapHeap[K]{
		items:    make([]*Item[K], 0),
		itemsMap: make(map[K]*Item[K]),
	}
}

// Len is part of heap.Interface
func (h *MapHeap[K]) Len() int { return len(h.items) }

// Less is part of heap.Interface
func (h *MapHeap[K]) Less(i, j int) bool {
	return h.items[i].Priority < h.items[j].Priority
}

// Swap is part of heap.Interface
func (h *MapHeap[K]) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

// Push is part of heap.Interface, use AddItem instead
func (h *MapHeap[K]) Push(x interface{}) {
	it := x.(*Item[K])
	it.index = len(h.items)
	h.items = append(h.items, it)
	h.itemsMap[it.Key] = it
}

// Pop is part of heap.Interface, use heap.Pop(h) to pop the minimum
func (h *MapHeap[K]) Pop() interface{} {
	old := h.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	h.items = old[:n-1]
	delete(h.itemsMap, it.Key)
	return it
}

// AddItem adds a new item or updates the priority of an existing one
func (h *MapHeap[K]) AddItem(key K, priority uint64) {
	if it, exists := h.itemsMap[key]; exists {
		it.Priority = priority
		heap.Fix(h, it.index)
		return
	}
	heap.Push(h, &Item[K]{Key: key, Priority: priority})
}

// RemoveByKey removes an item and returns its priority
func (h *MapHeap[K]) RemoveByKey(key K) (uint64, bool) {
	it, exists := h.itemsMap[key]
	if !exists {
		return 0, false
	}
	heap.Remove(h, it.index)
	return it.Priority, true
}

// Peek returns the minimum item without removing it
func (h *MapHeap[K]) Peek() (*Item[K], bool) {
	if len(h.items) == 0 {
		return nil, false
	}
	return h.items[0], true
}

// Contains checks if a key is in the heap
func (h *MapHeap[K]) Contains(key K) bool {
	_, exists := h.itemsMap[key]
	return exists
}

// GetByKey retrieves an item by its key without removing it
func (h *MapHeap[K]) GetByKey(key K) (*Item[K], bool) {
	it, exists := h.itemsMap[key]
	return it, exists
}
