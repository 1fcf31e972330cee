// Package util
//
// This file provides a priority queue with key-based access, used to order
// ephemeral databases by the time of their last mutation so that a reclamation
// sweep only has to look at the ones that are old enough.
//
// The implementation combines a binary heap with a hash map:
//   - O(log n) for AddItem and RemoveByKey
//   - O(k log n) for PopUntil returning k keys
//
// It is not safe for concurrent use; callers synchronize externally.
//
// Example usage:
//
//	q := NewMapHeap[string]()
//	q.AddItem(":memory:db1", lastMutated.UnixNano())
//	for _, name := range q.PopUntil(cutoff.UnixNano()) {
//	    // db1 has not been touched since cutoff
//	}
package util

import "container/heap"

// HeapItem is an entry of a MapHeap
type HeapItem[K comparable] struct {
	Key      K     // Unique identifier for the item
	Priority int64 // Lower values are popped first
	index    int   // Index in the heap, maintained by heap package
}

// MapHeap implements a min-heap with both heap operations and key-based access
type MapHeap[K comparable] struct {
	items    []*HeapItem[K]     // The actual heap slice
	itemsMap map[K]*HeapItem[K] // Map for O(1) access by key
}

// NewMapHeap creates a new, initialized queue
func NewMapHeap[K comparable]() *MapHeap[K] {
	return &MapHeap[K]{
		items:    make([]*HeapItem[K], 0),
		itemsMap: make(map[K]*HeapItem[K]),
	}
}

// --------------------------------------------------------------------------
// heap.Interface (use the methods below instead of calling these directly)
// --------------------------------------------------------------------------

func (mh *MapHeap[K]) Len() int { return len(mh.items) }

func (mh *MapHeap[K]) Less(i, j int) bool {
	return mh.items[i].Priority < mh.items[j].Priority
}

func (mh *MapHeap[K]) Swap(i, j int) {
	mh.items[i], mh.items[j] = mh.items[j], mh.items[i]
	mh.items[i].index = i
	mh.items[j].index = j
}

func (mh *MapHeap[K]) Push(x interface{}) {
	it := x.(*HeapItem[K])
	it.index = len(mh.items)
	mh.items = append(mh.items, it)
	mh.itemsMap[it.Key] = it
}

func (mh *MapHeap[K]) Pop() interface{} {
	old := mh.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil // Avoid memory leak
	it.index = -1
	mh.items = old[:n-1]
	delete(mh.itemsMap, it.Key)
	return it
}

// --------------------------------------------------------------------------
// Keyed operations
// --------------------------------------------------------------------------

// AddItem adds a new item to the queue or updates the priority of an existing one
func (mh *MapHeap[K]) AddItem(key K, priority int64) {
	if it, exists := mh.itemsMap[key]; exists {
		it.Priority = priority
		heap.Fix(mh, it.index)
		return
	}
	heap.Push(mh, &HeapItem[K]{Key: key, Priority: priority})
}

// RemoveByKey removes an item by its key and returns its priority
func (mh *MapHeap[K]) RemoveByKey(key K) (int64, bool) {
	it, exists := mh.itemsMap[key]
	if !exists {
		return 0, false
	}
	heap.Remove(mh, it.index)
	return it.Priority, true
}

// PopUntil removes and returns, in priority order, every key whose priority is <= max
func (mh *MapHeap[K]) PopUntil(max int64) []K {
	var keys []K
	for len(mh.items) > 0 && mh.items[0].Priority <= max {
		keys = append(keys, heap.Pop(mh).(*HeapItem[K]).Key)
	}
	return keys
}
