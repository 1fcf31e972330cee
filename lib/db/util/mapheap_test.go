package util

import (
	"fmt"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func drain[K comparable](mh *MapHeap[K]) []K {
	return mh.PopUntil(math.MaxInt64)
}

func TestNewMapHeap(t *testing.T) {
	mh := NewMapHeap[string]()
	if mh.Len() != 0 || len(mh.itemsMap) != 0 {
		t.Errorf("new heap is not empty: len=%d map=%d", mh.Len(), len(mh.itemsMap))
	}
	if keys := drain(mh); len(keys) != 0 {
		t.Errorf("empty heap popped %v", keys)
	}
}

func TestAddItem(t *testing.T) {
	mh := NewMapHeap[string]()
	mh.AddItem("a", 100)
	mh.AddItem("b", 200)
	mh.AddItem("c", 50)

	if mh.Len() != 3 {
		t.Errorf("Heap should have 3 items, but has %d", mh.Len())
	}
	if diff := cmp.Diff([]string{"c", "a", "b"}, drain(mh)); diff != "" {
		t.Errorf("pop order (-want +got):\n%s", diff)
	}
	if len(mh.itemsMap) != 0 {
		t.Errorf("popped keys left in the map: %v", mh.itemsMap)
	}
}

func TestUpdateItem(t *testing.T) {
	mh := NewMapHeap[string]()
	mh.AddItem("a", 100)
	mh.AddItem("b", 200)

	// a database mutated again moves to the back of the queue
	mh.AddItem("a", 300)

	if mh.Len() != 2 {
		t.Errorf("update must not add a duplicate, len=%d", mh.Len())
	}
	if diff := cmp.Diff([]string{"b"}, mh.PopUntil(250)); diff != "" {
		t.Errorf("PopUntil(250) (-want +got):\n%s", diff)
	}
	if priority, ok := mh.RemoveByKey("a"); !ok || priority != 300 {
		t.Errorf("RemoveByKey(a) = %d, %v", priority, ok)
	}
}

func TestRemoveByKey(t *testing.T) {
	mh := NewMapHeap[string]()
	mh.AddItem("a", 100)
	mh.AddItem("b", 200)
	mh.AddItem("c", 300)

	priority, exists := mh.RemoveByKey("b")
	if !exists {
		t.Fatal("RemoveByKey should return true for existing key")
	}
	if priority != 200 {
		t.Errorf("RemoveByKey should return priority 200, got %d", priority)
	}
	if _, exists = mh.RemoveByKey("b"); exists {
		t.Error("removed key found again")
	}
	if _, exists = mh.RemoveByKey("zz"); exists {
		t.Error("RemoveByKey should return false for non-existent key")
	}
	if diff := cmp.Diff([]string{"a", "c"}, drain(mh)); diff != "" {
		t.Errorf("remaining keys (-want +got):\n%s", diff)
	}
}

// TestPopUntil tests the cutoff based removal used by the reclamation sweep
func TestPopUntil(t *testing.T) {
	mh := NewMapHeap[string]()
	for i := 0; i < 10; i++ {
		mh.AddItem(fmt.Sprintf("db%d", i), int64(i*10))
	}

	got := mh.PopUntil(35)
	want := []string{"db0", "db1", "db2", "db3"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("PopUntil(35) (-want +got):\n%s", diff)
	}
	if mh.Len() != 6 {
		t.Errorf("expected 6 remaining items, got %d", mh.Len())
	}
	if _, ok := mh.RemoveByKey("db3"); ok {
		t.Error("popped keys must be removed from the map")
	}
	if keys := mh.PopUntil(-1); len(keys) != 0 {
		t.Errorf("nothing should be older than -1, got %v", keys)
	}
}

// TestLargeNumberOfItems checks the heap invariant with many interleaved updates
func TestLargeNumberOfItems(t *testing.T) {
	mh := NewMapHeap[int]()
	const n = 1000

	priorities := make(map[int]int64, n)
	for i := 0; i < n; i++ {
		priorities[i] = int64((i * 7919) % n)
		mh.AddItem(i, priorities[i])
	}
	// move every even key to the back
	for i := 0; i < n; i += 2 {
		priorities[i] = int64(n + i)
		mh.AddItem(i, priorities[i])
	}

	keys := drain(mh)
	if len(keys) != n {
		t.Fatalf("expected %d items, popped %d", n, len(keys))
	}
	for i := 1; i < len(keys); i++ {
		if priorities[keys[i]] < priorities[keys[i-1]] {
			t.Fatalf("heap order violated at %d: %d after %d", i, priorities[keys[i]], priorities[keys[i-1]])
		}
	}
}
