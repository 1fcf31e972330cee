package db

import (
	"github.com/ma99us/MikeDB/lib/store"
	"github.com/ma99us/MikeDB/lib/value"
)

// --------------------------------------------------------------------------
// List helpers. They never modify the slice they are given.
// --------------------------------------------------------------------------

// asList promotes a value to a list: null becomes [], a non-list value [v]
func asList(v value.Value) []value.Value {
	if v.IsNull() {
		return []value.Value{}
	}
	if items, ok := v.AsList(); ok {
		return append([]value.Value(nil), items...)
	}
	return []value.Value{v}
}

func badIndex(index int) error {
	return store.Errorf(store.RetCValidation, "Bad index %d", index)
}

// insertItems inserts v, or every element of v if it is a list, at index.
// store.NoIndex appends at the end.
func insertItems(list []value.Value, v value.Value, index int) ([]value.Value, error) {
	items, isList := v.AsList()
	if !isList {
		items = []value.Value{v}
	}
	if index == store.NoIndex {
		index = len(list)
	}
	if index < 0 || index > len(list) {
		return nil, badIndex(index)
	}
	result := make([]value.Value, 0, len(list)+len(items))
	result = append(result, list[:index]...)
	result = append(result, items...)
	result = append(result, list[index:]...)
	return result, nil
}

// replaceAt replaces the element at index
func replaceAt(list []value.Value, v value.Value, index int) ([]value.Value, error) {
	if index < 0 || index >= len(list) {
		return nil, badIndex(index)
	}
	result := append([]value.Value(nil), list...)
	result[index] = v
	return result, nil
}

// replaceByID replaces every element carrying id. replaced is false if there was none.
func replaceByID(list []value.Value, v value.Value, id int64) (result []value.Value, replaced bool) {
	result = append([]value.Value(nil), list...)
	for i, item := range result {
		if itemID, ok := item.ID(); ok && itemID == id {
			result[i] = v
			replaced = true
		}
	}
	return result, replaced
}

// removeAt removes the element at index
func removeAt(list []value.Value, index int) ([]value.Value, error) {
	if index < 0 || index >= len(list) {
		return nil, badIndex(index)
	}
	result := make([]value.Value, 0, len(list)-1)
	result = append(result, list[:index]...)
	return append(result, list[index+1:]...), nil
}

// removeByID removes every element carrying id
func removeByID(list []value.Value, id int64) (result []value.Value, removed bool) {
	result = make([]value.Value, 0, len(list))
	for _, item := range list {
		if itemID, ok := item.ID(); ok && itemID == id {
			removed = true
			continue
		}
		result = append(result, item)
	}
	return result, removed
}

// moveByID removes the elements carrying id and inserts v at index. The index
// refers to the list after removal.
func moveByID(list []value.Value, v value.Value, id int64, index int) ([]value.Value, error) {
	rest, _ := removeByID(list, id)
	if index < 0 || index > len(rest) {
		return nil, badIndex(index)
	}
	return insertItems(rest, v, index)
}

// findByID returns the element carrying id, or the value itself when it carries id
func findByID(v value.Value, id int64) (value.Value, bool) {
	if items, ok := v.AsList(); ok {
		for _, item := range items {
			if itemID, ok := item.ID(); ok && itemID == id {
				return item, true
			}
		}
		return value.Null(), false
	}
	if itemID, ok := v.ID(); ok && itemID == id {
		return v, true
	}
	return value.Null(), false
}
