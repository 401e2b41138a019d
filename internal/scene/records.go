package scene

// records is an insertion-ordered id -> value map.
type records[T any] struct {
	keys []string
	m    map[string]T
}

func newRecords[T any]() records[T] {
	return records[T]{m: make(map[string]T)}
}

func (r *records[T]) get(id string) (T, bool) {
	v, ok := r.m[id]
	return v, ok
}

func (r *records[T]) has(id string) bool {
	_, ok := r.m[id]
	return ok
}

// put inserts or replaces; a new id is appended to the order.
func (r *records[T]) put(id string, v T) {
	if _, ok := r.m[id]; !ok {
		r.keys = append(r.keys, id)
	}
	r.m[id] = v
}

func (r *records[T]) del(id string) bool {
	if _, ok := r.m[id]; !ok {
		return false
	}
	delete(r.m, id)
	for i, k := range r.keys {
		if k == id {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
	return true
}

func (r *records[T]) len() int { return len(r.keys) }

// values returns the records in insertion order, mapped through clone.
func (r *records[T]) values(clone func(T) T) []T {
	out := make([]T, 0, len(r.keys))
	for _, k := range r.keys {
		out = append(out, clone(r.m[k]))
	}
	return out
}
