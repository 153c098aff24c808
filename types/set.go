package types

// Set is an insertion-ordered set.
type Set[T comparable] struct {
	index map[T]struct{}
	items []T
}

func NewSet[T comparable](values ...T) *Set[T] {
	s := &Set[T]{index: make(map[T]struct{}, len(values))}
	s.Insert(values...)
	return s
}

func (s *Set[T]) Insert(values ...T) {
	for _, v := range values {
		if _, found := s.index[v]; found {
			continue
		}
		s.index[v] = struct{}{}
		s.items = append(s.items, v)
	}
}

func (s *Set[T]) Exists(v T) bool {
	_, found := s.index[v]
	return found
}

func (s *Set[T]) Len() int {
	return len(s.items)
}

// Array returns a copy of the elements in insertion order.
func (s *Set[T]) Array() []T {
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}
