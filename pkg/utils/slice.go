package utils

import "sort"

// map each element in sli.
//
// args:
//   - sli : slice of `T`s
//   - mapper : mapping function from T to R
//
// return:
//
//	slice of `R`s.
//	each element indexed `N` is given with `mapper(sli[N])` .
func Map[T any, R any](sli []T, mapper func(v T) R) []R {
	ret := make([]R, len(sli))
	for nth, v := range sli {
		ret[nth] = mapper(v)
	}
	return ret
}

// Map over sli with mapper.
//
// If mapper causes error, return (nil, error).
//
// Otherwise, return (mapping result, nil).
func MapUntilError[T any, R any](sli []T, mapper func(v T) (R, error)) ([]R, error) {
	ret := make([]R, len(sli))
	for nth, v := range sli {
		r, err := mapper(v)
		if err != nil {
			return nil, err
		}
		ret[nth] = r
	}
	return ret, nil
}

// pick elements matching the predicate, keeping ordering.
func Filter[T any](sli []T, pred func(v T) bool) []T {
	ret := []T{}
	for _, v := range sli {
		if pred(v) {
			ret = append(ret, v)
		}
	}
	return ret
}

// convert slice to map.
//
// If keys given with getkey collide, a value coming latter takes over previous.
func ToMap[T any, K comparable](sli []T, getkey func(v T) K) map[K]T {
	m := map[K]T{}

	for _, v := range sli {
		m[getkey(v)] = v
	}

	return m
}

func ToMultiMap[T any, K comparable, R any](sli []T, pair func(v T) (K, R)) map[K][]R {
	m := map[K][]R{}
	for _, i := range sli {
		k, v := pair(i)
		m[k] = append(m[k], v)
	}
	return m
}

// a copy of sli, sorted ascending with less.
func Sorted[T any](sli []T, less func(a, b T) bool) []T {
	ret := make([]T, len(sli))
	copy(ret, sli)
	sort.Slice(ret, func(i, j int) bool { return less(ret[i], ret[j]) })
	return ret
}

// split sli into chunks of at most size elements, keeping ordering.
//
// When size <= 0, the whole slice is a single chunk.
func Chunks[T any](sli []T, size int) [][]T {
	if len(sli) == 0 {
		return [][]T{}
	}
	if size <= 0 {
		return [][]T{sli}
	}

	ret := [][]T{}
	for from := 0; from < len(sli); from += size {
		to := from + size
		if len(sli) < to {
			to = len(sli)
		}
		ret = append(ret, sli[from:to])
	}
	return ret
}

// keys of the map, in no particular order.
func KeysOf[K comparable, V any](m map[K]V) []K {
	ret := make([]K, 0, len(m))
	for k := range m {
		ret = append(ret, k)
	}
	return ret
}

// deduplicate elements, keeping the first occurrence's position.
func Unique[T comparable](sli []T) []T {
	seen := map[T]struct{}{}
	ret := []T{}
	for _, v := range sli {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		ret = append(ret, v)
	}
	return ret
}
