package fn

// Map applies f to each element.
func Map[T, U any](items []T, f func(T) U) []U {
	out := make([]U, len(items))
	for i, v := range items {
		out[i] = f(v)
	}
	return out
}

// Filter returns elements where pred is true.
func Filter[T any](items []T, pred func(T) bool) []T {
	var out []T
	for _, v := range items {
		if pred(v) {
			out = append(out, v)
		}
	}
	return out
}

// FlatMap applies f to each element and flattens the results.
func FlatMap[T, U any](items []T, f func(T) []U) []U {
	var out []U
	for _, v := range items {
		out = append(out, f(v)...)
	}
	return out
}

// Chunk splits items into batches of size n. Returns nil if n <= 0.
func Chunk[T any](items []T, n int) [][]T {
	if n <= 0 {
		return nil
	}
	var out [][]T
	for i := 0; i < len(items); i += n {
		end := i + n
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}
