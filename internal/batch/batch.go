// Package batch partitions work into fixed-size groups.
package batch

// Split partitions items into consecutive groups of size n. The last group may
// be smaller. A non-positive n yields a single group.
func Split[T any](items []T, n int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if n <= 0 {
		n = len(items)
	}

	out := make([][]T, 0, (len(items)+n-1)/n)
	for start := 0; start < len(items); start += n {
		end := min(start+n, len(items))
		out = append(out, items[start:end:end])
	}
	return out
}
