package scheduler

import (
	"github.com/spaolacci/murmur3"
)

// Partition selects how a batch of n items is split across worker units.
// The choice affects load balance only, never the assembled result.
type Partition int

const (
	// RoundRobin deals item i to chunk i % k. Spreads uneven per-item cost.
	RoundRobin Partition = iota
	// Contiguous gives every chunk one consecutive run of items.
	Contiguous
)

func (p Partition) String() string {
	if p == Contiguous {
		return "contiguous"
	}
	return "round-robin"
}

// Chunks splits the indices 0..n-1 into min(k, n) non-empty chunks. Each
// chunk lists its indices in ascending order.
func Chunks(n, k int, p Partition) [][]int {
	if n <= 0 {
		return nil
	}
	k = min(max(k, 1), n)
	chunks := make([][]int, k)

	switch p {
	case Contiguous:
		size, rem := n/k, n%k
		start := 0
		for c := range k {
			end := start + size
			if c < rem {
				end++
			}
			chunk := make([]int, 0, end-start)
			for i := start; i < end; i++ {
				chunk = append(chunk, i)
			}
			chunks[c] = chunk
			start = end
		}
	default:
		for c := range k {
			chunks[c] = make([]int, 0, (n+k-1)/k)
		}
		for i := range n {
			chunks[i%k] = append(chunks[i%k], i)
		}
	}
	return chunks
}

// ChunksByKey groups indices whose keys hash to the same bucket, so items
// sharing a key always land on the same unit. Empty buckets are dropped.
func ChunksByKey(keys []string, k int) [][]int {
	if len(keys) == 0 {
		return nil
	}
	k = min(max(k, 1), len(keys))
	buckets := make([][]int, k)
	for i, key := range keys {
		b := murmur3.Sum32([]byte(key)) % uint32(k)
		buckets[b] = append(buckets[b], i)
	}

	chunks := buckets[:0]
	for _, b := range buckets {
		if len(b) > 0 {
			chunks = append(chunks, b)
		}
	}
	return chunks
}
