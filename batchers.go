package phishetl

// Batcher splits a full pending batch into the batches actually committed.
//
// The pipeline calls Batch each time the pending buffer reaches the batch
// size, and once more to flush what is left when the feed ends. Every
// returned batch is committed in order; empty batches are dropped.
//
// The default batcher is SizeBatcher with the resolved batch size, which
// passes the pending buffer through as one commit. Combine batchers when a
// commit must also respect another limit, such as the store's maximum message
// size:
//
//	// Keep each commit under ~8 MiB.
//	p.WithBatcher(phishetl.CombineBatchers(
//	    phishetl.SizeBatcher[phishetl.Record](1000),
//	    phishetl.WeightedBatcher(phishetl.RecordWeight, 8<<20),
//	))
type Batcher[T any] interface {
	// Batch groups items into batches for committing.
	Batch(items []T) [][]T
}

// BatcherFunc adapts a plain function to the [Batcher] interface.
type BatcherFunc[T any] func(items []T) [][]T

func (f BatcherFunc[T]) Batch(items []T) [][]T {
	return f(items)
}

// recordOverhead approximates the encoded size of a Record's field names,
// timestamps and flag.
const recordOverhead = 96

// RecordWeight is an estimate of r's size in bytes once encoded for the
// store. It is meant for WeightedBatcher.
func RecordWeight(r Record) int {
	return len(r.ID) + len(r.URL) + recordOverhead
}

// SizeBatcher creates batches with a maximum number of items per batch.
func SizeBatcher[T any](maxSize int) Batcher[T] {
	return BatcherFunc[T](func(items []T) [][]T {
		if len(items) == 0 || maxSize <= 0 {
			return nil
		}
		return chunk(items, maxSize)
	})
}

// WeightedBatcher cuts items into consecutive batches whose summed weight stays
// within maxWeight. A record heavier than maxWeight is committed alone, never
// dropped.
func WeightedBatcher[T any](weigher func(T) int, maxWeight int) Batcher[T] {
	return BatcherFunc[T](func(items []T) [][]T {
		if len(items) == 0 || maxWeight <= 0 {
			return nil
		}

		var (
			batches [][]T
			start   int
			weight  int
		)
		for i, item := range items {
			w := weigher(item)
			if i > start && weight+w > maxWeight {
				batches = append(batches, items[start:i])
				start, weight = i, 0
			}
			weight += w
		}
		return append(batches, items[start:])
	})
}

// CombineBatchers feeds every batch produced by one batcher to the next, so a
// commit satisfies all of their limits. Order is kept.
func CombineBatchers[T any](batchers ...Batcher[T]) Batcher[T] {
	return BatcherFunc[T](func(items []T) [][]T {
		out := [][]T{items}
		for _, b := range batchers {
			split := make([][]T, 0, len(out))
			for _, batch := range out {
				split = append(split, b.Batch(batch)...)
			}
			out = split
		}
		return out
	})
}

// chunk cuts items into consecutive runs of at most size elements. items must
// be non-empty and size positive.
func chunk[T any](items []T, size int) [][]T {
	out := make([][]T, 0, (len(items)+size-1)/size)
	for len(items) > size {
		out = append(out, items[:size])
		items = items[size:]
	}
	return append(out, items)
}
