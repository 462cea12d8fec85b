package scheduler

// Range is an inclusive, contiguous slice of the item space.
type Range struct {
	First int
	Last  int
}

// Len returns the number of items in the range.
func (r Range) Len() int {
	if r.Last < r.First {
		return 0
	}
	return r.Last - r.First + 1
}

// Partition splits [1, itemCount] into numWorkers contiguous chunks of
// itemCount/numWorkers items, the remainder going to the last chunk.
// There are never more chunks than items.
func Partition(itemCount, numWorkers int) []Range {
	if itemCount < 1 {
		return nil
	}
	if numWorkers < 1 {
		numWorkers = 1
	}
	if numWorkers > itemCount {
		numWorkers = itemCount
	}

	size := itemCount / numWorkers
	ranges := make([]Range, 0, numWorkers)
	first := 1
	for i := 0; i < numWorkers; i++ {
		last := first + size - 1
		if i == numWorkers-1 {
			last = itemCount
		}
		ranges = append(ranges, Range{First: first, Last: last})
		first = last + 1
	}
	return ranges
}

// Merge unions partition maps into a new map. Partitions are disjoint, so
// the result does not depend on argument order and inputs are untouched.
func Merge(parts ...Results) Results {
	total := 0
	for _, p := range parts {
		total += len(p)
	}

	merged := make(Results, total)
	for _, p := range parts {
		for item, payload := range p {
			merged[item] = payload
		}
	}
	return merged
}
