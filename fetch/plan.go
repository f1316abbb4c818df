package fetch

// Chunk is one byte range of the asset. End is inclusive.
type Chunk struct {
	Index int
	Start int64
	End   int64
}

// Len returns the number of bytes in the chunk.
func (c Chunk) Len() int64 {
	return c.End - c.Start + 1
}

// Plan partitions [0, total) into at most n contiguous ranges of
// ceil(total/n) bytes. The last range may be shorter; ranges that would
// start past the end are dropped.
func Plan(total int64, n int) []Chunk {
	if total <= 0 || n <= 0 {
		return nil
	}
	size := (total + int64(n) - 1) / int64(n)

	chunks := make([]Chunk, 0, n)
	for i := 0; i < n; i++ {
		start := int64(i) * size
		if start >= total {
			break
		}
		end := min(start+size-1, total-1)
		chunks = append(chunks, Chunk{Index: i, Start: start, End: end})
	}
	return chunks
}
