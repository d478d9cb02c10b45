package client

import "slices"

// Partition splits keys into consecutive batches of at most maxBatchSize.
// Order and duplicates are preserved; only the last batch may be short.
func Partition(keys []string, maxBatchSize int) ([][]string, error) {
	if maxBatchSize < 1 {
		return nil, ErrInvalidBatchSize
	}

	batches := make([][]string, 0, (len(keys)+maxBatchSize-1)/maxBatchSize)
	for c := range slices.Chunk(keys, maxBatchSize) {
		batches = append(batches, c)
	}
	return batches, nil
}
