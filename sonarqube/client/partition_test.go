package client

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
)

func makeKeys(n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = fmt.Sprintf("project-%03d", i)
	}
	return keys
}

func TestPartition(t *testing.T) {
	testCases := []struct {
		name          string
		keys          []string
		maxBatchSize  int
		expectedSizes []int
	}{
		{name: "Empty input", keys: nil, maxBatchSize: 100, expectedSizes: []int{}},
		{name: "Below cap", keys: makeKeys(42), maxBatchSize: 100, expectedSizes: []int{42}},
		{name: "Exactly cap", keys: makeKeys(100), maxBatchSize: 100, expectedSizes: []int{100}},
		{name: "Above cap", keys: makeKeys(250), maxBatchSize: 100, expectedSizes: []int{100, 100, 50}},
		{name: "Batch of one", keys: makeKeys(3), maxBatchSize: 1, expectedSizes: []int{1, 1, 1}},
		{name: "Duplicates kept", keys: []string{"a", "a", "b", "a"}, maxBatchSize: 3, expectedSizes: []int{3, 1}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			batches, err := Partition(tc.keys, tc.maxBatchSize)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}

			sizes := make([]int, 0, len(batches))
			var joined []string
			for _, b := range batches {
				sizes = append(sizes, len(b))
				joined = append(joined, b...)
			}
			if !reflect.DeepEqual(sizes, tc.expectedSizes) {
				t.Errorf("Expected batch sizes %v, got %v", tc.expectedSizes, sizes)
			}
			if len(tc.keys) > 0 && !reflect.DeepEqual(joined, tc.keys) {
				t.Errorf("Concatenated batches do not reproduce input:\nExpected: %v\nGot:      %v", tc.keys, joined)
			}
		})
	}
}

func TestPartition_InvalidBatchSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		batches, err := Partition(makeKeys(5), size)
		if !errors.Is(err, ErrInvalidBatchSize) {
			t.Errorf("Expected ErrInvalidBatchSize for size %d, got %v", size, err)
		}
		if batches != nil {
			t.Errorf("Expected nil batches for size %d, got %v", size, batches)
		}
	}
}

func TestPartition_RoundTripManySizes(t *testing.T) {
	keys := makeKeys(257)
	for size := 1; size <= 300; size += 13 {
		batches, err := Partition(keys, size)
		if err != nil {
			t.Fatalf("size %d: unexpected error %v", size, err)
		}
		var joined []string
		for i, b := range batches {
			if i < len(batches)-1 && len(b) != size {
				t.Errorf("size %d: batch %d has %d keys", size, i, len(b))
			}
			if len(b) > size {
				t.Errorf("size %d: batch %d exceeds cap with %d keys", size, i, len(b))
			}
			joined = append(joined, b...)
		}
		if !reflect.DeepEqual(joined, keys) {
			t.Errorf("size %d: concatenation differs from input", size)
		}
	}
}
