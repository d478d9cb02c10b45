package client

import (
	"context"
	"fmt"
)

// Page is one page of a listing endpoint.
type Page[T any] struct {
	Items  []T
	Paging Paging
}

// PageFetcher fetches a single 1-based page of the given size.
type PageFetcher[T any] func(ctx context.Context, pageIndex, pageSize int) (Page[T], error)

// ListAll walks a listing endpoint page by page and returns every entry in remote order.
// It stops on an empty page, a short page, or once the declared total is reached.
// A failing page fails the whole listing.
func ListAll[T any](ctx context.Context, pageSize int, fetch PageFetcher[T]) ([]T, error) {
	if pageSize < 1 {
		return nil, fmt.Errorf("page size must be at least 1, got %d", pageSize)
	}

	var all []T
	for pageIndex := 1; ; pageIndex++ {
		page, err := fetch(ctx, pageIndex, pageSize)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", pageIndex, err)
		}
		if len(page.Items) == 0 {
			break
		}
		all = append(all, page.Items...)

		// The server may cap the page size below what we asked for.
		effective := pageSize
		if page.Paging.PageSize > 0 {
			effective = page.Paging.PageSize
		}
		if len(page.Items) < effective {
			break
		}
		if page.Paging.Total > 0 && len(all) >= page.Paging.Total {
			break
		}
	}

	return all, nil
}
