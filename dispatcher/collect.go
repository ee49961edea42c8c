package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/JohnPlummer/batch-scorer/scorer"
)

// Collect reads exactly one reply per text from the item's result channel.
// The n-th reply belongs to the n-th text, so no reordering is needed. If ctx
// ends first the item is abandoned; the worker can still write to its
// buffered channel without blocking.
func (w *WorkItem) Collect(ctx context.Context) ([]scorer.Result, error) {
	results := make([]scorer.Result, 0, len(w.Texts))

	for range w.Texts {
		select {
		case reply := <-w.reply:
			if reply.Err != nil {
				return nil, reply.Err
			}
			results = append(results, reply.Result)

		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: work item %s", ErrRequestTimeout, w.ID)
			}
			return nil, ctx.Err()
		}
	}

	return results, nil
}
