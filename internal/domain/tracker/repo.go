package tracker

import (
	"context"
)

// CompletionArchive persists completion records for offline analysis.
// Implementations must tolerate being called once per record, in completion
// order, from a single goroutine at a time.
type CompletionArchive interface {
	Save(ctx context.Context, rec *CompletionRecord) error
	List(ctx context.Context, limit, offset int) ([]*CompletionRecord, int, error)
}
