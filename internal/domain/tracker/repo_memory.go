package tracker

import (
	"context"
	"sync"
)

type archiveMemory struct {
	mu      sync.Mutex
	records []*CompletionRecord
}

// NewArchiveMemory returns an in-memory completion archive, used when no
// database is configured and in tests.
func NewArchiveMemory() CompletionArchive { return &archiveMemory{} }

func (r *archiveMemory) Save(_ context.Context, rec *CompletionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	r.records = append(r.records, &cp)
	return nil
}

func (r *archiveMemory) List(_ context.Context, limit, offset int) ([]*CompletionRecord, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := len(r.records)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	out := make([]*CompletionRecord, end-offset)
	copy(out, r.records[offset:end])
	return out, total, nil
}
