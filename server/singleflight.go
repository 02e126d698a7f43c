package server

import (
	"context"
	"sync"

	"github.com/ndlib/lfstore"
)

// blobFlight collapses concurrent reads of the same blob into one store
// read. Every caller waiting on a flight receives the same *Blob, so callers
// must not modify the content.
type blobFlight struct {
	Store    *lfstore.Store
	mu       sync.Mutex         // controls inflight
	inflight map[string]*flight // reads in progress
}

type flight struct {
	done chan struct{}
	blob *lfstore.Blob
	err  error
}

// Get returns the blob for id. The first caller for an id does the read; the
// others wait for it or for ctx to end. The read is not tied to any one
// caller's context, so one canceled request does not fail the others.
func (b *blobFlight) Get(ctx context.Context, id string) (*lfstore.Blob, error) {
	b.mu.Lock()
	f, ok := b.inflight[id]
	if !ok {
		f = &flight{done: make(chan struct{})}
		if b.inflight == nil {
			b.inflight = make(map[string]*flight)
		}
		b.inflight[id] = f
		go b.fetch(id, f)
	}
	b.mu.Unlock()

	select {
	case <-f.done:
		return f.blob, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *blobFlight) fetch(id string, f *flight) {
	f.blob, f.err = b.Store.GetBlob(context.Background(), id)
	b.mu.Lock()
	if b.inflight[id] == f {
		delete(b.inflight, id)
	}
	b.mu.Unlock()
	close(f.done)
}

// Forget stops new callers from joining a flight for id that is already
// under way. Call it once a write to id has returned, so a read issued
// after the write never shares a read that may have started before it.
func (b *blobFlight) Forget(id string) {
	b.mu.Lock()
	delete(b.inflight, id)
	b.mu.Unlock()
}
