// Package lfstest provides functions for exercising a Store from many
// goroutines at once.
package lfstest

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/ndlib/lfstore"
)

type blob struct {
	id   string
	hash []byte
	size int
}

// Stress spawns a number of goroutines which simultaneously add, read,
// relabel and delete blobs in the given store. It is a good test to run
// with the -race flag to find race conditions.
//
// A list of sizes is generated until their sum is >= totalsize. For each
// size a random blob of that size is added, and then read back and
// compared. Afterwards each blob is either deleted or relabelled and read
// again. At some point every blob is deleted and the test ends.
//
// Every id handed out during the run must be distinct.
func Stress(t *testing.T, s *lfstore.Store, totalsize int64) {
	// the pipeline is
	//       size maker
	// sizes ----> uploader pool
	// dwnld ----> downloader pool (possible repeat)
	//       ----> delete
	if totalsize == 0 {
		totalsize = 10 * 1000 * 1000 // 10MB
	}
	sizes := make(chan int, 10)
	dwnld := make(chan blob, 1000)
	done := make(chan struct{})
	ids := &idSet{seen: make(map[string]bool)}
	var uppool, downpool sync.WaitGroup

	for i := 0; i < 5; i++ {
		uppool.Add(1)
		go func() {
			uploader(t, s, ids, sizes, dwnld)
			uppool.Done()
		}()
	}

	for i := 0; i < 10; i++ {
		downpool.Add(1)
		go func() {
			downloader(t, s, dwnld, done)
			downpool.Done()
		}()
	}

	generatesizes(sizes, totalsize)
	close(sizes)
	uppool.Wait()
	close(done)
	downpool.Wait()
	// whatever is still queued gets removed so the store ends up empty
	close(dwnld)
	for b := range dwnld {
		if err := s.Delete(context.Background(), b.id); err != nil {
			t.Error(err)
		}
	}
}

type idSet struct {
	m    sync.Mutex
	seen map[string]bool
}

// add returns false if id was already handed out.
func (s *idSet) add(id string) bool {
	s.m.Lock()
	defer s.m.Unlock()
	if s.seen[id] {
		return false
	}
	s.seen[id] = true
	return true
}

func uploader(t *testing.T, s *lfstore.Store, ids *idSet, in <-chan int, out chan<- blob) {
	ctx := context.Background()
	h := md5.New()
	for size := range in {
		data := make([]byte, size)
		rand.Read(data)
		h.Reset()
		h.Write(data)
		sum := h.Sum(nil)
		id, err := s.AddBlob(ctx, lfstore.Blob{Content: data, Type: "application/octet-stream"},
			lfstore.Attrs{"md5": hex.EncodeToString(sum)})
		if err != nil {
			t.Error(err)
			continue
		}
		if !ids.add(id) {
			t.Errorf("id %s was handed out twice", id)
		}
		out <- blob{id: id, hash: sum, size: size}
	}
}

func downloader(t *testing.T, s *lfstore.Store, in chan blob, done chan struct{}) {
	ctx := context.Background()
	h := md5.New()
	for {
		var blob blob
		select {
		case <-done:
			return
		case blob = <-in:
		}
		b, err := s.GetBlob(ctx, blob.id)
		if err != nil {
			t.Error(err)
			continue
		}
		if len(b.Content) != blob.size {
			t.Error("Expected", blob.size, "GetBlob() returned", len(b.Content))
		}
		h.Reset()
		h.Write(b.Content)
		if !bytes.Equal(blob.hash, h.Sum(nil)) {
			t.Errorf("hashes unequal. %s. Received %x", blob.id, h.Sum(nil))
			// note that the item is left in the store...
			continue
		}

		// figure out what to do next
		x := rand.Float32()
		switch {
		case x < 0.5:
			if err := s.Delete(ctx, blob.id); err != nil {
				t.Error(err)
			}
			if _, err := s.GetInfo(ctx, blob.id); !lfstore.IsNotFound(err) {
				t.Errorf("%s: Got %v after delete, expected not found", blob.id, err)
			}
		default:
			// touch the labels, then reinsert once if there is room
			err := s.UpdateInfo(ctx, blob.id, lfstore.AttrChanges{"seen": lfstore.Value("yes")})
			if err != nil {
				t.Error(err)
			}
			select {
			case in <- blob:
			default:
				s.Delete(ctx, blob.id)
			}
		}
	}
}

func generatesizes(out chan<- int, totalsize int64) {
	// We want a wide range of sizes, so generate the exponent of the size
	// uniformly at random.
	//  choose number x ~ uniform(0, 14)
	//  let size be exp(x)
	for totalsize > 0 {
		x := 14 * rand.Float64()
		size := int(math.Trunc(math.Exp(x)))
		out <- size
		totalsize -= int64(size)
	}
}
