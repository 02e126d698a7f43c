package task

import (
	"sync"
)

// Keyed multiplexes serializers over a key space. Each key behaves like its
// own Serializer; actions for different keys never wait on one another.
//
// Only keys with outstanding actions take up memory. The check that a key's
// chain has drained and the removal of the key happen under one lock, so a
// key never has two live chains.
type Keyed struct {
	m      sync.Mutex       // protects latest
	latest map[string]*Task // last chained task per busy key. lazily created
}

// NewKeyed returns an empty Keyed serializer. The zero value is also usable.
func NewKeyed() *Keyed {
	return &Keyed{}
}

// IsProcessing returns true if key has an outstanding action.
func (k *Keyed) IsProcessing(key string) bool {
	k.m.Lock()
	defer k.m.Unlock()
	_, ok := k.latest[key]
	return ok
}

// Latest returns the last chained Task for key, or nil if key is idle.
func (k *Keyed) Latest(key string) *Task {
	k.m.Lock()
	defer k.m.Unlock()
	return k.latest[key]
}

// Len returns the number of keys with outstanding actions.
func (k *Keyed) Len() int {
	k.m.Lock()
	defer k.m.Unlock()
	return len(k.latest)
}

// Start begins fn for key if key is idle. Otherwise nothing is run and
// false is returned.
func (k *Keyed) Start(key string, fn func() error) (*Task, bool) {
	k.m.Lock()
	defer k.m.Unlock()
	if _, ok := k.latest[key]; ok {
		return nil, false
	}
	return k.insert(key, launch(nil, fn, k.settler(key))), true
}

// StartOrChain begins fn for key, after whatever is already chained for
// that key.
func (k *Keyed) StartOrChain(key string, fn func() error) *Task {
	k.m.Lock()
	defer k.m.Unlock()
	return k.insert(key, launch(k.latest[key], fn, k.settler(key)))
}

// AddStarted makes t the current occupant of key. It returns ErrBusy if
// key already has an outstanding action.
func (k *Keyed) AddStarted(key string, t *Task) error {
	k.m.Lock()
	defer k.m.Unlock()
	if _, ok := k.latest[key]; ok {
		return ErrBusy
	}
	k.insert(key, t)
	settle := k.settler(key)
	go func() {
		<-t.done
		settle(t)
	}()
	return nil
}

// insert records t as the last task for key. Assumes k.m is held.
func (k *Keyed) insert(key string, t *Task) *Task {
	if k.latest == nil {
		k.latest = make(map[string]*Task)
	}
	k.latest[key] = t
	return t
}

func (k *Keyed) settler(key string) func(*Task) {
	return func(t *Task) {
		k.m.Lock()
		if k.latest[key] == t {
			delete(k.latest, key)
		}
		k.m.Unlock()
	}
}
