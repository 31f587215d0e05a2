package deblur

import (
	"sync"
	"time"
)

// nodeQueue is the shared FIFO the top-down passes drain. Termination
// is by leaf count, not queue emptiness: pop blocks until an item is
// available, all leaves have been visited, or a worker has failed.
// Every push and every leaf-visit increment wakes the waiters, so a
// worker can never observe a transiently empty queue and give up while
// a sibling is still about to push.
type nodeQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []int
	visited int
	target  int
	err     error
}

func newNodeQueue(target int, seed []int) *nodeQueue {
	q := &nodeQueue{target: target}
	q.cond = sync.NewCond(&q.mu)
	q.items = append(q.items, seed...)
	return q
}

// push publishes both children of a processed node. The caller must
// have stored the children's PSF/entropy slots already; this lock is
// the happens-before edge that makes those writes visible to whichever
// worker pops the ids.
func (q *nodeQueue) push(a, b int) {
	q.mu.Lock()
	q.items = append(q.items, a, b)
	q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *nodeQueue) leafDone() {
	q.mu.Lock()
	q.visited++
	q.mu.Unlock()
	q.cond.Broadcast()
}

// fail records the first error and releases everyone.
func (q *nodeQueue) fail(err error) {
	q.mu.Lock()
	if q.err == nil {
		q.err = err
	}
	q.mu.Unlock()
	q.cond.Broadcast()
}

// pop blocks until it can hand out a node id; false means the pass is
// over (all leaves visited, or failed).
func (q *nodeQueue) pop() (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && q.visited < q.target && q.err == nil {
		q.cond.Wait()
	}
	if q.err != nil || len(q.items) == 0 {
		return 0, false
	}
	id := q.items[0]
	q.items = q.items[1:]
	return id, true
}

func (q *nodeQueue) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

// walkTree runs one top-down pass: threads-1 worker goroutines plus
// the calling goroutine drain the queue. visit processes an internal
// node (computing and storing both children's results); the walker
// itself pushes the children afterwards and counts leaf visits.
func (dd *DepthDeblur) walkTree(threads int, visit func(id int) error) error {
	q := newNodeQueue(dd.cfg.Layers, dd.tree.TopLevelIDs)

	worker := func() {
		for {
			id, ok := q.pop()
			if !ok {
				return
			}
			start := time.Now()
			if dd.tree.IsLeaf(id) {
				q.leafDone()
			} else if err := visit(id); err != nil {
				q.fail(err)
			} else {
				q.push(dd.tree.Nodes[id].Children[0], dd.tree.Nodes[id].Children[1])
			}
			dd.stats.record(time.Since(start))
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < threads-1; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker()
		}()
	}
	worker() // the calling goroutine works too
	wg.Wait()

	return q.Err()
}

// regionStack is the shared LIFO the reconstruction pass drains. No
// termination counter needed: nothing pushes once the pass starts.
type regionStack struct {
	mu    sync.Mutex
	items []int
}

func (s *regionStack) pop() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return 0, false
	}
	id := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return id, true
}
