package schedule

import "time"

// dueItem is one entry in the scheduler's min-heap: a service key and the
// next_check time it was queued with. The time is snapshotted at push time
// rather than re-read from the registry on every heap comparison, so a
// concurrent update to next_check doesn't reorder a heap mid-fix; the
// service is simply requeued with its new time once it's popped and
// re-checked against the registry.
type dueItem struct {
	key       string
	nextCheck time.Time
	index     int
}

// dueQueue is a container/heap.Interface min-heap ordered by nextCheck,
// tie-broken by service key for determinism (two services due at the
// exact same instant always pop in the same order).
type dueQueue []*dueItem

func (q dueQueue) Len() int { return len(q) }

func (q dueQueue) Less(i, j int) bool {
	if q[i].nextCheck.Equal(q[j].nextCheck) {
		return q[i].key < q[j].key
	}
	return q[i].nextCheck.Before(q[j].nextCheck)
}

func (q dueQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *dueQueue) Push(x any) {
	item := x.(*dueItem)
	item.index = len(*q)
	*q = append(*q, item)
}

func (q *dueQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]
	return item
}
