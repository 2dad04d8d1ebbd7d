package scheduler

import "uptimemesh"

// entry is one scheduled check: its theoretical due time and the frequency
// it re-fires at. next_due_micros is never derived from wall time after the
// first insertion — only from its own previous value plus freqMicros,
// which is what makes the schedule drift-free.
type entry struct {
	check         uptimemesh.Check
	freqMicros    int64
	nextDueMicros int64
	missedTicks   int64
	canceled      bool // set when -check arrives while mid-dispatch, not yet requeued
	index         int  // heap.Interface bookkeeping
}

// checkQueue is a container/heap.Interface ordered by nextDueMicros
// ascending, ties broken by check ID.
type checkQueue []*entry

func (q checkQueue) Len() int { return len(q) }

func (q checkQueue) Less(i, j int) bool {
	if q[i].nextDueMicros != q[j].nextDueMicros {
		return q[i].nextDueMicros < q[j].nextDueMicros
	}
	return q[i].check.ID < q[j].check.ID
}

func (q checkQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *checkQueue) Push(x any) {
	e := x.(*entry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *checkQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}
