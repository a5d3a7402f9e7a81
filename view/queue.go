package view

import (
	"github.com/umpc/go-sortedmap"
)

// taskQueue defers work that arrives while a reconciliation pass is
// running. Tasks are keyed by a monotonic sequence number so draining
// replays them in arrival order.
type taskQueue struct {
	seq   uint64
	tasks *sortedmap.SortedMap
}

func newTaskQueue() *taskQueue {
	return &taskQueue{
		tasks: sortedmap.New(8, func(i, j interface{}) bool {
			return i.(uint64) < j.(uint64)
		}),
	}
}

func (q *taskQueue) push(task func()) {
	q.seq++
	q.tasks.Insert(q.seq, task)
}

// drain runs queued tasks in order until the queue is empty. Tasks
// pushed while draining run in the same sweep.
func (q *taskQueue) drain() {
	for q.tasks.Len() > 0 {
		key := q.tasks.Keys()[0]
		task := q.tasks.Map()[key].(func())
		q.tasks.Delete(key)
		task()
	}
}
