package agent

import (
	"sync"

	"github.com/fuomag9/onlinetracker/internal/agentproto"
)

// ResultQueue buffers results awaiting upload. When full the oldest result is dropped.
type ResultQueue struct {
	mu       sync.Mutex
	capacity int
	items    []agentproto.ReportedResult
	dropped  uint64
}

func NewResultQueue(capacity int) *ResultQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &ResultQueue{
		capacity: capacity,
		items:    make([]agentproto.ReportedResult, 0, capacity),
	}
}

func (q *ResultQueue) Enqueue(result agentproto.ReportedResult) (dropped bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.capacity {
		q.items = q.items[1:]
		q.dropped++
		dropped = true
	}
	q.items = append(q.items, result)
	return dropped
}

// Requeue puts a failed batch back in front of anything queued since. Results that no
// longer fit are dropped oldest first.
func (q *ResultQueue) Requeue(batch []agentproto.ReportedResult) {
	q.mu.Lock()
	defer q.mu.Unlock()

	merged := make([]agentproto.ReportedResult, 0, len(batch)+len(q.items))
	merged = append(merged, batch...)
	merged = append(merged, q.items...)
	if over := len(merged) - q.capacity; over > 0 {
		merged = merged[over:]
		q.dropped += uint64(over)
	}
	q.items = merged
}

func (q *ResultQueue) Drain(max int) []agentproto.ReportedResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items)
	if max > 0 && max < n {
		n = max
	}
	drained := make([]agentproto.ReportedResult, n)
	copy(drained, q.items[:n])
	q.items = q.items[n:]
	return drained
}

func (q *ResultQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *ResultQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
