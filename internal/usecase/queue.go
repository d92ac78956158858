package usecase

import (
	"context"
	"sync"

	"conductor/internal/domain"
)

// Delivery is one queued objective plus its delivery header. RetryCount
// counts redeliveries, independent of (and composable with) the recovery
// engine's own retry budget.
type Delivery struct {
	Objective  domain.Objective
	RetryCount int
}

// TaskQueue is an in-process at-least-once objective queue. A consumer that
// cannot process a delivery nacks it; the queue redelivers with an
// incremented retry count until MaxRedelivery is reached.
type TaskQueue struct {
	mu            sync.Mutex
	ch            chan Delivery
	closed        bool
	maxRedelivery int
	dead          []Delivery // deliveries past the redelivery budget
}

// NewTaskQueue creates a queue with the given capacity and redelivery budget.
func NewTaskQueue(capacity, maxRedelivery int) *TaskQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &TaskQueue{
		ch:            make(chan Delivery, capacity),
		maxRedelivery: maxRedelivery,
	}
}

// Enqueue adds an objective. Returns ErrQueueFull when capacity is exhausted
// and ErrQueueClosed after Close.
func (q *TaskQueue) Enqueue(obj domain.Objective) error {
	return q.offer(Delivery{Objective: obj})
}

func (q *TaskQueue) offer(d Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return domain.WrapOp("TaskQueue.Enqueue", domain.ErrQueueClosed)
	}
	select {
	case q.ch <- d:
		return nil
	default:
		return domain.WrapOp("TaskQueue.Enqueue", domain.ErrQueueFull)
	}
}

// Dequeue blocks until a delivery is available, the queue closes, or ctx is
// done. The second return is false when the queue is drained and closed.
func (q *TaskQueue) Dequeue(ctx context.Context) (Delivery, bool, error) {
	select {
	case d, ok := <-q.ch:
		if !ok {
			return Delivery{}, false, nil
		}
		return d, true, nil
	case <-ctx.Done():
		return Delivery{}, false, ctx.Err()
	}
}

// Nack redelivers d with an incremented retry count. Past the redelivery
// budget the delivery is parked on the dead list instead.
func (q *TaskQueue) Nack(d Delivery) error {
	d.RetryCount++
	if d.RetryCount > q.maxRedelivery {
		q.mu.Lock()
		q.dead = append(q.dead, d)
		q.mu.Unlock()
		return nil
	}
	return q.offer(d)
}

// Dead returns a snapshot of deliveries that exhausted redelivery.
func (q *TaskQueue) Dead() []Delivery {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Delivery, len(q.dead))
	copy(out, q.dead)
	return out
}

// Close stops the queue. Pending deliveries remain consumable.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}
