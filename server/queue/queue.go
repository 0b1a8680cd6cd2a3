package queue

// An array-based FIFO queue, supposedly faster than a LinkedList implementation.
// Used for queuing both idle workers and requests waiting for a worker. The
// backing array doubles when full, so Push never fails.

type Queue[T any] struct {
	// tracking the length separately in l, because calculating it from (front, back)
	// is difficult in some cases (especially rollover)
	front, back, l int
	queue          []T
}

func NewQueue[T any](capacity int) Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return Queue[T]{queue: make([]T, capacity)}
}

func (q *Queue[T]) Len() int {
	return q.l
}

// Current capacity of the backing array.
func (q *Queue[T]) Cap() int {
	return len(q.queue)
}

// Append to the back.
func (q *Queue[T]) Push(e T) {
	if len(q.queue) == 0 {
		q.queue = make([]T, 1)
	}
	if q.l == len(q.queue) {
		q.grow()
	}
	q.queue[q.back] = e
	q.back = (q.back + 1) % len(q.queue)
	q.l++
}

// Get from the front. ok is false if the queue is empty.
func (q *Queue[T]) Pop() (e T, ok bool) {
	if q.l == 0 {
		return e, false
	}
	var zero T
	e = q.queue[q.front]
	q.queue[q.front] = zero
	q.front = (q.front + 1) % len(q.queue)
	q.l--
	return e, true
}

// Returns the front element without removing it.
func (q *Queue[T]) Peek() (e T, ok bool) {
	if q.l == 0 {
		return e, false
	}
	return q.queue[q.front], true
}

// Removes every element for which drop returns true, keeping the order of the rest.
func (q *Queue[T]) Remove(drop func(T) bool) int {
	removed := 0
	n := q.l

	for i := 0; i < n; i++ {
		e, _ := q.Pop()
		if drop(e) {
			removed++
		} else {
			q.Push(e)
		}
	}
	return removed
}

func (q *Queue[T]) grow() {
	bigger := make([]T, 2*len(q.queue))

	for i := 0; i < q.l; i++ {
		bigger[i] = q.queue[(q.front+i)%len(q.queue)]
	}
	q.front = 0
	q.back = q.l
	q.queue = bigger
}
