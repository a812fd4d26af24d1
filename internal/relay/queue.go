package relay

import "sync"

type queuedLine struct {
	line string
	next *queuedLine
}

// Queue is an unbounded FIFO of operator lines. Push and TryPop may be
// called from different goroutines without extra locking.
type Queue struct {
	mu   sync.Mutex
	head *queuedLine
	tail *queuedLine
	n    int
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends line to the back of the queue.
func (q *Queue) Push(line string) {
	node := &queuedLine{line: line}
	q.mu.Lock()
	if q.tail == nil {
		q.head = node
	} else {
		q.tail.next = node
	}
	q.tail = node
	q.n++
	q.mu.Unlock()
}

// TryPop removes and returns the oldest line. It never blocks; ok is false
// when the queue is empty.
func (q *Queue) TryPop() (line string, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == nil {
		return "", false
	}
	node := q.head
	q.head = node.next
	if q.head == nil {
		q.tail = nil
	}
	q.n--
	return node.line, true
}

// Len returns the number of queued lines.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}
