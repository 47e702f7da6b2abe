package execution

import (
	"container/heap"

	"github.com/web3guy0/copybot/types"
)

// orderQueue is a max-heap on priority; insertion order breaks ties so
// equal-priority orders drain FIFO. CRITICAL > HIGH > MEDIUM > LOW.
type queueItem struct {
	orderID  string
	priority types.OrderPriority
	seq      uint64
}

type orderHeap []queueItem

func (h orderHeap) Len() int { return len(h) }

func (h orderHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h orderHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *orderHeap) Push(x any) {
	*h = append(*h, x.(queueItem))
}

func (h *orderHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

type orderQueue struct {
	heap orderHeap
	seq  uint64
}

func newOrderQueue() *orderQueue {
	q := &orderQueue{}
	heap.Init(&q.heap)
	return q
}

// push enqueues with a fresh sequence number
func (q *orderQueue) push(orderID string, priority types.OrderPriority) {
	q.seq++
	heap.Push(&q.heap, queueItem{orderID: orderID, priority: priority, seq: q.seq})
}

// requeue re-inserts with the original sequence so a gas-aborted order
// keeps its place among equal-priority peers
func (q *orderQueue) requeue(item queueItem) {
	heap.Push(&q.heap, item)
}

func (q *orderQueue) pop() (queueItem, bool) {
	if q.heap.Len() == 0 {
		return queueItem{}, false
	}
	return heap.Pop(&q.heap).(queueItem), true
}

func (q *orderQueue) len() int {
	return q.heap.Len()
}
