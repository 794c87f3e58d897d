package queue

import (
	"container/heap"

	"github.com/privchat/privchat-sdk-go/internal/domain/model"
)

// itemHeap orders model.QueueItem by (Priority, CreatedAt): lower Priority
// value first (Critical=0 is serviced first), then FIFO within a class
// (spec §4.3: "within the same class, FIFO by created_at").
type itemHeap []model.QueueItem

func (h itemHeap) Len() int { return len(h) }
func (h itemHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].CreatedAt.Before(h[j].CreatedAt)
}
func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) { *h = append(*h, x.(model.QueueItem)) }

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

var _ heap.Interface = (*itemHeap)(nil)

func heapInit(h *itemHeap)                    { heap.Init(h) }
func heapPush(h *itemHeap, it model.QueueItem) { heap.Push(h, it) }
func heapPop(h *itemHeap) model.QueueItem      { return heap.Pop(h).(model.QueueItem) }
