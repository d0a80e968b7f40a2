package ctrl

import "time"

// PendingRequest is one queued compile request. It is immutable once
// created; it leaves the queue on dispatch or cancellation.
type PendingRequest struct {
	ID         string
	Source     string
	Client     string
	Reply      chan CompileResult
	EnqueuedAt time.Time
}

// RequestQueue is the FIFO of pending requests. Arrival order is the
// only ordering key; the queue is unbounded.
type RequestQueue struct {
	items []*PendingRequest
}

func NewRequestQueue() *RequestQueue {
	return &RequestQueue{}
}

func (q *RequestQueue) Push(req *PendingRequest) {
	q.items = append(q.items, req)
}

// PushFront reinserts a request at the head, used when a dispatch is
// aborted before the worker accepted it.
func (q *RequestQueue) PushFront(req *PendingRequest) {
	q.items = append([]*PendingRequest{req}, q.items...)
}

// Peek returns the queue head without removing it, or nil.
func (q *RequestQueue) Peek() *PendingRequest {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// Pop removes and returns the queue head, or nil.
func (q *RequestQueue) Pop() *PendingRequest {
	if len(q.items) == 0 {
		return nil
	}
	head := q.items[0]
	q.items = q.items[1:]
	return head
}

// Cancel removes the request with the given id, reporting whether an
// entry was removed. Dispatched requests are out of reach here.
func (q *RequestQueue) Cancel(id string) bool {
	for i, req := range q.items {
		if req.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

func (q *RequestQueue) Len() int {
	return len(q.items)
}
