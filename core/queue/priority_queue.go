// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package queue implements a min-heap priority queue.
package queue

import "container/heap"

// Entry is a PriorityQueue entry.
type Entry struct {
	Value    interface{}
	Priority uint64
}

// PriorityQueue is a min-heap ordered by Entry.Priority. It is not safe
// for concurrent use.
type PriorityQueue struct {
	heap entries
}

type entries []*Entry

func (e entries) Len() int           { return len(e) }
func (e entries) Less(i, j int) bool { return e[i].Priority < e[j].Priority }
func (e entries) Swap(i, j int)      { e[i], e[j] = e[j], e[i] }

func (e *entries) Push(x interface{}) {
	*e = append(*e, x.(*Entry))
}

func (e *entries) Pop() interface{} {
	old := *e
	n := len(old)
	ent := old[n-1]
	old[n-1] = nil
	*e = old[:n-1]
	return ent
}

// Enqueue inserts value with the given priority.
func (q *PriorityQueue) Enqueue(priority uint64, value interface{}) {
	heap.Push(&q.heap, &Entry{
		Value:    value,
		Priority: priority,
	})
}

// Peek returns the entry with the lowest priority without removing it,
// or nil if the queue is empty. Callers MUST NOT alter the Priority of
// the returned entry.
func (q *PriorityQueue) Peek() *Entry {
	if len(q.heap) == 0 {
		return nil
	}
	return q.heap[0]
}

// Pop removes and returns the entry with the lowest priority, or nil if
// the queue is empty.
func (q *PriorityQueue) Pop() *Entry {
	if len(q.heap) == 0 {
		return nil
	}
	return heap.Pop(&q.heap).(*Entry)
}

// PopUntil removes and returns every entry whose priority is at or below
// limit, lowest first.
func (q *PriorityQueue) PopUntil(limit uint64) []*Entry {
	var out []*Entry
	for {
		e := q.Peek()
		if e == nil || e.Priority > limit {
			return out
		}
		out = append(out, q.Pop())
	}
}

// Len returns the number of queued entries.
func (q *PriorityQueue) Len() int {
	return len(q.heap)
}

// New creates a new PriorityQueue.
func New() *PriorityQueue {
	return &PriorityQueue{
		heap: make(entries, 0),
	}
}
