/**
 * Copyright (c) 2019, The Artemis Authors.
 *
 * Permission to use, copy, modify, and/or distribute this software for any
 * purpose with or without fee is hereby granted, provided that the above
 * copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR
 * ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES
 * WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN
 * ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF
 * OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package concurrent

import (
	"sync"
	"time"
)

//===----------------------------------------------------------------------------------------====//
// queuedTask
//===----------------------------------------------------------------------------------------====//

// queuedTask implements TaskHandle for a Task waiting in (or taken from) a taskQueue.
type queuedTask struct {
	Task
	queue *taskQueue

	// Closed when result and err are available.
	done chan struct{}

	// Return values from calling the Run method in Task; They're written once before done is closed.
	result interface{}
	err    error

	// The next task in the taskQueue; guarded by the queue's mutex.
	next *queuedTask
}

var (
	_ Task       = (*queuedTask)(nil)
	_ TaskHandle = (*queuedTask)(nil)
)

func newQueuedTask(task Task, queue *taskQueue) *queuedTask {
	return &queuedTask{
		Task:  task,
		queue: queue,
		done:  make(chan struct{}),
	}
}

// run executes the task and publishes its result.
func (task *queuedTask) run() {
	result, err := task.Task.Run()
	task.setResult(result, err)
}

func (task *queuedTask) setResult(result interface{}, err error) {
	task.result = result
	task.err = err
	close(task.done)
}

// Cancel implements TaskHandle.
func (task *queuedTask) Cancel() error {
	if !task.queue.remove(task) {
		return ErrTaskNotCancellable
	}
	task.setResult(nil, ErrTaskCancelled)
	return nil
}

// AwaitResult implements TaskHandle.
func (task *queuedTask) AwaitResult(timeout time.Duration) (interface{}, error) {
	if timeout <= 0 {
		<-task.done
		return task.result, task.err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-task.done:
		return task.result, task.err
	case <-timer.C:
		return nil, ErrAwaitTaskResultTimeout
	}
}

//===----------------------------------------------------------------------------------------====//
// taskQueue
//===----------------------------------------------------------------------------------------====//

// taskQueue is a FIFO of queuedTask linked through the "intrusive" next pointer. It is safe for
// concurrent use: network callbacks push from their own goroutines while a single consumer pops.
type taskQueue struct {
	mutex sync.Mutex

	// Signalled on push and close; consumers that block wait on it.
	cond *sync.Cond

	head, tail *queuedTask
	size       int
	closed     bool
}

func newTaskQueue() *taskQueue {
	queue := &taskQueue{}
	queue.cond = sync.NewCond(&queue.mutex)
	return queue
}

// push appends a task. It fails with ErrExecutorShutdown once the queue is closed.
func (queue *taskQueue) push(task *queuedTask) error {
	queue.mutex.Lock()
	defer queue.mutex.Unlock()

	if queue.closed {
		return ErrExecutorShutdown
	}

	if queue.tail == nil {
		queue.head = task
	} else {
		queue.tail.next = task
	}
	queue.tail = task
	queue.size++
	queue.cond.Signal()
	return nil
}

// pop removes the head task. If wait is true, it blocks until a task is available or the queue is
// closed and drained, in which case it returns nil.
func (queue *taskQueue) pop(wait bool) *queuedTask {
	queue.mutex.Lock()
	defer queue.mutex.Unlock()

	for queue.head == nil {
		if !wait || queue.closed {
			return nil
		}
		queue.cond.Wait()
	}

	task := queue.head
	queue.head = task.next
	if queue.head == nil {
		queue.tail = nil
	}
	task.next = nil
	queue.size--
	return task
}

// remove unlinks the given task. It returns false if the task is not in the queue.
func (queue *taskQueue) remove(task *queuedTask) bool {
	queue.mutex.Lock()
	defer queue.mutex.Unlock()

	var prev *queuedTask
	for node := queue.head; node != nil; node = node.next {
		if node != task {
			prev = node
			continue
		}

		if prev == nil {
			queue.head = node.next
		} else {
			prev.next = node.next
		}
		if queue.tail == node {
			queue.tail = prev
		}
		node.next = nil
		queue.size--
		return true
	}
	return false
}

// len returns the number of waiting tasks.
func (queue *taskQueue) len() int {
	queue.mutex.Lock()
	defer queue.mutex.Unlock()
	return queue.size
}

// close stops the queue from accepting new tasks. It returns false if it was already closed.
func (queue *taskQueue) close() bool {
	queue.mutex.Lock()
	defer queue.mutex.Unlock()

	if queue.closed {
		return false
	}
	queue.closed = true
	queue.cond.Broadcast()
	return true
}
